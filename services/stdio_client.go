package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// StdioClient runs a plugin binary and talks to it with JSON lines over its
// stdin and stdout. The process is started on first use and kept alive
// across calls; if it dies the next call starts a new one.
type StdioClient struct {
	path string
	args []string

	// Env is appended to the current environment of the plugin process.
	Env []string
	// Stderr receives the plugin's log output. Defaults to os.Stderr.
	Stderr io.Writer
	// StopTimeout is how long Close waits for the process to exit after its
	// stdin is closed before killing it.
	StopTimeout time.Duration

	logger *utils.LoggerWithContext

	mu     sync.Mutex
	proc   *stdioProcess
	nextID uint64
	closed bool
}

// stdioProcess is one running plugin binary
type stdioProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	enc     *json.Encoder
	pending map[string]chan models.RPCResponse
	done    chan struct{}
}

// NewStdioClient creates a client that will run path with args
func NewStdioClient(path string, args []string, logger *utils.Logger) *StdioClient {
	if logger == nil {
		logger = utils.GetLogger()
	}
	return &StdioClient{
		path:        path,
		args:        args,
		StopTimeout: 5 * time.Second,
		logger:      logger.WithSource("stdio-client"),
	}
}

// Process implements PluginService
func (c *StdioClient) Process(ctx context.Context, req *models.ProcessRequest) (*models.ProcessResponse, error) {
	var out models.ProcessResponse
	if err := c.call(ctx, models.MethodProcess, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetInfo implements PluginService
func (c *StdioClient) GetInfo(ctx context.Context, req *models.InfoRequest) (*models.InfoResponse, error) {
	var out models.InfoResponse
	if err := c.call(ctx, models.MethodInfo, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HealthCheck implements PluginService
func (c *StdioClient) HealthCheck(ctx context.Context, req *models.HealthRequest) (*models.HealthResponse, error) {
	var out models.HealthResponse
	if err := c.call(ctx, models.MethodHealth, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *StdioClient) call(ctx context.Context, method string, payload, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return utils.AsFault(err)
	}
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return utils.InvalidArgument("request cannot be encoded: %v", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return utils.Unavailable("plugin client is closed")
	}
	if c.proc == nil {
		proc, err := c.start()
		if err != nil {
			c.mu.Unlock()
			return utils.NewFault(utils.FaultUnavailable, fmt.Sprintf("starting plugin %s failed", c.path), err)
		}
		c.proc = proc
	}
	proc := c.proc
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	reply := make(chan models.RPCResponse, 1)
	proc.pending[id] = reply

	// Encode writes a whole line per call; holding mu keeps lines from interleaving.
	err = proc.enc.Encode(models.RPCRequest{ID: id, Method: method, Payload: body})
	if err != nil {
		delete(proc.pending, id)
		c.mu.Unlock()
		return utils.NewFault(utils.FaultUnavailable, "writing to plugin failed", err)
	}
	c.mu.Unlock()

	select {
	case resp := <-reply:
		return decodeRPCResponse(resp, out)
	case <-ctx.Done():
		c.mu.Lock()
		delete(proc.pending, id)
		c.mu.Unlock()
		return utils.AsFault(ctx.Err())
	}
}

// start must be called with mu held
func (c *StdioClient) start() (*stdioProcess, error) {
	// The process outlives any single call, so it is not bound to a request context.
	cmd := exec.Command(c.path, c.args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	proc := &stdioProcess{
		cmd:     cmd,
		stdin:   stdin,
		enc:     json.NewEncoder(stdin),
		pending: make(map[string]chan models.RPCResponse),
		done:    make(chan struct{}),
	}
	go c.readLoop(proc, stdout)

	c.logger.Info("Plugin process started", map[string]interface{}{
		"path": c.path,
		"pid":  cmd.Process.Pid,
	})
	return proc, nil
}

func (c *StdioClient) readLoop(proc *stdioProcess, stdout io.Reader) {
	defer close(proc.done)

	dec := json.NewDecoder(stdout)
	var readErr error
	for {
		var resp models.RPCResponse
		if err := dec.Decode(&resp); err != nil {
			readErr = err
			break
		}

		c.mu.Lock()
		reply, ok := proc.pending[resp.ID]
		delete(proc.pending, resp.ID)
		c.mu.Unlock()

		if !ok {
			c.logger.Warn("Dropping response for unknown call", map[string]interface{}{
				"id": resp.ID,
			})
			continue
		}
		reply <- resp
	}

	reason := "plugin process exited"
	if readErr != io.EOF {
		// The stream cannot be resynchronized after a bad line.
		reason = "plugin wrote a non-protocol line"
		c.logger.Error("Plugin wrote a non-protocol line, stopping it", readErr, map[string]interface{}{
			"path": c.path,
			"pid":  proc.cmd.Process.Pid,
		})
		_ = proc.stdin.Close()
		_ = proc.cmd.Process.Kill()
	}

	c.mu.Lock()
	if c.proc == proc {
		c.proc = nil
	}
	orphaned := proc.pending
	proc.pending = map[string]chan models.RPCResponse{}
	c.mu.Unlock()

	for _, reply := range orphaned {
		reply <- models.RPCResponse{Error: &models.RPCError{
			Code:    string(utils.FaultUnavailable),
			Message: reason,
		}}
	}

	waitErr := proc.cmd.Wait()
	if readErr != io.EOF || waitErr != nil {
		c.logger.Warn("Plugin process stopped", map[string]interface{}{
			"path":       c.path,
			"read_error": fmt.Sprint(readErr),
			"exit_error": fmt.Sprint(waitErr),
		})
	}
}

// Close stops the plugin process. Calls made after Close fail with unavailable.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	c.closed = true
	proc := c.proc
	c.proc = nil
	c.mu.Unlock()

	if proc == nil {
		return nil
	}

	_ = proc.stdin.Close()
	select {
	case <-proc.done:
		return nil
	case <-time.After(c.StopTimeout):
	}

	c.logger.Warn("Plugin did not exit after stdin closed, killing it", map[string]interface{}{
		"path": c.path,
	})
	if err := proc.cmd.Process.Kill(); err != nil {
		return err
	}
	<-proc.done
	return nil
}

// decodeRPCResponse turns a stdio response into out or a fault
func decodeRPCResponse(resp models.RPCResponse, out interface{}) error {
	if resp.Error != nil {
		code, ok := utils.ParseFaultCode(resp.Error.Code)
		if !ok {
			return utils.NewFault(utils.FaultProtocolViolation,
				fmt.Sprintf("plugin answered with unknown fault code %q: %s", resp.Error.Code, resp.Error.Message), nil)
		}
		return utils.NewFault(code, resp.Error.Message, nil)
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return utils.NewFault(utils.FaultProtocolViolation, "plugin response carries neither result nor error", nil)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return utils.NewFault(utils.FaultProtocolViolation, "plugin response does not match the schema", err)
	}
	return nil
}
