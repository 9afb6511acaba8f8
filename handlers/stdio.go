package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// DefaultMaxLineBytes bounds one request line on the stdio transport
const DefaultMaxLineBytes = 64 << 20

// StdioServer answers JSON-line requests read from in on out. Requests are
// served concurrently, so a long Process does not hold up info or health.
type StdioServer struct {
	plugin       services.PluginService
	logger       *utils.Logger
	recovery     *utils.RecoveryHandler
	maxLineBytes int

	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdioServer creates a server for plugin
func NewStdioServer(plugin services.PluginService, maxLineBytes int) *StdioServer {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	logger := utils.GetLogger()
	return &StdioServer{
		plugin:       plugin,
		logger:       logger,
		recovery:     utils.NewRecoveryHandler(logger),
		maxLineBytes: maxLineBytes,
	}
}

// Serve reads requests until in is exhausted, then waits for outstanding
// calls to finish. ctx is passed to every call.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.enc = json.NewEncoder(out)
	log := s.logger.WithSource("stdio_server")

	scanner := bufio.NewScanner(in)
	initial := 64 * 1024
	if initial > s.maxLineBytes {
		initial = s.maxLineBytes
	}
	scanner.Buffer(make([]byte, 0, initial), s.maxLineBytes)

	var wg sync.WaitGroup
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var req models.RPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("Discarding malformed request line", map[string]interface{}{
				"error": err.Error(),
			})
			s.reply(models.RPCResponse{Error: &models.RPCError{
				Code:    string(utils.FaultInvalidArgument),
				Message: "request line is not valid JSON",
			}})
			continue
		}

		wg.Add(1)
		go func(req models.RPCRequest) {
			defer wg.Done()
			s.reply(s.handle(ctx, req))
		}(req)
	}

	wg.Wait()
	if err := scanner.Err(); err != nil {
		log.Error("Reading requests failed", err, nil)
		return err
	}
	return nil
}

func (s *StdioServer) handle(ctx context.Context, req models.RPCRequest) models.RPCResponse {
	var result interface{}
	err := s.recovery.Guard("stdio "+req.Method, func() error {
		var err error
		result, err = s.dispatch(ctx, req)
		return err
	})
	if err != nil {
		fault := utils.AsFault(err)
		return models.RPCResponse{ID: req.ID, Error: &models.RPCError{
			Code:    string(fault.Code),
			Message: fault.Message,
		}}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return models.RPCResponse{ID: req.ID, Error: &models.RPCError{
			Code:    string(utils.FaultInternal),
			Message: "response cannot be encoded",
		}}
	}
	return models.RPCResponse{ID: req.ID, Result: raw}
}

func (s *StdioServer) dispatch(ctx context.Context, req models.RPCRequest) (interface{}, error) {
	switch req.Method {
	case models.MethodProcess:
		var payload models.ProcessRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return s.plugin.Process(ctx, &payload)
	case models.MethodInfo:
		var payload models.InfoRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return s.plugin.GetInfo(ctx, &payload)
	case models.MethodHealth:
		var payload models.HealthRequest
		if err := decodePayload(req.Payload, &payload); err != nil {
			return nil, err
		}
		return s.plugin.HealthCheck(ctx, &payload)
	default:
		return nil, utils.InvalidArgument("unknown method %q", req.Method)
	}
}

func (s *StdioServer) reply(resp models.RPCResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.logger.Error("Writing response failed", err, map[string]interface{}{
			"id": resp.ID,
		})
	}
}

func decodePayload(raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return utils.InvalidArgument("payload is not valid: %v", err)
	}
	return nil
}
