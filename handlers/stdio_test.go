package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietPlugin(t *testing.T, name string) *plugins.Plugin {
	t.Helper()
	logger := utils.NewLogger("error", "json")
	logger.SetOutput(io.Discard)
	p, err := plugins.New(name, plugins.WithLogger(logger))
	require.NoError(t, err)
	return p
}

func readResponses(t *testing.T, out string) map[string]models.RPCResponse {
	t.Helper()
	responses := make(map[string]models.RPCResponse)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var resp models.RPCResponse
		require.NoError(t, json.Unmarshal([]byte(line), &resp), line)
		responses[resp.ID] = resp
	}
	return responses
}

func TestStdioServer_Roundtrip(t *testing.T) {
	input := strings.Join([]string{
		`{"id":"1","method":"process","payload":{"entries":[{"level":"ERROR","message":"out of memory"},{"level":"INFO","message":"ok"}]}}`,
		`{"id":"2","method":"info"}`,
		`{"id":"3","method":"health","payload":null}`,
		`{"id":"4","method":"reindex","payload":{}}`,
		`{"id":"5","method":"process","payload":{"plugin_config":"{not: valid"}}`,
		`{"id":"6","method":"process","payload":"entries"}`,
		``,
		`this is not json`,
	}, "\n")

	var out bytes.Buffer
	server := NewStdioServer(quietPlugin(t, "error-aggregator"), 0)
	require.NoError(t, server.Serve(context.Background(), strings.NewReader(input), &out))

	responses := readResponses(t, out.String())
	require.Len(t, responses, 7)

	var processed models.ProcessResponse
	require.Nil(t, responses["1"].Error)
	require.NoError(t, json.Unmarshal(responses["1"].Result, &processed))
	assert.Equal(t, 2, processed.Result.ProcessedCount)
	assert.Equal(t, len(processed.Findings), processed.Result.FindingCount)

	var info models.InfoResponse
	require.NoError(t, json.Unmarshal(responses["2"].Result, &info))
	assert.Equal(t, "error-aggregator", info.Name)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(responses["3"].Result, &health))
	assert.Equal(t, models.HealthHealthy, health.Status)

	for _, id := range []string{"4", "5", "6", ""} {
		require.NotNil(t, responses[id].Error, "id %q", id)
		assert.Equal(t, "invalid_argument", responses[id].Error.Code, "id %q", id)
		assert.Empty(t, responses[id].Result)
	}
}

func TestStdioServer_InfoNotBlockedByProcess(t *testing.T) {
	mockService := &MockPluginService{}
	release := make(chan struct{})
	mockService.On("Process", mock.Anything, mock.Anything).
		Return(&models.ProcessResponse{}, nil).
		Run(func(mock.Arguments) { <-release })
	mockService.On("GetInfo", mock.Anything, mock.Anything).
		Return(&models.InfoResponse{Name: "p", Version: "1"}, nil)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	served := make(chan error, 1)
	go func() {
		served <- NewStdioServer(mockService, 0).Serve(context.Background(), inR, outW)
		outW.Close()
	}()

	lines := bufio.NewScanner(outR)
	_, err := io.WriteString(inW, `{"id":"slow","method":"process","payload":{}}`+"\n"+`{"id":"fast","method":"info"}`+"\n")
	require.NoError(t, err)

	require.True(t, lines.Scan())
	var first models.RPCResponse
	require.NoError(t, json.Unmarshal(lines.Bytes(), &first))
	assert.Equal(t, "fast", first.ID)

	close(release)
	require.True(t, lines.Scan())
	var second models.RPCResponse
	require.NoError(t, json.Unmarshal(lines.Bytes(), &second))
	assert.Equal(t, "slow", second.ID)

	inW.Close()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after stdin closed")
	}
}

func TestStdioServer_PanicBecomesInternal(t *testing.T) {
	mockService := &MockPluginService{}
	mockService.On("HealthCheck", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("boom")
	})

	var out bytes.Buffer
	err := NewStdioServer(mockService, 0).Serve(context.Background(), strings.NewReader(`{"id":"h","method":"health"}`+"\n"), &out)
	require.NoError(t, err)

	resp := readResponses(t, out.String())["h"]
	require.NotNil(t, resp.Error)
	assert.Equal(t, "internal", resp.Error.Code)
}

func TestStdioServer_LineTooLong(t *testing.T) {
	var out bytes.Buffer
	input := `{"id":"1","method":"process","payload":{"plugin_config":"` + strings.Repeat("x", 256) + `"}}` + "\n"

	err := NewStdioServer(quietPlugin(t, "security-scanner"), 64).Serve(context.Background(), strings.NewReader(input), &out)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}
