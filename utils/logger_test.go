package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogger_LevelFiltering(t *testing.T) {
	out := &syncBuffer{}
	logger := NewLogger("warn", "json")
	logger.SetOutput(out)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"level":"WARN"`)
}

func TestLogger_JSONRecord(t *testing.T) {
	out := &syncBuffer{}
	logger := NewLogger("debug", "json")
	logger.SetOutput(out)

	logger.WithTraceID("trace-1").WithSource("plugin").WithContext(map[string]interface{}{
		"plugin": "error-aggregator",
	}).Error("process failed", errors.New("boom"), map[string]interface{}{"entries": 3})

	var record LogRecord
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out.String())), &record))
	assert.Equal(t, "ERROR", record.Level)
	assert.Equal(t, "process failed", record.Message)
	assert.Equal(t, "trace-1", record.TraceID)
	assert.Equal(t, "plugin", record.Source)
	assert.Equal(t, "boom", record.Error)
	assert.Equal(t, "error-aggregator", record.Context["plugin"])
	assert.Equal(t, float64(3), record.Context["entries"])
	assert.Equal(t, "logger_test.go", record.File)
}

func TestLogger_TextFormat(t *testing.T) {
	out := &syncBuffer{}
	logger := NewLogger("info", "text")
	logger.SetOutput(out)

	logger.WithTraceID("abc").Info("ready")

	line := out.String()
	assert.Contains(t, line, "INFO: ready")
	assert.Contains(t, line, "[trace_id=abc]")
}

func TestLogger_UnknownValuesFallBack(t *testing.T) {
	logger := NewLogger("verbose", "xml")
	assert.Equal(t, INFO, logger.Level())
	assert.Equal(t, "json", logger.format)
}
