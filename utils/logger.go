package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity level of a log entry
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogRecord is one structured line written by the Logger
type LogRecord struct {
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Error     string                 `json:"error,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
}

// Logger represents a structured logger.
// Output goes to stderr unless SetOutput is called; stdout is reserved for
// the stdio plugin transport.
type Logger struct {
	level  LogLevel
	format string // "json" or "text"

	mu  sync.Mutex
	out io.Writer
}

// NewLogger creates a new logger instance
func NewLogger(level, format string) *Logger {
	if format != "json" && format != "text" {
		format = "json"
	}

	return &Logger{
		level:  parseLogLevel(level),
		format: format,
		out:    os.Stderr,
	}
}

// SetOutput redirects log output
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

// Level returns the configured minimum level
func (l *Logger) Level() LogLevel {
	return l.level
}

// parseLogLevel parses string log level to LogLevel enum
func parseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Debug logs a debug message
func (l *Logger) Debug(message string, context ...map[string]interface{}) {
	l.write(DEBUG, message, "", "", "", nil, context...)
}

// Info logs an info message
func (l *Logger) Info(message string, context ...map[string]interface{}) {
	l.write(INFO, message, "", "", "", nil, context...)
}

// Warn logs a warning message
func (l *Logger) Warn(message string, context ...map[string]interface{}) {
	l.write(WARN, message, "", "", "", nil, context...)
}

// Error logs an error message
func (l *Logger) Error(message string, err error, context ...map[string]interface{}) {
	l.write(ERROR, message, errString(err), "", "", nil, context...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// write builds and emits a record. Callers are two frames above.
func (l *Logger) write(level LogLevel, message, errorMsg, traceID, source string, base map[string]interface{}, context ...map[string]interface{}) {
	if level < l.level {
		return
	}

	_, file, line, ok := runtime.Caller(2)
	if ok {
		if idx := strings.LastIndex(file, "/"); idx >= 0 {
			file = file[idx+1:]
		}
	}

	merged := make(map[string]interface{}, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			merged[k] = v
		}
	}

	l.output(LogRecord{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   message,
		TraceID:   traceID,
		Source:    source,
		Context:   merged,
		Error:     errorMsg,
		File:      file,
		Line:      line,
	})
}

func (l *Logger) output(record LogRecord) {
	var line string
	if l.format == "json" {
		data, err := json.Marshal(record)
		if err != nil {
			data, _ = json.Marshal(LogRecord{
				Timestamp: record.Timestamp,
				Level:     record.Level,
				Message:   record.Message,
				Error:     fmt.Sprintf("unencodable log context: %v", err),
			})
		}
		line = string(data)
	} else {
		line = formatText(record)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, line)
}

// formatText renders a record in human-readable form
func formatText(entry LogRecord) string {
	var output strings.Builder
	output.WriteString(fmt.Sprintf("[%s] %s: %s", entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Level, entry.Message))

	if entry.TraceID != "" {
		output.WriteString(fmt.Sprintf(" [trace_id=%s]", entry.TraceID))
	}
	if entry.Source != "" {
		output.WriteString(fmt.Sprintf(" [source=%s]", entry.Source))
	}
	if entry.File != "" && entry.Line > 0 {
		output.WriteString(fmt.Sprintf(" [%s:%d]", entry.File, entry.Line))
	}
	if entry.Error != "" {
		output.WriteString(fmt.Sprintf(" [error=%s]", entry.Error))
	}
	if len(entry.Context) > 0 {
		contextStr, _ := json.Marshal(entry.Context)
		output.WriteString(fmt.Sprintf(" [context=%s]", string(contextStr)))
	}
	return output.String()
}

// WithTraceID adds trace ID to log entry
func (l *Logger) WithTraceID(traceID string) *LoggerWithContext {
	return &LoggerWithContext{logger: l, traceID: traceID}
}

// WithSource adds source information to log entry
func (l *Logger) WithSource(source string) *LoggerWithContext {
	return &LoggerWithContext{logger: l, source: source}
}

// LoggerWithContext represents a logger with additional context
type LoggerWithContext struct {
	logger  *Logger
	traceID string
	source  string
	context map[string]interface{}
}

// WithSource adds source information to log entry (for LoggerWithContext)
func (lwc *LoggerWithContext) WithSource(source string) *LoggerWithContext {
	return &LoggerWithContext{logger: lwc.logger, traceID: lwc.traceID, source: source, context: lwc.context}
}

// WithTraceID adds trace ID to log entry (for LoggerWithContext)
func (lwc *LoggerWithContext) WithTraceID(traceID string) *LoggerWithContext {
	return &LoggerWithContext{logger: lwc.logger, traceID: traceID, source: lwc.source, context: lwc.context}
}

// WithContext adds context to the logger
func (lwc *LoggerWithContext) WithContext(context map[string]interface{}) *LoggerWithContext {
	newContext := make(map[string]interface{}, len(lwc.context)+len(context))
	for k, v := range lwc.context {
		newContext[k] = v
	}
	for k, v := range context {
		newContext[k] = v
	}
	return &LoggerWithContext{logger: lwc.logger, traceID: lwc.traceID, source: lwc.source, context: newContext}
}

// Debug logs a debug message with context
func (lwc *LoggerWithContext) Debug(message string, context ...map[string]interface{}) {
	lwc.logger.write(DEBUG, message, "", lwc.traceID, lwc.source, lwc.context, context...)
}

// Info logs an info message with context
func (lwc *LoggerWithContext) Info(message string, context ...map[string]interface{}) {
	lwc.logger.write(INFO, message, "", lwc.traceID, lwc.source, lwc.context, context...)
}

// Warn logs a warning message with context
func (lwc *LoggerWithContext) Warn(message string, context ...map[string]interface{}) {
	lwc.logger.write(WARN, message, "", lwc.traceID, lwc.source, lwc.context, context...)
}

// Error logs an error message with context
func (lwc *LoggerWithContext) Error(message string, err error, context ...map[string]interface{}) {
	lwc.logger.write(ERROR, message, errString(err), lwc.traceID, lwc.source, lwc.context, context...)
}

// Global logger instance
var (
	globalLogger   *Logger
	globalLoggerMu sync.Mutex
)

// InitLogger initializes the global logger
func InitLogger(level, format string) *Logger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	globalLogger = NewLogger(level, format)
	return globalLogger
}

// GetLogger returns the global logger instance
func GetLogger() *Logger {
	globalLoggerMu.Lock()
	defer globalLoggerMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger("info", "json")
	}
	return globalLogger
}
