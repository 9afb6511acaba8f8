package benchmarks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/handlers"
	"github.com/KBesada24/log-analyzer-plugins/middleware"
	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/services"
	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func quietLogger() *utils.Logger {
	logger := utils.NewLogger("error", "json")
	logger.SetOutput(io.Discard)
	return logger
}

// makeBatch builds a mixed batch of n entries
func makeBatch(n int) *models.ProcessRequest {
	templates := []models.LogEntry{
		{Level: "ERROR", Message: "connection refused to db-%d"},
		{Level: "WARN", Message: "request took %d ms", Metadata: map[string]string{"duration_ms": "1500"}},
		{Level: "INFO", Message: "user login ok for id %d"},
		{Level: "ERROR", Message: "password=hunter%d rejected"},
		{Level: "DEBUG", Message: "cache miss %d"},
	}
	req := &models.ProcessRequest{}
	for i := 0; i < n; i++ {
		t := templates[i%len(templates)]
		req.Entries = append(req.Entries, models.LogEntry{
			Level:     t.Level,
			Message:   fmt.Sprintf(t.Message, i),
			Timestamp: time.Unix(int64(i), 0).UTC().Format(time.RFC3339),
			Metadata:  t.Metadata,
		})
	}
	req.Normalize()
	return req
}

// setupBenchmarkApp creates a Fiber app serving name the way the server does
func setupBenchmarkApp(b *testing.B, name string) *fiber.App {
	b.Helper()
	logger := quietLogger()
	plugin, err := plugins.New(name, plugins.WithLogger(logger))
	require.NoError(b, err)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})
	app.Use(middleware.CorrelationID())
	app.Use(middleware.RequestValidation())
	handlers.NewPluginHandler(plugin, plugin.Name(), nil, 30*time.Second).RegisterRoutes(app.Group("/v1"))
	return app
}

func BenchmarkPluginAnalyze(b *testing.B) {
	for _, name := range plugins.Names() {
		for _, size := range []int{10, 1000} {
			b.Run(fmt.Sprintf("%s/%d", name, size), func(b *testing.B) {
				plugin, err := plugins.New(name, plugins.WithLogger(quietLogger()))
				require.NoError(b, err)
				req := makeBatch(size)
				ctx := context.Background()

				b.ReportAllocs()
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if _, err := plugin.Process(ctx, req); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}

// BenchmarkHealthEndpoint benchmarks the health check endpoint
func BenchmarkHealthEndpoint(b *testing.B) {
	app := setupBenchmarkApp(b, "error-aggregator")

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := app.Test(httptest.NewRequest("GET", "/v1/health", nil))
			if err != nil {
				b.Fatal(err)
			}
			resp.Body.Close()
		}
	})
}

// BenchmarkProcessEndpoint benchmarks a full HTTP Process call
func BenchmarkProcessEndpoint(b *testing.B) {
	app := setupBenchmarkApp(b, "security-scanner")
	body, err := json.Marshal(makeBatch(100))
	require.NoError(b, err)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			req := httptest.NewRequest("POST", "/v1/process", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			if err != nil {
				b.Fatal(err)
			}
			if resp.StatusCode != fiber.StatusOK {
				b.Fatalf("unexpected status %d", resp.StatusCode)
			}
			resp.Body.Close()
		}
	})
}

// BenchmarkRateLimitingMiddleware benchmarks the Process admission limiter
func BenchmarkRateLimitingMiddleware(b *testing.B) {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Post("/process", middleware.ProcessRateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: 1e6,
		BurstSize:         1000,
	}), func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			resp, err := app.Test(httptest.NewRequest("POST", "/process", nil))
			if err != nil {
				b.Fatal(err)
			}
			resp.Body.Close()
		}
	})
}

// BenchmarkStdioServer benchmarks request lines through the stdio transport
func BenchmarkStdioServer(b *testing.B) {
	plugin, err := plugins.New("performance-analyzer", plugins.WithLogger(quietLogger()))
	require.NoError(b, err)

	payload, err := json.Marshal(makeBatch(50))
	require.NoError(b, err)
	line, err := json.Marshal(models.RPCRequest{ID: "1", Method: models.MethodProcess, Payload: payload})
	require.NoError(b, err)

	var input bytes.Buffer
	for i := 0; i < b.N; i++ {
		input.Write(line)
		input.WriteByte('\n')
	}

	b.ResetTimer()
	server := handlers.NewStdioServer(plugin, handlers.DefaultMaxLineBytes)
	if err := server.Serve(context.Background(), &input, io.Discard); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkInvoker measures the host-side call chain overhead
func BenchmarkInvoker(b *testing.B) {
	plugin, err := plugins.New("error-aggregator", plugins.WithLogger(quietLogger()))
	require.NoError(b, err)
	invoker := services.NewInvoker(plugin, services.DefaultInvokerConfig("bench"), nil, quietLogger())
	req := makeBatch(10)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := invoker.Process(ctx, req); err != nil {
				b.Fatal(err)
			}
		}
	})
}

// BenchmarkJSONSerialization benchmarks encoding a Process response
func BenchmarkJSONSerialization(b *testing.B) {
	plugin, err := plugins.New("security-scanner", plugins.WithLogger(quietLogger()))
	require.NoError(b, err)
	resp, err := plugin.Process(context.Background(), makeBatch(200))
	require.NoError(b, err)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := json.Marshal(resp); err != nil {
				b.Fatal(err)
			}
		}
	})
}
