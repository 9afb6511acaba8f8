package utils

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// ConnectionPoolConfig holds configuration for HTTP connection pooling
type ConnectionPoolConfig struct {
	MaxIdleConns          int           // Maximum number of idle connections
	MaxIdleConnsPerHost   int           // Maximum number of idle connections per host
	MaxConnsPerHost       int           // Maximum number of connections per host, 0 means unlimited
	IdleConnTimeout       time.Duration // How long an idle connection is kept alive
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration // Zero leaves the deadline to the request context
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	DisableKeepAlives     bool
}

// DefaultConnectionPoolConfig returns settings suited to a single plugin endpoint
func DefaultConnectionPoolConfig() *ConnectionPoolConfig {
	return &ConnectionPoolConfig{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialTimeout:         5 * time.Second,
		KeepAlive:           30 * time.Second,
	}
}

// ConnectionPoolStats holds statistics about connection pool usage
type ConnectionPoolStats struct {
	ActiveRequests int64     `json:"active_requests"`
	TotalRequests  int64     `json:"total_requests"`
	FailedRequests int64     `json:"failed_requests"`
	AverageLatency float64   `json:"average_latency_ms"`
	LastUsed       time.Time `json:"last_used"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConnectionPool is a pooled HTTP client shared by every call to one plugin.
// It never sets a client-wide timeout; each call carries its own deadline.
type ConnectionPool struct {
	client    *http.Client
	transport *http.Transport
	createdAt time.Time

	active       atomic.Int64
	total        atomic.Int64
	failed       atomic.Int64
	totalLatency atomic.Int64

	mu       sync.Mutex
	lastUsed time.Time
}

// NewConnectionPool creates a new connection pool with the given configuration
func NewConnectionPool(config *ConnectionPoolConfig) *ConnectionPool {
	if config == nil {
		config = DefaultConnectionPoolConfig()
	}

	dialer := &net.Dialer{
		Timeout:   config.DialTimeout,
		KeepAlive: config.KeepAlive,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		DisableKeepAlives:     config.DisableKeepAlives,
	}

	now := time.Now()
	return &ConnectionPool{
		client:    &http.Client{Transport: transport},
		transport: transport,
		createdAt: now,
		lastUsed:  now,
	}
}

// Do executes req under ctx using the pooled client
func (cp *ConnectionPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	cp.total.Add(1)
	cp.active.Add(1)
	defer cp.active.Add(-1)

	resp, err := cp.client.Do(req.WithContext(ctx))

	cp.totalLatency.Add(time.Since(start).Milliseconds())
	if err != nil {
		cp.failed.Add(1)
	}
	cp.mu.Lock()
	cp.lastUsed = time.Now()
	cp.mu.Unlock()

	return resp, err
}

// GetStats returns a snapshot of pool statistics
func (cp *ConnectionPool) GetStats() *ConnectionPoolStats {
	cp.mu.Lock()
	lastUsed := cp.lastUsed
	cp.mu.Unlock()

	total := cp.total.Load()
	stats := &ConnectionPoolStats{
		ActiveRequests: cp.active.Load(),
		TotalRequests:  total,
		FailedRequests: cp.failed.Load(),
		LastUsed:       lastUsed,
		CreatedAt:      cp.createdAt,
	}
	if total > 0 {
		stats.AverageLatency = float64(cp.totalLatency.Load()) / float64(total)
	}
	return stats
}

// Close releases idle connections
func (cp *ConnectionPool) Close() {
	cp.transport.CloseIdleConnections()
}
