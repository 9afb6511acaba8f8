package plugins

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// LoadSample is one reading of host resource usage
type LoadSample struct {
	MemoryUsedPercent float64
	CPUPercent        float64
	MemoryLimit       float64
	CPULimit          float64
}

// Overloaded reports whether either reading is over its limit
func (s LoadSample) Overloaded() bool {
	return (s.MemoryLimit > 0 && s.MemoryUsedPercent >= s.MemoryLimit) ||
		(s.CPULimit > 0 && s.CPUPercent >= s.CPULimit)
}

// LoadProbe reports host load for HealthCheck. Implementations must return quickly.
type LoadProbe interface {
	Sample() (LoadSample, error)
}

// SystemLoadProbe reads memory and CPU usage through gopsutil. Readings are
// cached for the configured interval so health checks stay cheap.
type SystemLoadProbe struct {
	MemoryLimit float64
	CPULimit    float64
	Interval    time.Duration

	mu      sync.Mutex
	last    LoadSample
	lastErr error
	at      time.Time
}

// NewSystemLoadProbe returns a probe that reports degraded above 90% memory or 95% CPU
func NewSystemLoadProbe() *SystemLoadProbe {
	return &SystemLoadProbe{
		MemoryLimit: 90,
		CPULimit:    95,
		Interval:    time.Second,
	}
}

// Sample returns the cached reading, refreshing it when stale
func (p *SystemLoadProbe) Sample() (LoadSample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.at.IsZero() && time.Since(p.at) < p.Interval {
		return p.last, p.lastErr
	}

	sample := LoadSample{MemoryLimit: p.MemoryLimit, CPULimit: p.CPULimit}
	vm, err := mem.VirtualMemory()
	if err == nil {
		sample.MemoryUsedPercent = vm.UsedPercent
		// Interval 0 compares against the previous call and never blocks.
		if pct, cerr := cpu.Percent(0, false); cerr == nil && len(pct) > 0 {
			sample.CPUPercent = pct[0]
		}
	}

	p.last, p.lastErr, p.at = sample, err, time.Now()
	return sample, err
}
