package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/models"
)

// Finding types emitted by the performance analyzer
const (
	FindingSlowOperation         = "SLOW_OPERATION"
	FindingPerformanceBottleneck = "PERFORMANCE_BOTTLENECK"
	FindingMultiplePerfIssues    = "MULTIPLE_PERFORMANCE_ISSUES"
	FindingResourceOptimization  = "RESOURCE_OPTIMIZATION"
)

// multipleIssuesAt is the count of slow operations above which the batch gets
// an aggregate finding
const multipleIssuesAt = 3

var (
	bottleneckPattern = regexp.MustCompile(`(?i)\b(slow|timeout|timed out|long[- ]running|took too long|bottleneck|waiting|still creating|latency)\b`)
	intensivePattern  = regexp.MustCompile(`(?i)\b(large|big|memory|cpu|expensive|heavy)\b`)
	elapsedPattern    = regexp.MustCompile(`(?i)\b(?:took|elapsed|duration[=:]?|after|in)\s*(\d+(?:\.\d+)?)\s*(ms|s|m)\b`)
)

type performanceAnalyzerConfig struct {
	ThresholdMs       int  `yaml:"threshold_ms"`
	CheckBottlenecks  bool `yaml:"check_bottlenecks"`
	OptimizeResources bool `yaml:"optimize_resources"`
}

// PerformanceAnalyzer flags slow operations and performance bottlenecks
type PerformanceAnalyzer struct{}

// NewPerformanceAnalyzer creates the performance-analyzer analyzer
func NewPerformanceAnalyzer() *PerformanceAnalyzer {
	return &PerformanceAnalyzer{}
}

// Info describes the performance analyzer
func (a *PerformanceAnalyzer) Info() models.InfoResponse {
	return models.InfoResponse{
		Name:                "performance-analyzer",
		Version:             "1.0.0",
		Description:         "Analyzes performance issues and bottlenecks",
		Capabilities:        []string{"performance_analysis", "bottleneck_detection", "resource_optimization"},
		SupportedParameters: []string{"threshold_ms", "check_bottlenecks", "optimize_resources"},
	}
}

func (a *PerformanceAnalyzer) config(batch *Batch) (*performanceAnalyzerConfig, error) {
	cfg := &performanceAnalyzerConfig{
		ThresholdMs:       1000,
		CheckBottlenecks:  true,
		OptimizeResources: true,
	}
	info := a.Info()
	if err := DecodeConfig(batch.PluginConfig, batch.Parameters, &info, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Analyze implements Analyzer
func (a *PerformanceAnalyzer) Analyze(ctx context.Context, batch *Batch) (*Report, error) {
	cfg, err := a.config(batch)
	if err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0)
	slowOps, intensiveOps := 0, 0
	var maxDuration float64

	for i, entry := range batch.Entries {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}

		operation := truncate(strings.ToLower(entry.Message), 50)

		duration, timed := entryDuration(entry.LogEntry)
		if timed && duration > maxDuration {
			maxDuration = duration
		}

		switch {
		case timed && duration > float64(cfg.ThresholdMs):
			slowOps++
			findings = append(findings, models.Finding{
				Type:     FindingSlowOperation,
				Severity: models.SeverityMedium,
				Message:  fmt.Sprintf("Operation took %s ms, above the %d ms threshold", formatMs(duration), cfg.ThresholdMs),
				Resource: resourceOf(entry.LogEntry),
				Recommendations: []string{
					"Profile the operation to find where time is spent",
					"Check for network latency issues",
					"Consider caching or batching repeated work",
				},
				Metadata: map[string]string{
					"operation":    operation,
					"duration_ms":  formatMs(duration),
					"threshold_ms": strconv.Itoa(cfg.ThresholdMs),
					"entry_index":  strconv.Itoa(entry.Index),
				},
			})
		case cfg.CheckBottlenecks && bottleneckPattern.MatchString(entry.Message):
			slowOps++
			findings = append(findings, models.Finding{
				Type:     FindingPerformanceBottleneck,
				Severity: models.SeverityMedium,
				Message:  "Potential performance bottleneck detected",
				Resource: resourceOf(entry.LogEntry),
				Recommendations: []string{
					"Optimize resource configuration",
					"Check for network latency issues",
					"Review dependency chains",
					"Consider resource scaling",
				},
				Metadata: map[string]string{
					"operation":   operation,
					"keyword":     strings.ToLower(bottleneckPattern.FindString(entry.Message)),
					"entry_index": strconv.Itoa(entry.Index),
				},
			})
		}

		if intensivePattern.MatchString(entry.Message) {
			intensiveOps++
		}
	}

	if slowOps > multipleIssuesAt {
		findings = append(findings, models.Finding{
			Type:     FindingMultiplePerfIssues,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("Found %d potential performance issues", slowOps),
			Resource: "global",
			Recommendations: []string{
				"Conduct comprehensive performance review",
				"Consider parallel execution where possible",
				"Review provider-specific performance guides",
			},
			Metadata: map[string]string{
				"slow_operations": strconv.Itoa(slowOps),
			},
		})
	}

	if cfg.OptimizeResources && intensiveOps > 0 {
		findings = append(findings, models.Finding{
			Type:     FindingResourceOptimization,
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("%d entries mention resource-intensive work", intensiveOps),
			Resource: "global",
			Recommendations: []string{
				"Right-size instances and memory limits",
				"Split large operations into smaller units",
			},
			Metadata: map[string]string{
				"resource_intensive_ops": strconv.Itoa(intensiveOps),
			},
		})
	}

	return &Report{
		Summary:  fmt.Sprintf("Performance analysis: %d performance findings", len(findings)),
		Findings: findings,
		Metrics: map[string]string{
			"total_entries":          strconv.Itoa(batch.Submitted),
			"slow_operations":        strconv.Itoa(slowOps),
			"resource_intensive_ops": strconv.Itoa(intensiveOps),
			"performance_findings":   strconv.Itoa(len(findings)),
			"threshold_ms":           strconv.Itoa(cfg.ThresholdMs),
			"max_duration_ms":        formatMs(maxDuration),
		},
	}, nil
}

// entryDuration reads duration_ms from metadata, falling back to a
// "took 2.5s" style phrase in the message. Unparsable values are ignored.
func entryDuration(entry models.LogEntry) (float64, bool) {
	if raw, ok := entry.Metadata["duration_ms"]; ok {
		if ms, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil && ms >= 0 {
			return ms, true
		}
	}

	m := elapsedPattern.FindStringSubmatch(entry.Message)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "s":
		value *= 1000
	case "m":
		value *= 60 * 1000
	}
	return value, true
}

func formatMs(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}
