package plugins

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// Finding types emitted by the error aggregator
const (
	FindingHighErrorRate      = "HIGH_ERROR_RATE"
	FindingRepeatedPattern    = "REPEATED_ERROR_PATTERN"
	FindingResourceExhaustion = "RESOURCE_EXHAUSTION"
)

type errorPattern struct {
	re          *regexp.Regexp
	description string
}

// Checked in order; the first match classifies the message.
var commonErrorPatterns = []errorPattern{
	{regexp.MustCompile(`(?i)time(d)?\s?out`), "Timeout occurred"},
	{regexp.MustCompile(`(?i)permission denied|access denied|forbidden`), "Permission denied"},
	{regexp.MustCompile(`(?i)not found|no such`), "Resource not found"},
	{regexp.MustCompile(`(?i)already exists`), "Resource already exists"},
	{regexp.MustCompile(`(?i)authenticat|unauthori[sz]ed|invalid credentials`), "Authentication failed"},
	{regexp.MustCompile(`(?i)connection refused`), "Connection refused"},
	{regexp.MustCompile(`(?i)limit exceeded|rate limit|throttl`), "Limit exceeded"},
}

type capacityRule struct {
	resource        string
	re              *regexp.Regexp
	recommendations []string
}

var capacityRules = []capacityRule{
	{
		resource: "disk",
		re:       regexp.MustCompile(`(?i)\b(disk (is )?full|no space left|file ?system (is )?full|disk quota exceeded|insufficient disk)`),
		recommendations: []string{
			"Free disk space or expand the volume",
			"Rotate and compress old logs and artifacts",
			"Alert on disk usage before it reaches capacity",
		},
	},
	{
		resource: "memory",
		re:       regexp.MustCompile(`(?i)\b(out of memory|oom[- ]?kill(ed|er)?|cannot allocate memory|memory exhausted|heap space)`),
		recommendations: []string{
			"Raise the memory limit or reduce working set size",
			"Check for memory leaks in long-running processes",
			"Review recent changes in allocation patterns",
		},
	},
	{
		resource: "quota",
		re:       regexp.MustCompile(`(?i)\bquota (exceeded|exhausted|reached)`),
		recommendations: []string{
			"Request a quota increase from the provider",
			"Clean up unused resources counted against the quota",
		},
	},
}

var (
	numberToken = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
	uuidToken   = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	hexToken    = regexp.MustCompile(`(?i)\b0x[0-9a-f]+\b`)
)

type errorAggregatorConfig struct {
	MinSeverity     string `yaml:"min_severity"`
	GroupByType     bool   `yaml:"group_by_type"`
	IncludeWarnings bool   `yaml:"include_warnings"`
	RepeatThreshold int    `yaml:"repeat_threshold"`
}

// ErrorAggregator counts errors and warnings, groups recurring error
// messages and flags capacity exhaustion.
type ErrorAggregator struct{}

// NewErrorAggregator creates the error-aggregator analyzer
func NewErrorAggregator() *ErrorAggregator {
	return &ErrorAggregator{}
}

// Info describes the error aggregator
func (a *ErrorAggregator) Info() models.InfoResponse {
	return models.InfoResponse{
		Name:                "error-aggregator",
		Version:             "1.0.0",
		Description:         "Aggregates error entries, detects recurring error patterns and capacity exhaustion",
		Capabilities:        []string{"error_analysis", "pattern_detection", "frequency_analysis", "capacity_detection"},
		SupportedParameters: []string{"min_severity", "group_by_type", "include_warnings"},
	}
}

func (a *ErrorAggregator) config(batch *Batch) (*errorAggregatorConfig, error) {
	cfg := &errorAggregatorConfig{
		GroupByType:     true,
		IncludeWarnings: true,
		RepeatThreshold: 1,
	}
	info := a.Info()
	if err := DecodeConfig(batch.PluginConfig, batch.Parameters, &info, cfg); err != nil {
		return nil, err
	}
	if cfg.MinSeverity != "" {
		if models.SeverityRank(cfg.MinSeverity) == models.SeverityRank("") {
			return nil, utils.InvalidArgument("min_severity %q is not one of CRITICAL, HIGH, MEDIUM, LOW, INFO", cfg.MinSeverity)
		}
	}
	if cfg.RepeatThreshold < 1 {
		cfg.RepeatThreshold = 1
	}
	return cfg, nil
}

type patternCount struct {
	key   string
	count int
	first int
}

type capacityHit struct {
	count   int
	first   int
	example string
}

// Analyze implements Analyzer
func (a *ErrorAggregator) Analyze(ctx context.Context, batch *Batch) (*Report, error) {
	cfg, err := a.config(batch)
	if err != nil {
		return nil, err
	}

	errorCount, warningCount := 0, 0
	patterns := map[string]*patternCount{}
	capacity := map[string]*capacityHit{}

	for i, entry := range batch.Entries {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}

		isError := isErrorLevel(entry.Level)
		isWarning := isWarningLevel(entry.Level)
		switch {
		case isError:
			errorCount++
		case isWarning:
			warningCount++
		}
		if !isError && !(isWarning && cfg.IncludeWarnings) {
			continue
		}

		if isError {
			key := patternKey(entry.Message, cfg.GroupByType)
			if pc, ok := patterns[key]; ok {
				pc.count++
			} else {
				patterns[key] = &patternCount{key: key, count: 1, first: entry.Index}
			}
		}

		for _, rule := range capacityRules {
			if rule.re.MatchString(entry.Message) {
				if hit, ok := capacity[rule.resource]; ok {
					hit.count++
				} else {
					capacity[rule.resource] = &capacityHit{count: 1, first: entry.Index, example: entry.Message}
				}
				break
			}
		}
	}

	findings := make([]models.Finding, 0)

	if errorCount > 0 {
		findings = append(findings, models.Finding{
			Type:     FindingHighErrorRate,
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("Found %d errors in %d analyzed entries", errorCount, len(batch.Entries)),
			Resource: "global",
			Recommendations: []string{
				"Review configuration for syntax errors",
				"Check provider credentials and permissions",
				"Verify network connectivity to upstream services",
			},
			Metadata: map[string]string{
				"error_count": strconv.Itoa(errorCount),
				"error_ratio": strconv.FormatFloat(float64(errorCount)/float64(len(batch.Entries)), 'f', 4, 64),
			},
		})
	}

	for _, rule := range capacityRules {
		hit, ok := capacity[rule.resource]
		if !ok {
			continue
		}
		findings = append(findings, models.Finding{
			Type:            FindingResourceExhaustion,
			Severity:        models.SeverityCritical,
			Message:         fmt.Sprintf("Resource exhaustion on %s reported %d times", rule.resource, hit.count),
			Resource:        rule.resource,
			Recommendations: append([]string{}, rule.recommendations...),
			Metadata: map[string]string{
				"occurrences": strconv.Itoa(hit.count),
				"first_entry": strconv.Itoa(hit.first),
				"example":     truncate(hit.example, 100),
			},
		})
	}

	repeated := make([]*patternCount, 0, len(patterns))
	for _, key := range sortedKeys(patterns) {
		if pc := patterns[key]; pc.count > cfg.RepeatThreshold {
			repeated = append(repeated, pc)
		}
	}
	sortPatterns(repeated)
	for _, pc := range repeated {
		findings = append(findings, models.Finding{
			Type:     FindingRepeatedPattern,
			Severity: repeatSeverity(pc.count),
			Message:  fmt.Sprintf("Error pattern '%s' occurred %d times", pc.key, pc.count),
			Resource: "global",
			Recommendations: []string{
				"Investigate the root cause of this recurring error",
				"Check resource dependencies and ordering",
				"Review variable definitions and types",
			},
			Metadata: map[string]string{
				"pattern":     pc.key,
				"occurrences": strconv.Itoa(pc.count),
				"first_entry": strconv.Itoa(pc.first),
			},
		})
	}

	findings = filterBySeverity(findings, cfg.MinSeverity)

	return &Report{
		Summary:  summarizeErrors(len(batch.Entries), errorCount, warningCount, len(repeated)),
		Findings: findings,
		Metrics: map[string]string{
			"total_entries":         strconv.Itoa(batch.Submitted),
			"error_count":           strconv.Itoa(errorCount),
			"warning_count":         strconv.Itoa(warningCount),
			"unique_error_patterns": strconv.Itoa(len(patterns)),
			"capacity_events":       strconv.Itoa(len(capacity)),
		},
	}, nil
}

// patternKey classifies a message against the common patterns. Unclassified
// messages are grouped by their normalized text when grouping by type,
// otherwise every message groups by its normalized text.
func patternKey(message string, byType bool) string {
	if byType {
		for _, p := range commonErrorPatterns {
			if p.re.MatchString(message) {
				return p.description
			}
		}
	}
	return normalizeMessage(message)
}

// normalizeMessage replaces ids and numbers with placeholders
func normalizeMessage(message string) string {
	pattern := uuidToken.ReplaceAllString(message, "[UUID]")
	pattern = hexToken.ReplaceAllString(pattern, "[HEX]")
	pattern = numberToken.ReplaceAllString(pattern, "[NUMBER]")
	return strings.Join(strings.Fields(pattern), " ")
}

// sortPatterns orders by descending count, then first appearance
func sortPatterns(p []*patternCount) {
	sort.Slice(p, func(i, j int) bool {
		if p[i].count != p[j].count {
			return p[i].count > p[j].count
		}
		return p[i].first < p[j].first
	})
}

func repeatSeverity(count int) string {
	if count >= 20 {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

func filterBySeverity(findings []models.Finding, min string) []models.Finding {
	if min == "" {
		return findings
	}
	limit := models.SeverityRank(min)
	kept := findings[:0]
	for _, f := range findings {
		if models.SeverityRank(f.Severity) <= limit {
			kept = append(kept, f)
		}
	}
	return kept
}

func summarizeErrors(analyzed, errors, warnings, repeated int) string {
	if analyzed == 0 {
		return "No log entries to analyze"
	}
	summary := fmt.Sprintf("Analyzed %d log entries, found %d errors and %d warnings", analyzed, errors, warnings)
	if repeated > 0 {
		summary += fmt.Sprintf("; %d recurring error patterns", repeated)
	}
	return summary
}

func isErrorLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error", "err", "fatal", "critical", "crit", "panic", "emerg", "alert":
		return true
	}
	return false
}

func isWarningLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning", "warn":
		return true
	}
	return false
}
