package models

import (
	"encoding/json"
	"sort"
	"strings"
)

// Health states a plugin may report. Any other value is a protocol violation.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Recommended severity vocabulary. Severity is free text on the wire; these
// values are the ones the bundled plugins emit and the host knows how to rank.
const (
	SeverityCritical = "CRITICAL"
	SeverityHigh     = "HIGH"
	SeverityMedium   = "MEDIUM"
	SeverityLow      = "LOW"
	SeverityInfo     = "INFO"
)

var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
	SeverityInfo:     4,
}

// SeverityRank orders severities from most to least urgent. Unknown labels
// sort after every known one.
func SeverityRank(severity string) int {
	if rank, ok := severityRank[strings.ToUpper(severity)]; ok {
		return rank
	}
	return len(severityRank)
}

// MaxSeverity returns the most urgent of the given severities, or LOW when
// none are given.
func MaxSeverity(severities ...string) string {
	best := SeverityLow
	for _, s := range severities {
		if SeverityRank(s) < SeverityRank(best) {
			best = strings.ToUpper(s)
		}
	}
	return best
}

// LogEntry is one unit of log data submitted for analysis
type LogEntry struct {
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// ProcessRequest is a single analysis invocation
type ProcessRequest struct {
	Entries      []LogEntry        `json:"entries"`
	Parameters   map[string]string `json:"parameters"`
	PluginConfig string            `json:"plugin_config"`
}

// Finding is one discrete issue produced by analysis
type Finding struct {
	Type            string            `json:"type" validate:"required"`
	Severity        string            `json:"severity" validate:"required"`
	Message         string            `json:"message"`
	Resource        string            `json:"resource"`
	Recommendations []string          `json:"recommendations"`
	Metadata        map[string]string `json:"metadata"`
}

// AnalysisResult summarizes one Process call
type AnalysisResult struct {
	Summary        string `json:"summary"`
	ProcessedCount int    `json:"processed_count" validate:"gte=0"`
	FindingCount   int    `json:"finding_count" validate:"gte=0"`
	SeverityLevel  string `json:"severity_level"`
}

// ProcessResponse is the result of one Process call
type ProcessResponse struct {
	Result   AnalysisResult    `json:"result"`
	Findings []Finding         `json:"findings" validate:"dive"`
	Metrics  map[string]string `json:"metrics"`
}

// InfoRequest carries no fields; it exists so every operation has the same shape.
type InfoRequest struct{}

// InfoResponse describes a plugin's identity and capabilities
type InfoResponse struct {
	Name                string   `json:"name" validate:"required"`
	Version             string   `json:"version" validate:"required"`
	Description         string   `json:"description"`
	Capabilities        []string `json:"capabilities"`
	SupportedParameters []string `json:"supported_parameters"`
}

// Supports reports whether key is one of the declared parameters.
func (r *InfoResponse) Supports(key string) bool {
	for _, p := range r.SupportedParameters {
		if p == key {
			return true
		}
	}
	return false
}

// HealthRequest carries no fields.
type HealthRequest struct{}

// HealthResponse is the answer to a liveness probe
type HealthResponse struct {
	Status    string `json:"status" validate:"required,oneof=healthy degraded unhealthy"`
	Timestamp string `json:"timestamp"`
}

// Normalize replaces nil maps and slices with empty ones so that absent and
// empty values encode identically.
func (e *LogEntry) Normalize() {
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
}

// Normalize replaces nil collections with empty ones.
func (r *ProcessRequest) Normalize() {
	if r.Entries == nil {
		r.Entries = []LogEntry{}
	}
	for i := range r.Entries {
		r.Entries[i].Normalize()
	}
	if r.Parameters == nil {
		r.Parameters = map[string]string{}
	}
}

// Normalize replaces nil collections with empty ones.
func (f *Finding) Normalize() {
	if f.Recommendations == nil {
		f.Recommendations = []string{}
	}
	if f.Metadata == nil {
		f.Metadata = map[string]string{}
	}
}

// Normalize replaces nil collections with empty ones.
func (r *ProcessResponse) Normalize() {
	if r.Findings == nil {
		r.Findings = []Finding{}
	}
	for i := range r.Findings {
		r.Findings[i].Normalize()
	}
	if r.Metrics == nil {
		r.Metrics = map[string]string{}
	}
}

// Normalize replaces nil collections with empty ones.
func (r *InfoResponse) Normalize() {
	if r.Capabilities == nil {
		r.Capabilities = []string{}
	}
	if r.SupportedParameters == nil {
		r.SupportedParameters = []string{}
	}
}

// UnmarshalJSON decodes a ProcessRequest, treating absent collections as empty.
func (r *ProcessRequest) UnmarshalJSON(data []byte) error {
	type plain ProcessRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ProcessRequest(p)
	r.Normalize()
	return nil
}

// UnmarshalJSON decodes a ProcessResponse, treating absent collections as empty.
func (r *ProcessResponse) UnmarshalJSON(data []byte) error {
	type plain ProcessResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ProcessResponse(p)
	r.Normalize()
	return nil
}

// UnmarshalJSON decodes an InfoResponse, treating absent collections as empty.
func (r *InfoResponse) UnmarshalJSON(data []byte) error {
	type plain InfoResponse
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = InfoResponse(p)
	r.Normalize()
	return nil
}

// SortFindings orders findings by severity rank, keeping the original order
// for equal severities.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return SeverityRank(findings[i].Severity) < SeverityRank(findings[j].Severity)
	})
}
