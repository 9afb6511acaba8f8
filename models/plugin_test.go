package models

import (
	"encoding/json"
	"testing"

	"github.com/KBesada24/log-analyzer-plugins/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeverityRank(t *testing.T) {
	assert.Less(t, SeverityRank(SeverityCritical), SeverityRank(SeverityHigh))
	assert.Less(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Less(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Less(t, SeverityRank(SeverityLow), SeverityRank(SeverityInfo))
	assert.Equal(t, SeverityRank("high"), SeverityRank(SeverityHigh))
	assert.Greater(t, SeverityRank("SEVERE"), SeverityRank(SeverityInfo))
}

func TestMaxSeverity(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want string
	}{
		{"none", nil, SeverityLow},
		{"info only", []string{SeverityInfo}, SeverityLow},
		{"mixed", []string{SeverityLow, SeverityCritical, SeverityMedium}, SeverityCritical},
		{"lower case", []string{"medium"}, SeverityMedium},
		{"unknown ignored", []string{"SEVERE", SeverityHigh}, SeverityHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxSeverity(tt.in...))
		})
	}
}

func TestSortFindings_Stable(t *testing.T) {
	findings := []Finding{
		{Type: "a", Severity: SeverityLow},
		{Type: "b", Severity: SeverityCritical},
		{Type: "c", Severity: SeverityLow},
		{Type: "d", Severity: "custom"},
		{Type: "e", Severity: SeverityCritical},
	}
	SortFindings(findings)

	var order []string
	for _, f := range findings {
		order = append(order, f.Type)
	}
	assert.Equal(t, []string{"b", "e", "a", "c", "d"}, order)
}

func TestProcessRequest_AbsentCollectionsDecodeEmpty(t *testing.T) {
	var req ProcessRequest
	require.NoError(t, json.Unmarshal([]byte(`{"entries":[{"message":"x"}]}`), &req))

	require.Len(t, req.Entries, 1)
	assert.NotNil(t, req.Parameters)
	assert.NotNil(t, req.Entries[0].Metadata)
	assert.Empty(t, req.PluginConfig)
}

func TestProcessResponse_EmptyAndAbsentEncodeAlike(t *testing.T) {
	var absent ProcessResponse
	require.NoError(t, json.Unmarshal([]byte(`{"result":{"processed_count":0}}`), &absent))

	explicit := ProcessResponse{Findings: []Finding{}, Metrics: map[string]string{}}

	a, err := json.Marshal(absent)
	require.NoError(t, err)
	b, err := json.Marshal(explicit)
	require.NoError(t, err)
	assert.JSONEq(t, string(b), string(a))
}

func TestMessages_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		empty func() interface{}
	}{
		{
			name: "process request",
			value: &ProcessRequest{
				Entries: []LogEntry{
					{Level: "ERROR", Message: "db timeout", Timestamp: "2024-05-01T10:00:00Z", Metadata: map[string]string{"service": "orders"}},
					{Level: "INFO", Message: "retrying", Timestamp: "2024-05-01T10:00:01Z", Metadata: map[string]string{}},
				},
				Parameters:   map[string]string{"threshold_ms": "250"},
				PluginConfig: "top_n: 3\n",
			},
			empty: func() interface{} { return &ProcessRequest{} },
		},
		{
			name: "process response",
			value: &ProcessResponse{
				Result: AnalysisResult{Summary: "1 slow operation", ProcessedCount: 2, FindingCount: 1, SeverityLevel: SeverityHigh},
				Findings: []Finding{{
					Type:            "slow_operation",
					Severity:        SeverityHigh,
					Message:         "checkout took 900ms",
					Resource:        "checkout",
					Recommendations: []string{"add an index"},
					Metadata:        map[string]string{"duration_ms": "900"},
				}},
				Metrics: map[string]string{"p95_ms": "900"},
			},
			empty: func() interface{} { return &ProcessResponse{} },
		},
		{
			name: "info response",
			value: &InfoResponse{
				Name:                "performance-analyzer",
				Version:             "1.0.0",
				Description:         "Finds slow operations",
				Capabilities:        []string{"latency"},
				SupportedParameters: []string{"threshold_ms"},
			},
			empty: func() interface{} { return &InfoResponse{} },
		},
		{
			name:  "health response",
			value: &HealthResponse{Status: HealthDegraded, Timestamp: "2024-05-01T10:00:00Z"},
			empty: func() interface{} { return &HealthResponse{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			require.NoError(t, err)

			decoded := tt.empty()
			require.NoError(t, json.Unmarshal(data, decoded))
			assert.Equal(t, tt.value, decoded)
		})
	}
}

func TestInfoResponse_Supports(t *testing.T) {
	var info InfoResponse
	require.NoError(t, json.Unmarshal([]byte(`{"name":"p","version":"1.0.0","supported_parameters":["strict_mode"]}`), &info))

	assert.True(t, info.Supports("strict_mode"))
	assert.False(t, info.Supports("min_severity"))
	assert.NotNil(t, info.Capabilities)
}

func TestValidationTags(t *testing.T) {
	t.Run("finding requires type and severity", func(t *testing.T) {
		resp := ProcessResponse{Findings: []Finding{{Message: "no type"}}}
		result := utils.ValidateStructResult(resp)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "findings[0].type")
		assert.Contains(t, result.Errors, "findings[0].severity")
	})

	t.Run("negative counts", func(t *testing.T) {
		resp := ProcessResponse{Result: AnalysisResult{ProcessedCount: -1}}
		result := utils.ValidateStructResult(resp)
		assert.Contains(t, result.Errors, "result.processed_count")
	})

	t.Run("health status is a closed set", func(t *testing.T) {
		assert.True(t, utils.ValidateStructResult(HealthResponse{Status: HealthDegraded}).IsValid)
		assert.False(t, utils.ValidateStructResult(HealthResponse{Status: "ok"}).IsValid)
	})

	t.Run("info needs name and version", func(t *testing.T) {
		result := utils.ValidateStructResult(InfoResponse{Name: "p"})
		assert.Contains(t, result.Errors, "version")
	})
}
