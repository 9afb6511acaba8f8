package plugins

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// FindingSkippedEntry reports entries that could not be analyzed
const FindingSkippedEntry = "SKIPPED_ENTRY"

// maxListedSkips bounds the index list carried in SKIPPED_ENTRY metadata
const maxListedSkips = 20

// Analyzer is the plugin-specific part of a plugin: its identity and the
// analysis it runs over a batch.
type Analyzer interface {
	Info() models.InfoResponse
	Analyze(ctx context.Context, batch *Batch) (*Report, error)
}

// IndexedEntry is an entry together with its position in the submitted batch
type IndexedEntry struct {
	Index int
	models.LogEntry
}

// Batch is the analyzable part of a ProcessRequest. Entries without a message
// have already been removed.
type Batch struct {
	Entries      []IndexedEntry
	Parameters   map[string]string
	PluginConfig string
	Submitted    int
}

// Report is what an Analyzer produces for one batch
type Report struct {
	Summary  string
	Findings []models.Finding
	Metrics  map[string]string
}

// Recorder receives call outcomes. The metrics package implements it.
type Recorder interface {
	ObserveCall(plugin, operation string, code utils.FaultCode, elapsed time.Duration)
	SetInflight(plugin string, n int64)
}

// Option configures a Plugin
type Option func(*Plugin)

// WithLogger sets the logger
func WithLogger(logger *utils.Logger) Option {
	return func(p *Plugin) { p.logger = logger }
}

// WithLoadProbe sets the probe consulted by HealthCheck
func WithLoadProbe(probe LoadProbe) Option {
	return func(p *Plugin) { p.probe = probe }
}

// WithDegradedThreshold sets how many in-flight Process calls turn health to degraded
func WithDegradedThreshold(n int) Option {
	return func(p *Plugin) {
		if n > 0 {
			p.degradedAt = int64(n)
		}
	}
}

// WithRecorder sets the call recorder
func WithRecorder(r Recorder) Option {
	return func(p *Plugin) { p.recorder = r }
}

// Plugin serves Process, GetInfo and HealthCheck for one Analyzer. It is
// safe for concurrent use; the only state shared between calls is the
// in-flight counter and the ready flag.
type Plugin struct {
	analyzer   Analyzer
	info       models.InfoResponse
	logger     *utils.Logger
	recovery   *utils.RecoveryHandler
	probe      LoadProbe
	recorder   Recorder
	degradedAt int64

	inflight atomic.Int64
	ready    atomic.Bool
}

// NewPlugin wraps analyzer. Its InfoResponse is captured once here.
func NewPlugin(analyzer Analyzer, opts ...Option) *Plugin {
	p := &Plugin{
		analyzer:   analyzer,
		degradedAt: 32,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = utils.GetLogger()
	}
	p.recovery = utils.NewRecoveryHandler(p.logger)

	info := analyzer.Info()
	info.Normalize()
	p.info = info
	p.ready.Store(true)
	return p
}

// Name returns the plugin name from its InfoResponse
func (p *Plugin) Name() string {
	return p.info.Name
}

// SetReady toggles whether Process is served. A plugin that is not ready
// answers Process with unavailable and reports unhealthy.
func (p *Plugin) SetReady(ready bool) {
	p.ready.Store(ready)
}

// Inflight returns the number of Process calls currently running
func (p *Plugin) Inflight() int64 {
	return p.inflight.Load()
}

// RecoveryStats reports how many analyzer panics have been recovered
func (p *Plugin) RecoveryStats() map[string]interface{} {
	return p.recovery.GetStats()
}

// Process runs the analyzer over req
func (p *Plugin) Process(ctx context.Context, req *models.ProcessRequest) (resp *models.ProcessResponse, err error) {
	start := time.Now()
	defer func() { p.observe("process", start, err) }()

	if !p.ready.Load() {
		return nil, utils.Unavailable(fmt.Sprintf("plugin %s is not ready", p.info.Name))
	}
	var normalized models.ProcessRequest
	if req != nil {
		normalized = *req
		normalized.Entries = append([]models.LogEntry(nil), req.Entries...)
	}
	normalized.Normalize()

	p.trackInflight(1)
	defer p.trackInflight(-1)

	batch, skipped := splitEntries(&normalized)

	var report *Report
	err = p.recovery.Guard("process", func() error {
		var aerr error
		report, aerr = p.analyzer.Analyze(ctx, batch)
		return aerr
	})
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, utils.Internal("analyzer returned no report", nil)
	}

	return p.assemble(batch, skipped, report), nil
}

// GetInfo returns the identity captured at construction
func (p *Plugin) GetInfo(ctx context.Context, _ *models.InfoRequest) (*models.InfoResponse, error) {
	start := time.Now()
	defer p.observe("info", start, nil)

	info := p.info
	info.Capabilities = append([]string{}, p.info.Capabilities...)
	info.SupportedParameters = append([]string{}, p.info.SupportedParameters...)
	return &info, nil
}

// HealthCheck reports liveness without touching in-flight Process calls
func (p *Plugin) HealthCheck(ctx context.Context, _ *models.HealthRequest) (*models.HealthResponse, error) {
	start := time.Now()
	defer p.observe("health", start, nil)

	return &models.HealthResponse{
		Status:    p.status(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

func (p *Plugin) status() string {
	if !p.ready.Load() {
		return models.HealthUnhealthy
	}
	if p.inflight.Load() >= p.degradedAt {
		return models.HealthDegraded
	}
	if p.probe != nil {
		if sample, err := p.probe.Sample(); err == nil && sample.Overloaded() {
			return models.HealthDegraded
		}
	}
	return models.HealthHealthy
}

func (p *Plugin) trackInflight(delta int64) {
	n := p.inflight.Add(delta)
	if p.recorder != nil {
		p.recorder.SetInflight(p.info.Name, n)
	}
}

func (p *Plugin) observe(operation string, start time.Time, err error) {
	if p.recorder != nil {
		p.recorder.ObserveCall(p.info.Name, operation, utils.FaultCodeOf(err), time.Since(start))
	}
}

// splitEntries separates analyzable entries from ones with no message
func splitEntries(req *models.ProcessRequest) (*Batch, []int) {
	batch := &Batch{
		Entries:      make([]IndexedEntry, 0, len(req.Entries)),
		Parameters:   req.Parameters,
		PluginConfig: req.PluginConfig,
		Submitted:    len(req.Entries),
	}
	var skipped []int
	for i, entry := range req.Entries {
		if strings.TrimSpace(entry.Message) == "" {
			skipped = append(skipped, i)
			continue
		}
		batch.Entries = append(batch.Entries, IndexedEntry{Index: i, LogEntry: entry})
	}
	return batch, skipped
}

func (p *Plugin) assemble(batch *Batch, skipped []int, report *Report) *models.ProcessResponse {
	findings := append([]models.Finding{}, report.Findings...)
	if len(skipped) > 0 {
		findings = append(findings, skippedFinding(skipped))
	}
	for i := range findings {
		findings[i].Normalize()
	}
	models.SortFindings(findings)

	metrics := make(map[string]string, len(report.Metrics)+1)
	for k, v := range report.Metrics {
		metrics[k] = v
	}
	metrics["skipped_entries"] = strconv.Itoa(len(skipped))

	severities := make([]string, 0, len(findings))
	for _, f := range findings {
		severities = append(severities, f.Severity)
	}

	resp := &models.ProcessResponse{
		Result: models.AnalysisResult{
			Summary:        report.Summary,
			ProcessedCount: len(batch.Entries),
			FindingCount:   len(findings),
			SeverityLevel:  models.MaxSeverity(severities...),
		},
		Findings: findings,
		Metrics:  metrics,
	}
	resp.Normalize()
	return resp
}

func skippedFinding(skipped []int) models.Finding {
	listed := skipped
	if len(listed) > maxListedSkips {
		listed = listed[:maxListedSkips]
	}
	indexes := make([]string, len(listed))
	for i, idx := range listed {
		indexes[i] = strconv.Itoa(idx)
	}

	return models.Finding{
		Type:     FindingSkippedEntry,
		Severity: models.SeverityInfo,
		Message:  fmt.Sprintf("%d log entries had no message and were not analyzed", len(skipped)),
		Resource: "batch",
		Recommendations: []string{
			"Ensure the log shipper populates the message field",
		},
		Metadata: map[string]string{
			"skipped_count": strconv.Itoa(len(skipped)),
			"entry_indexes": strings.Join(indexes, ","),
		},
	}
}

// sortedKeys returns map keys in order, for deterministic iteration
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate shortens s to n bytes, marking the cut with "..."
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// resourceOf returns the entry's resource metadata or "unknown"
func resourceOf(entry models.LogEntry) string {
	if r := strings.TrimSpace(entry.Metadata["resource"]); r != "" {
		return r
	}
	return "unknown"
}

// checkContext is called periodically by analyzers over large batches
func checkContext(ctx context.Context, i int) error {
	if i%256 != 0 {
		return nil
	}
	return ctx.Err()
}
