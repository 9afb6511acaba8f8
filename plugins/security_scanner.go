package plugins

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/KBesada24/log-analyzer-plugins/models"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// Finding types emitted by the security scanner
const (
	FindingSensitiveData    = "SENSITIVE_DATA_EXPOSURE"
	FindingPublicAccess     = "PUBLIC_ACCESS_CONFIGURED"
	FindingInsecureProtocol = "INSECURE_PROTOCOL"
)

// SensitivePattern is a named expression whose match is secret material
type SensitivePattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`

	re *regexp.Regexp
}

var builtinSensitivePatterns = mustCompilePatterns([]SensitivePattern{
	{Name: "API Key exposure", Pattern: `(?i)api[_-]?key\s*[=:]\s*['"][^'"]+['"]`},
	{Name: "Password exposure", Pattern: `(?i)password\s*[=:]\s*['"][^'"]+['"]`},
	{Name: "Secret exposure", Pattern: `(?i)secret\s*[=:]\s*['"][^'"]+['"]`},
	{Name: "Token exposure", Pattern: `(?i)token\s*[=:]\s*['"][^'"]+['"]`},
	{Name: "Private key exposure", Pattern: `-----BEGIN (RSA |EC |DSA |OPENSSH )?PRIVATE KEY-----`},
})

// Only consulted in strict mode: credentials mentioned without a quoted value.
var looseSensitivePatterns = mustCompilePatterns([]SensitivePattern{
	{Name: "Credential reference", Pattern: `(?i)\b(password|passwd|secret|token|credential|api[_-]?key)s?\s*[=:]\s*\S+`},
	{Name: "Bearer token", Pattern: `(?i)\bbearer\s+[a-z0-9\-._~+/]{16,}=*`},
	{Name: "AWS access key", Pattern: `\b(AKIA|ASIA)[0-9A-Z]{16}\b`},
})

var (
	publicAccessPattern     = regexp.MustCompile(`(?i)(0\.0\.0\.0/0|::/0|\b0\.0\.0\.0\b|\bpublic[_ -]?(access|read|acl|ip|bucket)\b|publicly accessible|"public-read")`)
	insecureProtocolPattern = regexp.MustCompile(`(?i)(\bprotocol\s*[=:]\s*["']?http["']?(\s|,|$)|\bhttp://)`)
)

func mustCompilePatterns(patterns []SensitivePattern) []SensitivePattern {
	for i := range patterns {
		patterns[i].re = regexp.MustCompile(patterns[i].Pattern)
	}
	return patterns
}

type securityScannerConfig struct {
	StrictMode        bool               `yaml:"strict_mode"`
	ScanSensitiveData bool               `yaml:"scan_sensitive_data"`
	CheckCompliance   bool               `yaml:"check_compliance"`
	ExtraPatterns     []SensitivePattern `yaml:"extra_patterns"`
}

// SecurityScanner looks for leaked secrets and insecure settings in log text
type SecurityScanner struct{}

// NewSecurityScanner creates the security-scanner analyzer
func NewSecurityScanner() *SecurityScanner {
	return &SecurityScanner{}
}

// Info describes the security scanner
func (s *SecurityScanner) Info() models.InfoResponse {
	return models.InfoResponse{
		Name:                "security-scanner",
		Version:             "1.0.0",
		Description:         "Scans for security issues and sensitive data exposure",
		Capabilities:        []string{"security_scanning", "sensitive_data_detection", "compliance_checking"},
		SupportedParameters: []string{"strict_mode", "scan_sensitive_data", "check_compliance"},
	}
}

func (s *SecurityScanner) config(batch *Batch) (*securityScannerConfig, []SensitivePattern, error) {
	cfg := &securityScannerConfig{
		ScanSensitiveData: true,
		CheckCompliance:   true,
	}
	info := s.Info()
	if err := DecodeConfig(batch.PluginConfig, batch.Parameters, &info, cfg); err != nil {
		return nil, nil, err
	}

	patterns := append([]SensitivePattern{}, builtinSensitivePatterns...)
	for i, extra := range cfg.ExtraPatterns {
		if strings.TrimSpace(extra.Pattern) == "" {
			return nil, nil, utils.InvalidArgument("extra_patterns[%d]: pattern is required", i)
		}
		re, err := regexp.Compile(extra.Pattern)
		if err != nil {
			return nil, nil, utils.InvalidArgument("extra_patterns[%d]: %v", i, err)
		}
		name := extra.Name
		if name == "" {
			name = fmt.Sprintf("Custom pattern %d", i+1)
		}
		patterns = append(patterns, SensitivePattern{Name: name, Pattern: extra.Pattern, re: re})
	}
	if cfg.StrictMode {
		patterns = append(patterns, looseSensitivePatterns...)
	}
	return cfg, patterns, nil
}

// Analyze implements Analyzer
func (s *SecurityScanner) Analyze(ctx context.Context, batch *Batch) (*Report, error) {
	cfg, patterns, err := s.config(batch)
	if err != nil {
		return nil, err
	}

	findings := make([]models.Finding, 0)
	sensitiveFound := 0

	for i, entry := range batch.Entries {
		if err := checkContext(ctx, i); err != nil {
			return nil, err
		}

		if cfg.ScanSensitiveData {
			if f, ok := scanSensitive(entry, patterns, cfg.StrictMode); ok {
				findings = append(findings, f)
				sensitiveFound++
			}
		}

		if cfg.CheckCompliance {
			findings = append(findings, checkPractices(entry, cfg.StrictMode)...)
		}
	}

	patternsChecked := 0
	if cfg.ScanSensitiveData {
		patternsChecked = len(patterns)
	}

	return &Report{
		Summary:  fmt.Sprintf("Security scan completed: %d security findings in %d entries", len(findings), len(batch.Entries)),
		Findings: findings,
		Metrics: map[string]string{
			"scanned_entries":      strconv.Itoa(len(batch.Entries)),
			"security_findings":    strconv.Itoa(len(findings)),
			"sensitive_data_found": strconv.FormatBool(sensitiveFound > 0),
			"sensitive_entries":    strconv.Itoa(sensitiveFound),
			"patterns_checked":     strconv.Itoa(patternsChecked),
		},
	}, nil
}

// scanSensitive reports the first pattern that matches the entry
func scanSensitive(entry IndexedEntry, patterns []SensitivePattern, strict bool) (models.Finding, bool) {
	for pi, p := range patterns {
		if !p.re.MatchString(entry.Message) {
			continue
		}
		severity := models.SeverityCritical
		// Loose patterns are appended last and only in strict mode.
		if strict && pi >= len(patterns)-len(looseSensitivePatterns) {
			severity = models.SeverityHigh
		}
		return models.Finding{
			Type:     FindingSensitiveData,
			Severity: severity,
			Message:  fmt.Sprintf("Potential %s detected in logs", p.Name),
			Resource: resourceOf(entry.LogEntry),
			Recommendations: []string{
				"Remove sensitive data from logs and configurations",
				"Use environment variables or secret management systems",
				"Implement proper logging filters",
				"Rotate exposed credentials immediately",
			},
			Metadata: map[string]string{
				"pattern_matched": p.Pattern,
				"data_type":       strings.ToLower(p.Name),
				"log_entry":       truncate(redact(entry.Message, patterns), 100),
				"entry_index":     strconv.Itoa(entry.Index),
			},
		}, true
	}
	return models.Finding{}, false
}

// redact blanks every match so the excerpt never repeats the secret
func redact(message string, patterns []SensitivePattern) string {
	for _, p := range patterns {
		message = p.re.ReplaceAllString(message, "[REDACTED]")
	}
	return message
}

func checkPractices(entry IndexedEntry, strict bool) []models.Finding {
	var findings []models.Finding
	resource := resourceOf(entry.LogEntry)

	if publicAccessPattern.MatchString(entry.Message) {
		findings = append(findings, models.Finding{
			Type:     FindingPublicAccess,
			Severity: models.SeverityHigh,
			Message:  "Resource configured with public access",
			Resource: resource,
			Recommendations: []string{
				"Restrict resource access to specific IP ranges",
				"Use security groups and network policies",
				"Implement private networking where possible",
			},
			Metadata: map[string]string{
				"matched":     publicAccessPattern.FindString(entry.Message),
				"entry_index": strconv.Itoa(entry.Index),
			},
		})
	}

	if insecureProtocolPattern.MatchString(entry.Message) {
		severity := models.SeverityMedium
		if strict {
			severity = models.SeverityHigh
		}
		findings = append(findings, models.Finding{
			Type:     FindingInsecureProtocol,
			Severity: severity,
			Message:  "HTTP protocol detected - use HTTPS",
			Resource: resource,
			Recommendations: []string{
				"Use HTTPS instead of HTTP",
				"Configure proper TLS/SSL certificates",
				"Enable encryption in transit",
			},
			Metadata: map[string]string{
				"entry_index": strconv.Itoa(entry.Index),
			},
		})
	}

	return findings
}
