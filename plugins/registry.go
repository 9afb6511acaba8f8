package plugins

import (
	"fmt"
	"sort"
)

var analyzers = map[string]func() Analyzer{
	"error-aggregator":     func() Analyzer { return NewErrorAggregator() },
	"security-scanner":     func() Analyzer { return NewSecurityScanner() },
	"performance-analyzer": func() Analyzer { return NewPerformanceAnalyzer() },
}

// Names lists the bundled plugins
func Names() []string {
	names := make([]string, 0, len(analyzers))
	for name := range analyzers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the bundled plugin called name
func New(name string, opts ...Option) (*Plugin, error) {
	build, ok := analyzers[name]
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q (available: %v)", name, Names())
	}
	return NewPlugin(build(), opts...), nil
}
