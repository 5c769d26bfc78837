// Package rules implements the transformation and suppression rules applied
// to every alert before correlation. Rules live in a YAML file; the first
// rule whose match block is satisfied wins and evaluation stops there.
package rules

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"alerta/internal/alert"
)

// Rule is a single entry in the rules file. The match block selects alerts;
// the remaining fields overwrite the alert's fields when the rule fires. A
// parser, when named, runs before the field mutators.
type Rule struct {
	// Match maps alert field names to required values. A value may be a
	// scalar or a list; every entry must be satisfied for the rule to
	// fire. An empty match block matches every alert.
	Match map[string]any `yaml:"match"`

	// Parser names a registered parser to run against the matched alert.
	Parser string `yaml:"parser"`

	// Suppress discards the matched alert: no persistence, no publish.
	Suppress bool `yaml:"suppress"`

	Event            string   `yaml:"event"`
	Resource         string   `yaml:"resource"`
	Severity         string   `yaml:"severity"`
	Group            string   `yaml:"group"`
	Value            string   `yaml:"value"`
	Text             string   `yaml:"text"`
	Environment      []string `yaml:"environment"`
	Service          []string `yaml:"service"`
	Tags             []string `yaml:"tags"`
	CorrelatedEvents []string `yaml:"correlated_events"`
	ThresholdInfo    string   `yaml:"threshold_info"`
}

// Engine evaluates the rules file against alerts. The parsed rule set is
// cached and refreshed whenever the file's modification time changes, so
// edits become effective on the next message without a restart.
type Engine struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	modTime time.Time
	rules   []Rule
}

// New returns an Engine reading rules from path. An empty path disables
// rule processing entirely.
func New(path string, logger *slog.Logger) *Engine {
	return &Engine{path: path, logger: logger}
}

// Apply evaluates the rule set against a and applies the first matching
// rule. It reports whether the alert is suppressed and must be dropped.
// Alerts matching no rule pass through unchanged.
func (e *Engine) Apply(a *alert.Alert) bool {
	if e == nil || e.path == "" {
		return false
	}
	for _, r := range e.current() {
		if !r.matches(a) {
			continue
		}
		if r.Suppress {
			return true
		}
		if r.Parser != "" {
			e.runParser(r.Parser, a)
		}
		r.mutate(a)
		return false
	}
	return false
}

// current returns the rule set effective for this message. The cache is
// keyed on the file's modification time; a failed stat, read or parse is
// logged and yields an empty rule set for this message without touching
// the cache key, so the next message retries the load.
func (e *Engine) current() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	fi, err := os.Stat(e.path)
	if err != nil {
		e.logger.Error("rules: cannot stat rules file", slog.String("path", e.path), slog.Any("error", err))
		return nil
	}
	if fi.ModTime().Equal(e.modTime) {
		return e.rules
	}

	data, err := os.ReadFile(e.path)
	if err != nil {
		e.logger.Error("rules: cannot read rules file", slog.String("path", e.path), slog.Any("error", err))
		return nil
	}
	var loaded []Rule
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		e.logger.Error("rules: cannot parse rules file", slog.String("path", e.path), slog.Any("error", err))
		return nil
	}

	e.rules = loaded
	e.modTime = fi.ModTime()
	e.logger.Info("rules: rule set loaded", slog.String("path", e.path), slog.Int("count", len(loaded)))
	return e.rules
}

// matches reports whether every entry of the match block is satisfied by a.
// An empty block matches unconditionally.
func (r Rule) matches(a *alert.Alert) bool {
	for field, want := range r.Match {
		if !fieldMatches(a, field, want) {
			return false
		}
	}
	return true
}

// fieldMatches compares one match entry against the alert. Scalar fields
// compare by equality against the value or any element of a list value;
// list fields require every listed value to be present. A match on an
// unknown field never fires.
func fieldMatches(a *alert.Alert, field string, want any) bool {
	switch field {
	case "resource":
		return scalarMatch(a.Resource, want)
	case "event":
		return scalarMatch(a.Event, want)
	case "severity":
		return scalarMatch(string(a.Severity), want)
	case "group":
		return scalarMatch(a.Group, want)
	case "value":
		return scalarMatch(a.Value, want)
	case "text":
		return scalarMatch(a.Text, want)
	case "summary":
		return scalarMatch(a.Summary, want)
	case "origin":
		return scalarMatch(a.Origin, want)
	case "type":
		return scalarMatch(a.Type, want)
	case "environment":
		return listMatch(a.Environment, want)
	case "service":
		return listMatch(a.Service, want)
	case "tags":
		return listMatch(a.Tags, want)
	default:
		return false
	}
}

func scalarMatch(got string, want any) bool {
	switch w := want.(type) {
	case []any:
		for _, item := range w {
			if got == fmt.Sprint(item) {
				return true
			}
		}
		return false
	default:
		return got == fmt.Sprint(w)
	}
}

func listMatch(got []string, want any) bool {
	for _, item := range listValues(want) {
		if !slices.Contains(got, item) {
			return false
		}
	}
	return true
}

// listValues normalises a match value to a string slice. YAML scalars
// arrive as string, int or bool; lists arrive as []any.
func listValues(want any) []string {
	switch w := want.(type) {
	case []any:
		out := make([]string, 0, len(w))
		for _, item := range w {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return []string{fmt.Sprint(w)}
	}
}

// mutate overwrites the alert's fields with the rule's non-empty mutators.
// Changing severity recomputes the derived severity code.
func (r Rule) mutate(a *alert.Alert) {
	if r.Event != "" {
		a.Event = r.Event
	}
	if r.Resource != "" {
		a.Resource = r.Resource
	}
	if r.Severity != "" {
		a.Severity = alert.Severity(r.Severity)
		a.SeverityCode = a.Severity.Code()
	}
	if r.Group != "" {
		a.Group = r.Group
	}
	if r.Value != "" {
		a.Value = r.Value
	}
	if r.Text != "" {
		a.Text = r.Text
	}
	if len(r.Environment) > 0 {
		a.Environment = slices.Clone(r.Environment)
	}
	if len(r.Service) > 0 {
		a.Service = slices.Clone(r.Service)
	}
	if len(r.Tags) > 0 {
		a.Tags = slices.Clone(r.Tags)
	}
	if len(r.CorrelatedEvents) > 0 {
		a.CorrelatedEvents = slices.Clone(r.CorrelatedEvents)
	}
	if r.ThresholdInfo != "" {
		a.ThresholdInfo = r.ThresholdInfo
	}
}

func (e *Engine) runParser(name string, a *alert.Alert) {
	fn, ok := lookupParser(name)
	if !ok {
		e.logger.Warn("rules: unknown parser", slog.String("parser", name))
		return
	}
	if err := fn(a); err != nil {
		e.logger.Warn("rules: parser failed", slog.String("parser", name), slog.Any("error", err))
	}
}
