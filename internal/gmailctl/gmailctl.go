// Package gmailctl resolves rules from a compiled gmailctl configuration
// into Gmail search queries, so a bulk action can target exactly what an
// existing filter matches.
package gmailctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

// Export holds the filters of the JSON payload produced by
// `gmailctl compile --format=json`.
type Export struct {
	Filters []Filter `json:"filters"`
}

// Filter represents a single Gmail filter definition.
type Filter struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Criteria FilterCriteria `json:"criteria"`
}

// FilterCriteria captures the subset of Gmail search predicates we replay
// as a search query.
type FilterCriteria struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Query   string `json:"query,omitempty"`
	List    string `json:"list,omitempty"`
}

// ErrRuleNotFound is returned by Export.Query for an unknown rule name.
var ErrRuleNotFound = errors.New("gmailctl rule not found")

// Runner shells out to the gmailctl binary to obtain compiled filters.
type Runner struct {
	Binary    string
	ConfigDir string
}

// ExportFilters invokes gmailctl and parses the resulting JSON export.
func (r Runner) ExportFilters(ctx context.Context) (Export, error) {
	bin := r.Binary
	if bin == "" {
		bin = "gmailctl"
	}
	args := []string{"compile", "--format=json"}
	if strings.TrimSpace(r.ConfigDir) != "" {
		args = append(args, "--config", r.ConfigDir)
	}
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 - binary determined by user input
	// stdout carries the JSON; warnings on stderr must not reach the decoder
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Export{}, fmt.Errorf("run gmailctl: %w (stderr: %s)", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Export{}, fmt.Errorf("run gmailctl: %w", err)
	}
	var export Export
	if decodeErr := json.Unmarshal(out, &export); decodeErr != nil {
		return Export{}, fmt.Errorf("decode gmailctl output: %w", decodeErr)
	}
	if len(export.Filters) == 0 {
		return Export{}, errors.New("gmailctl returned no filters")
	}
	return export, nil
}

// Query returns the search query equivalent to the criteria of the filter
// whose name or ID equals rule.
func (e Export) Query(rule string) (gc.Query, error) {
	for _, f := range e.Filters {
		if f.Name != rule && f.ID != rule {
			continue
		}
		q := f.Criteria.searchQuery()
		if q == "" {
			return gc.Query{}, fmt.Errorf("rule %q has no replayable criteria", rule)
		}
		return gc.Query{Raw: q}, nil
	}
	return gc.Query{}, fmt.Errorf("%w: %q", ErrRuleNotFound, rule)
}

// searchQuery renders the criteria in Gmail search syntax.
func (c FilterCriteria) searchQuery() string {
	var parts []string
	for _, p := range []struct{ op, value string }{
		{"from:", c.From},
		{"to:", c.To},
		{"subject:", c.Subject},
		{"list:", c.List},
	} {
		v := strings.TrimSpace(p.value)
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, " \t") {
			v = "(" + v + ")"
		}
		parts = append(parts, p.op+v)
	}
	if q := strings.TrimSpace(c.Query); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

// RuleQuery compiles the gmailctl configuration and resolves rule.
func (r Runner) RuleQuery(ctx context.Context, rule string) (gc.Query, error) {
	export, err := r.ExportFilters(ctx)
	if err != nil {
		return gc.Query{}, err
	}
	return export.Query(rule)
}
