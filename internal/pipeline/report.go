package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const failureDisplayLimit = 20

// Report is the outcome of one run as shown to the user.
type Report struct {
	Command  string        `json:"command"`
	Source   string        `json:"source"`
	Duration time.Duration `json:"duration_ns"`
	Aborted  bool          `json:"aborted"`
	Cause    string        `json:"cause,omitempty"`
	Summary  Summary       `json:"summary"`
}

// NewReport builds a report from Run's results.
func NewReport(job Job, sum Summary, runErr error, elapsed time.Duration) Report {
	rep := Report{
		Command:  job.Command.String(),
		Duration: elapsed,
		Summary:  sum,
	}
	if job.Source != nil {
		rep.Source = job.Source.Describe()
	}
	if runErr != nil {
		rep.Aborted = true
		rep.Cause = runErr.Error()
	}
	return rep
}

// PrintHuman renders a plain-text summary to w (stdout when nil).
func PrintHuman(rep Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	s := rep.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "gmailpipe %s: %s (%s)\n", rep.Command, rep.Source, rep.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "  enumerated %d\n", s.Enumerated)
	fmt.Fprintf(&b, "  processed  %d\n", s.Processed)
	fmt.Fprintf(&b, "  succeeded  %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  failed     %d\n", s.Failed)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, "  skipped    %d\n", s.Skipped)
	}
	if rep.Aborted {
		fmt.Fprintf(&b, "\nAborted: %s\n", rep.Cause)
	}
	if len(s.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for i, f := range s.Failures {
			if i == failureDisplayLimit {
				fmt.Fprintf(&b, "  ... and %d more\n", len(s.Failures)-failureDisplayLimit)
				break
			}
			fmt.Fprintf(&b, "  %-24s %-8s %v\n", f.ID, f.Stage, f.Err)
		}
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// WriteJSON writes rep to a path relative to the working directory.
func WriteJSON(rep Report, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
