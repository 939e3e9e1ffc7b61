package pipeline

import (
	"encoding/json"
	"fmt"
)

// Stage names where a failure happened.
type Stage string

const (
	StageResolve Stage = "resolve" // label name lookup
	StageProduce Stage = "produce" // listing or verifying identifiers
	StageConsume Stage = "consume" // per-item action
)

// Failure records one item that could not be handled. ID is a message ID,
// or "page:<token>" / "label:<name>" when the unit lost was not a message.
type Failure struct {
	ID    string `json:"id"`
	Stage Stage  `json:"stage"`
	Err   error  `json:"-"`
}

func (f Failure) MarshalJSON() ([]byte, error) {
	type alias Failure
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		alias
		Error string `json:"error"`
	}{alias(f), msg})
}

// Summary aggregates per-item outcomes. Summaries from different goroutines
// combine with Add; the order of additions does not matter.
type Summary struct {
	Enumerated int       `json:"enumerated"` // identifiers inserted into the buffer
	Processed  int       `json:"processed"`  // Succeeded + Failed
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"` // drained without action after an abort
	Failures   []Failure `json:"failures,omitempty"`
}

// Add folds o into s.
func (s *Summary) Add(o Summary) {
	s.Enumerated += o.Enumerated
	s.Processed += o.Processed
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.Failures = append(s.Failures, o.Failures...)
}

func (s *Summary) succeed() {
	s.Processed++
	s.Succeeded++
}

func (s *Summary) fail(id string, stage Stage, err error) {
	s.Processed++
	s.Failed++
	s.Failures = append(s.Failures, Failure{ID: id, Stage: stage, Err: err})
}

// FatalError reports a run aborted by an unrecoverable condition together
// with whatever was accomplished before the abort.
type FatalError struct {
	Cause   error
	Summary Summary
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("pipeline aborted after %d processed: %v", e.Summary.Processed, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
