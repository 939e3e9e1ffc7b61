package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
)

// Action is what a consumer does with one message ID.
type Action interface {
	Name() string
	Apply(ctx context.Context, id gmail.MessageID) error
}

// TrashAction moves each message to the trash.
type TrashAction struct {
	Client gmail.Client
}

func (TrashAction) Name() string { return "trash" }

func (a TrashAction) Apply(ctx context.Context, id gmail.MessageID) error {
	if err := a.Client.Trash(ctx, id); err != nil {
		return fmt.Errorf("trash %s: %w", id, err)
	}
	return nil
}

// SummaryAction fetches each message and writes a text record of it to Sink.
type SummaryAction struct {
	Client gmail.Client
	Sink   *Sink
}

func (SummaryAction) Name() string { return "summary" }

func (a SummaryAction) Apply(ctx context.Context, id gmail.MessageID) error {
	msg, err := a.Client.GetMessage(ctx, id)
	if err != nil {
		return fmt.Errorf("get %s: %w", id, err)
	}
	return a.Sink.Write(FormatRecord(id, msg))
}

const notFound = "Not found"

// FormatRecord renders one summary record. Missing headers and an empty
// body read "Not found"; records are separated by a blank line.
func FormatRecord(id gmail.MessageID, msg gmail.Message) string {
	field := func(v string) string {
		if v = strings.TrimSpace(v); v == "" {
			return notFound
		}
		return v
	}
	if msg.ID != "" {
		id = msg.ID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Message ID: %s\n", id)
	fmt.Fprintf(&b, "From: %s\n", field(msg.Headers["From"]))
	fmt.Fprintf(&b, "To: %s\n", field(msg.Headers["To"]))
	fmt.Fprintf(&b, "Date: %s\n", field(msg.Headers["Date"]))
	fmt.Fprintf(&b, "Subject: %s\n", field(msg.Headers["Subject"]))
	fmt.Fprintf(&b, "Body: %s\n\n", field(msg.Body))
	return b.String()
}
