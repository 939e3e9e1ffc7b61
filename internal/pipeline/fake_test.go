package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/retry"
)

// fakeClient is a concurrency-safe in-memory mailbox. Hooks run outside the
// lock so they may block.
type fakeClient struct {
	mu sync.Mutex

	// pages[key][token]; key is the label ID or the raw query.
	pages    map[string]map[string]gmail.ListPage
	labels   map[string]gmail.LabelID
	messages map[gmail.MessageID]gmail.Message
	missing  map[gmail.MessageID]bool

	listErr  func(key, token string) error
	metaErr  func(id gmail.MessageID) error
	trashErr func(ctx context.Context, id gmail.MessageID) error

	listCalls map[string]int
	metaCalls map[gmail.MessageID]int
	trashed   map[gmail.MessageID]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		pages:     map[string]map[string]gmail.ListPage{},
		labels:    map[string]gmail.LabelID{},
		messages:  map[gmail.MessageID]gmail.Message{},
		missing:   map[gmail.MessageID]bool{},
		listCalls: map[string]int{},
		metaCalls: map[gmail.MessageID]int{},
		trashed:   map[gmail.MessageID]int{},
	}
}

func queryKey(q gmail.Query) string {
	if len(q.LabelIDs) > 0 {
		return string(q.LabelIDs[0])
	}
	return q.Raw
}

func (f *fakeClient) addPage(key, token string, page gmail.ListPage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[key] == nil {
		f.pages[key] = map[string]gmail.ListPage{}
	}
	f.pages[key][token] = page
}

func (f *fakeClient) List(_ context.Context, q gmail.Query, token string, _ int) (gmail.ListPage, error) {
	key := queryKey(q)
	f.mu.Lock()
	f.listCalls[key+"|"+token]++
	page := f.pages[key][token]
	hook := f.listErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key, token); err != nil {
			return gmail.ListPage{}, err
		}
	}
	return page, nil
}

func (f *fakeClient) GetMetadata(_ context.Context, id gmail.MessageID) (gmail.MessageMeta, error) {
	f.mu.Lock()
	f.metaCalls[id]++
	missing := f.missing[id]
	hook := f.metaErr
	f.mu.Unlock()
	if missing {
		return gmail.MessageMeta{}, gmail.ErrNotFound
	}
	if hook != nil {
		if err := hook(id); err != nil {
			return gmail.MessageMeta{}, err
		}
	}
	return gmail.MessageMeta{ID: id}, nil
}

func (f *fakeClient) GetMessage(_ context.Context, id gmail.MessageID) (gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := f.messages[id]; ok {
		return msg, nil
	}
	return gmail.Message{ID: id, Headers: map[string]string{"Subject": "subject " + string(id)}}, nil
}

func (f *fakeClient) Trash(ctx context.Context, id gmail.MessageID) error {
	f.mu.Lock()
	hook := f.trashErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(ctx, id); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.trashed[id]++
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) ListLabels(context.Context) (map[string]gmail.LabelID, map[gmail.LabelID]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byName := map[string]gmail.LabelID{"INBOX": "INBOX"}
	byID := map[gmail.LabelID]string{"INBOX": "INBOX"}
	for name, id := range f.labels {
		byName[name] = id
		byID[id] = name
	}
	return byName, byID, nil
}

func (f *fakeClient) trashedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.trashed))
	for id := range f.trashed {
		out = append(out, string(id))
	}
	sort.Strings(out)
	return out
}

func (f *fakeClient) trashCount(id gmail.MessageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trashed[id]
}

func (f *fakeClient) metaCount(id gmail.MessageID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metaCalls[id]
}

type noLimiter struct{}

func (noLimiter) Wait(context.Context) error { return nil }

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() retry.Policy {
	return retry.Policy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestOrchestrator(client gmail.Client) *Orchestrator {
	o := NewOrchestrator(client, noLimiter{}, slogDiscard())
	o.Retry = fastRetry()
	o.NewRunID = func() string { return "test-run" }
	return o
}

func ids(prefix string, n int) []gmail.MessageID {
	out := make([]gmail.MessageID, n)
	for i := range out {
		out[i] = gmail.MessageID(fmt.Sprintf("%s-%03d", prefix, i))
	}
	return out
}
