package pipeline

import (
	"fmt"
	"strings"

	"github.com/joshsymonds/gmailpipe/internal/gmail"
)

// Source describes what the producers enumerate. The concrete types are
// LabelSource, IDSource and QuerySource.
type Source interface {
	Describe() string
}

// LabelSource enumerates every message carrying one of the named labels.
// Names are resolved to label IDs; system label IDs such as INBOX are
// accepted as-is.
type LabelSource struct {
	Names []string
}

func (s LabelSource) Describe() string { return "labels " + strings.Join(s.Names, ",") }

// IDSource enumerates explicit message IDs, verifying each exists.
type IDSource struct {
	IDs []gmail.MessageID
}

func (s IDSource) Describe() string { return fmt.Sprintf("%d message ids", len(s.IDs)) }

// QuerySource enumerates the results of a Gmail search, page by page.
type QuerySource struct {
	Query gmail.Query
}

func (s QuerySource) Describe() string { return "query " + s.Query.Raw }

// shard splits items round-robin into n disjoint slices.
func shard[T any](items []T, n int) [][]T {
	out := make([][]T, n)
	for i, it := range items {
		out[i%n] = append(out[i%n], it)
	}
	return out
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		j := i + size
		if j > len(items) {
			j = len(items)
		}
		out = append(out, items[i:j])
	}
	return out
}

// dedupe drops repeated IDs, keeping first occurrences in order.
func dedupe(ids []gmail.MessageID) []gmail.MessageID {
	seen := make(map[gmail.MessageID]struct{}, len(ids))
	out := make([]gmail.MessageID, 0, len(ids))
	for _, id := range ids {
		id = gmail.MessageID(strings.TrimSpace(string(id)))
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
