// Package query turns structured filters into Gmail search strings.
package query

import (
	"errors"
	"fmt"
	"strings"

	gc "github.com/joshsymonds/gmailpipe/internal/gmail"
)

// ErrEmptyFilter is returned when a filter has no criteria. An empty Gmail
// query matches every message, which is never what a bulk action wants.
var ErrEmptyFilter = errors.New("filter has no criteria")

// Filter mirrors Gmail's search operators. Multi-valued fields add one
// operator per value; all criteria are ANDed.
type Filter struct {
	Words       []string `json:"words,omitempty" yaml:"words,omitempty"`
	From        []string `json:"from,omitempty" yaml:"from,omitempty"`
	To          []string `json:"to,omitempty" yaml:"to,omitempty"`
	Cc          []string `json:"cc,omitempty" yaml:"cc,omitempty"`
	Bcc         []string `json:"bcc,omitempty" yaml:"bcc,omitempty"`
	Subject     []string `json:"subject,omitempty" yaml:"subject,omitempty"`
	RemoveWords []string `json:"remove_words,omitempty" yaml:"remove_words,omitempty"`
	Labels      []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Has         []string `json:"has,omitempty" yaml:"has,omitempty"`
	List        []string `json:"list,omitempty" yaml:"list,omitempty"`
	Filename    []string `json:"filename,omitempty" yaml:"filename,omitempty"`
	In          []string `json:"in,omitempty" yaml:"in,omitempty"`
	Is          []string `json:"is,omitempty" yaml:"is,omitempty"`
	After       string   `json:"after,omitempty" yaml:"after,omitempty"`
	Before      string   `json:"before,omitempty" yaml:"before,omitempty"`
	OlderThan   string   `json:"older_than,omitempty" yaml:"older_than,omitempty"`
	NewerThan   string   `json:"newer_than,omitempty" yaml:"newer_than,omitempty"`
	DeliveredTo []string `json:"deliveredto,omitempty" yaml:"deliveredto,omitempty"`
	Category    []string `json:"category,omitempty" yaml:"category,omitempty"`
	RFC822MsgID []string `json:"rfc822msgid,omitempty" yaml:"rfc822msgid,omitempty"`
	Size        string   `json:"size,omitempty" yaml:"size,omitempty"`
	Larger      string   `json:"larger,omitempty" yaml:"larger,omitempty"`
	Smaller     string   `json:"smaller,omitempty" yaml:"smaller,omitempty"`
}

// Build renders the filter as a Gmail query.
func (f Filter) Build() (gc.Query, error) {
	var parts []string
	add := func(op string, values ...string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			parts = append(parts, op+quote(v))
		}
	}

	add("", f.Words...)
	add("from:", f.From...)
	add("to:", f.To...)
	add("cc:", f.Cc...)
	add("bcc:", f.Bcc...)
	add("subject:", f.Subject...)
	add("-", f.RemoveWords...)
	add("label:", f.Labels...)
	add("has:", f.Has...)
	add("list:", f.List...)
	add("filename:", f.Filename...)
	add("in:", f.In...)
	add("is:", f.Is...)
	add("after:", f.After)
	add("before:", f.Before)
	add("older_than:", f.OlderThan)
	add("newer_than:", f.NewerThan)
	add("deliveredto:", f.DeliveredTo...)
	add("category:", f.Category...)
	add("rfc822msgid:", f.RFC822MsgID...)
	add("size:", f.Size)
	add("larger:", f.Larger)
	add("smaller:", f.Smaller)

	if len(parts) == 0 {
		return gc.Query{}, ErrEmptyFilter
	}
	return gc.Query{Raw: strings.Join(parts, " ")}, nil
}

// Raw validates a free-form query string.
func Raw(s string) (gc.Query, error) {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return gc.Query{}, ErrEmptyFilter
	}
	return gc.Query{Raw: s}, nil
}

func quote(v string) string {
	if !strings.ContainsAny(v, " \t") || strings.HasPrefix(v, `"`) {
		return v
	}
	return fmt.Sprintf("%q", v)
}
