package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/gmailpipe/internal/config"
	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/pipeline"
	"github.com/joshsymonds/gmailpipe/internal/query"
)

// filterFlags are the search criteria shared by `trash by-filter` and
// `filter`.
type filterFlags struct {
	raw    string
	file   string
	filter query.Filter
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&ff.raw, "query", "", "raw Gmail search query")
	f.StringVar(&ff.file, "filter-file", "", "filter definition (.json, .yaml) or raw query file")
	f.StringSliceVar(&ff.filter.Words, "words", nil, "words the message contains")
	f.StringSliceVar(&ff.filter.From, "from", nil, "sender")
	f.StringSliceVar(&ff.filter.To, "to", nil, "recipient")
	f.StringSliceVar(&ff.filter.Cc, "cc", nil, "cc recipient")
	f.StringSliceVar(&ff.filter.Bcc, "bcc", nil, "bcc recipient")
	f.StringSliceVar(&ff.filter.Subject, "subject", nil, "words in the subject")
	f.StringSliceVar(&ff.filter.RemoveWords, "remove-words", nil, "words the message must not contain")
	f.StringSliceVar(&ff.filter.Labels, "label", nil, "label")
	f.StringSliceVar(&ff.filter.Has, "has", nil, "attachment, drive, youtube, userlabels...")
	f.StringSliceVar(&ff.filter.List, "list", nil, "mailing list")
	f.StringSliceVar(&ff.filter.Filename, "filename", nil, "attachment name or type")
	f.StringSliceVar(&ff.filter.In, "in", nil, "location such as anywhere, snoozed, spam")
	f.StringSliceVar(&ff.filter.Is, "is", nil, "state such as unread, starred, important")
	f.StringVar(&ff.filter.After, "after", "", "received after date (YYYY/MM/DD)")
	f.StringVar(&ff.filter.Before, "before", "", "received before date (YYYY/MM/DD)")
	f.StringVar(&ff.filter.OlderThan, "older-than", "", "older than a relative age (1d, 2m, 1y)")
	f.StringVar(&ff.filter.NewerThan, "newer-than", "", "newer than a relative age (1d, 2m, 1y)")
	f.StringSliceVar(&ff.filter.DeliveredTo, "delivered-to", nil, "delivered-to address")
	f.StringSliceVar(&ff.filter.Category, "category", nil, "inbox category")
	f.StringSliceVar(&ff.filter.RFC822MsgID, "rfc822msgid", nil, "Message-ID header")
	f.StringVar(&ff.filter.Size, "size", "", "size in bytes")
	f.StringVar(&ff.filter.Larger, "larger", "", "larger than a size (10M)")
	f.StringVar(&ff.filter.Smaller, "smaller", "", "smaller than a size (10M)")
}

func (ff *filterFlags) source(context.Context, config.Config) (pipeline.Source, error) {
	var (
		q   gmail.Query
		err error
	)
	switch {
	case ff.file != "" && ff.raw != "":
		return nil, errors.New("--query and --filter-file are mutually exclusive")
	case ff.file != "":
		q, err = query.LoadFile(ff.file)
	case ff.raw != "":
		q, err = query.Raw(ff.raw)
	default:
		q, err = ff.filter.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return pipeline.QuerySource{Query: q}, nil
}

func filterCmd(opts *options) *cobra.Command {
	ff := &filterFlags{}
	var output string
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Write a summary of every matching message to <output>.txt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := strings.TrimSpace(output)
			if name == "" {
				return errors.New("--output is required")
			}
			f, err := os.OpenFile(name+".txt", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) // #nosec G304
			if err != nil {
				return fmt.Errorf("open output: %w", err)
			}
			runErr := opts.execute(cmd, pipeline.CommandFilter, ff.source, f)
			if err := f.Close(); err != nil && runErr == nil {
				return fmt.Errorf("close output: %w", err)
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file name; .txt is appended")
	ff.register(cmd)
	return cmd
}
