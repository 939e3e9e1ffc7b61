package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/gmailpipe/internal/config"
	"github.com/joshsymonds/gmailpipe/internal/gmail"
	"github.com/joshsymonds/gmailpipe/internal/gmailctl"
	"github.com/joshsymonds/gmailpipe/internal/pipeline"
)

func trashCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Move messages to the trash",
	}
	cmd.AddCommand(trashByIDsCmd(opts), trashByLabelsCmd(opts), trashByFilterCmd(opts), trashByRuleCmd(opts))
	return cmd
}

func trashByIDsCmd(opts *options) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "by-ids [ID...]",
		Short: "Trash explicit message IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.execute(cmd, pipeline.CommandTrash, func(context.Context, config.Config) (pipeline.Source, error) {
				ids, err := collectIDs(args, file)
				if err != nil {
					return nil, err
				}
				return pipeline.IDSource{IDs: ids}, nil
			}, nil)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "read message IDs from this file, one per line")
	return cmd
}

func trashByLabelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "by-labels NAME...",
		Short: "Trash every message carrying any of the labels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.execute(cmd, pipeline.CommandTrash, func(context.Context, config.Config) (pipeline.Source, error) {
				return pipeline.LabelSource{Names: args}, nil
			}, nil)
		},
	}
}

func trashByFilterCmd(opts *options) *cobra.Command {
	ff := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "by-filter",
		Short: "Trash every message matching a search filter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.execute(cmd, pipeline.CommandTrash, ff.source, nil)
		},
	}
	ff.register(cmd)
	return cmd
}

func trashByRuleCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "by-rule RULE",
		Short: "Trash every message an existing gmailctl rule matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.execute(cmd, pipeline.CommandTrash, func(ctx context.Context, cfg config.Config) (pipeline.Source, error) {
				runner := gmailctl.Runner{Binary: cfg.Gmailctl.Binary, ConfigDir: cfg.Gmailctl.Config}
				q, err := runner.RuleQuery(ctx, args[0])
				if err != nil {
					return nil, fmt.Errorf("resolve rule: %w", err)
				}
				return pipeline.QuerySource{Query: q}, nil
			}, nil)
		},
	}
}

// collectIDs merges IDs given as arguments with those listed in file.
func collectIDs(args []string, file string) ([]gmail.MessageID, error) {
	var ids []gmail.MessageID
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if part = strings.TrimSpace(part); part != "" {
				ids = append(ids, gmail.MessageID(part))
			}
		}
	}
	if file != "" {
		f, err := os.Open(file) // #nosec G304 - path chosen by the user
		if err != nil {
			return nil, fmt.Errorf("open id file: %w", err)
		}
		defer func() { _ = f.Close() }()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			ids = append(ids, gmail.MessageID(line))
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read id file: %w", err)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("no message ids given")
	}
	return ids, nil
}
