package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/gmailpipe/internal/runtime"
)

func labelsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List the mailbox labels usable with `trash by-labels`",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			client, err := runtime.NewGmailClient(cmd.Context(), cfg.AuthDir, runtime.ScopeReadonly)
			if err != nil {
				return fmt.Errorf("create gmail client: %w", err)
			}
			byName, _, err := client.ListLabels(cmd.Context())
			if err != nil {
				return fmt.Errorf("list labels: %w", err)
			}
			names := make([]string, 0, len(byName))
			for name := range byName {
				names = append(names, name)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				fmt.Fprintf(tw, "%s\t%s\n", name, byName[name])
			}
			return tw.Flush()
		},
	}
}
