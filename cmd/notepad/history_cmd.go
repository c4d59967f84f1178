package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"notepad/internal/history"
)

func newUpdateHistoryCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent update checks and update results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openHistory(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				if entries == nil {
					entries = []history.Entry{}
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			printHistory(cmd.OutOrStdout(), entries, time.Now())
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print entries as JSON")
	return cmd
}

func printHistory(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "No update history yet.")
		return
	}
	for _, e := range entries {
		when := humanize.RelTime(e.At, now, "ago", "from now")
		_, _ = fmt.Fprintf(w, "%-16s %-6s %s\n", when, e.Kind, describeEntry(e))
	}
}

func describeEntry(e history.Entry) string {
	switch e.Kind {
	case history.KindCheck:
		if e.Error != "" {
			return "check failed: " + e.Error
		}
		if e.HasUpdate {
			return fmt.Sprintf("%s -> %s available", e.CurrentVersion, e.LatestVersion)
		}
		return fmt.Sprintf("%s is up to date", e.CurrentVersion)
	case history.KindFlow:
		if e.Error != "" {
			return fmt.Sprintf("%s: %s", e.Stage, e.Error)
		}
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return e.Message
}
