package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/resolvd/internal/http"
	"github.com/fyrsmithlabs/resolvd/internal/pattern"
)

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [signature]",
		Short: "Show pattern statistics",
		Long: `Show per-pattern statistics. Without a signature every tracked pattern is
listed; with one, its full record including per-strategy success rates.

Examples:
  rsctl stats
  rsctl stats 9a0b3c... --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := opts.client()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				var rec pattern.Record
				if err := c.do("GET", patternPath(args[0]), nil, &rec); err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, rec)
				}
				printRecord(out, &rec)
				return nil
			}

			var list api.PatternListResponse
			if err := c.do("GET", "/api/v1/patterns", nil, &list); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(out, list)
			}
			printRecords(out, list.Patterns)
			return nil
		},
	}
}

func newResetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <signature>",
		Short: "Clear the learned strategy for a pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ResetResponse
			if err := opts.client().do("POST", patternPath(args[0])+"/reset", nil, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %s\n", resp.Signature)
			return nil
		},
	}
}

func printRecords(w io.Writer, recs []*pattern.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No patterns tracked")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SIGNATURE\tKIND\tSTATE\tOCCURRENCES\tPREFERRED")
	for _, r := range recs {
		preferred := r.PreferredStrategy
		if preferred == "" {
			preferred = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.Signature, r.Kind, r.State, len(r.Occurrences), preferred)
	}
	_ = tw.Flush()
}

func printRecord(w io.Writer, r *pattern.Record) {
	fmt.Fprintf(w, "Signature:    %s\n", r.Signature)
	fmt.Fprintf(w, "Kind:         %s\n", r.Kind)
	fmt.Fprintf(w, "State:        %s\n", r.State)
	fmt.Fprintf(w, "Occurrences:  %d\n", len(r.Occurrences))
	fmt.Fprintf(w, "First seen:   %s\n", r.FirstSeen.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Last seen:    %s\n", r.LastSeen.Format("2006-01-02 15:04:05"))
	if r.PreferredStrategy != "" {
		fmt.Fprintf(w, "Preferred:    %s\n", r.PreferredStrategy)
	}
	if r.Quarantined {
		fmt.Fprintf(w, "Quarantined:  %s\n", r.QuarantineReason)
	}
	if len(r.StrategyStats) == 0 {
		return
	}

	names := make([]string, 0, len(r.StrategyStats))
	for name := range r.StrategyStats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tATTEMPTS\tSUCCESSES\tRATE")
	for _, name := range names {
		s := r.StrategyStats[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\n", name, s.Attempts, s.Successes, s.Rate())
	}
	_ = tw.Flush()
}
