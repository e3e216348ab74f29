package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/resolvd/internal/http"
)

func newHealthCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check resolvd server liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.HealthResponse
			if err := opts.client().do("GET", "/health", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s\n", resp.Status)
			return nil
		},
	}
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show engine health and dependency status",
		Long: `Show the aggregate engine report: pattern counts by state, overall
success rate, error rates over the last hour and the top recurring patterns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.StatusResponse
			if err := opts.client().do("GET", "/api/v1/status", nil, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			printStatus(cmd.OutOrStdout(), &resp)
			return nil
		},
	}
}

func printStatus(w io.Writer, s *api.StatusResponse) {
	fmt.Fprintf(w, "Status:   %s\n", s.Status)
	if s.Version != "" {
		fmt.Fprintf(w, "Version:  %s\n", s.Version)
	}
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name+":", s.Services[name])
	}

	r := s.Engine
	if r == nil {
		return
	}
	fmt.Fprintf(w, "\nPatterns:      %d (%d occurrences)\n", r.TotalPatterns, r.TotalOccurrences)
	fmt.Fprintf(w, "Success rate:  %.2f\n", r.OverallSuccessRate)
	fmt.Fprintf(w, "Last hour:     %d errors, %d critical\n", r.ErrorsLastHour, r.CriticalLastHour)
	fmt.Fprintf(w, "Pending plans: %d\n", r.PendingPlans)
	if r.Quarantined > 0 {
		fmt.Fprintf(w, "Quarantined:   %d\n", r.Quarantined)
	}
	if len(r.TopPatterns) > 0 {
		fmt.Fprintln(w, "\nTop patterns:")
		for _, p := range r.TopPatterns {
			fmt.Fprintf(w, "  %s  %-22s %4d  %s\n", short(p.Signature), p.Kind, p.Occurrences, p.State)
		}
	}
}

func short(sig string) string {
	if len(sig) > 12 {
		return sig[:12]
	}
	return sig
}

func newScrubCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "scrub [file]",
		Short: "Preview how an error message is redacted before leaving the process",
		Long: `Send content to the server's redaction preview and print the scrubbed text.

Examples:
  rsctl scrub mysql-error.log
  cat mysql-error.log | rsctl scrub -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content []byte
			var err error
			if len(args) == 0 || args[0] == "-" {
				content, err = io.ReadAll(cmd.InOrStdin())
			} else {
				content, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			if len(strings.TrimSpace(string(content))) == 0 {
				return fmt.Errorf("no content to scrub")
			}

			var resp api.ScrubResponse
			if err := opts.client().do("POST", "/api/v1/scrub", api.ScrubRequest{Content: string(content)}, &resp); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), resp.Content)
			if resp.FindingsCount > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[rsctl] Scrubbed %d secret(s)\n", resp.FindingsCount)
			}
			return nil
		},
	}
}
