package main

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/fyrsmithlabs/resolvd/internal/http"
)

func newOutcomeCmd(opts *options) *cobra.Command {
	var req api.OutcomeRequest
	cmd := &cobra.Command{
		Use:   "outcome",
		Short: "Report the outcome of an executed plan",
		Long: `Report whether a resolution strategy worked.

Identify the plan either by --plan, or by --signature and --strategy.
Results: success, failure, aborted, inconclusive. Only success and failure
count towards learning.

Examples:
  # Report by plan id
  rsctl outcome --plan 6f1c... --result success

  # Report by signature and strategy
  rsctl outcome --signature 9a0b... --strategy self_healing --result failure --duration-ms 1200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Result == "" {
				return fmt.Errorf("--result is required")
			}
			if req.PlanID == "" && (req.Signature == "" || req.Strategy == "") {
				return fmt.Errorf("either --plan or both --signature and --strategy are required")
			}
			var resp api.AcceptedResponse
			if err := opts.client().do("POST", "/api/v1/outcomes", req, &resp); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Outcome %s\n", resp.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.PlanID, "plan", "", "plan id returned by submit")
	cmd.Flags().StringVar(&req.Signature, "signature", "", "error signature")
	cmd.Flags().StringVar(&req.Strategy, "strategy", "", "strategy that was executed")
	cmd.Flags().StringVar(&req.Result, "result", "", "success, failure, aborted or inconclusive")
	cmd.Flags().Int64Var(&req.DurationMs, "duration-ms", 0, "execution time in milliseconds")
	cmd.Flags().StringVar(&req.Nonce, "nonce", "", "distinguishes repeated reports within one timestamp")
	return cmd
}
