package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/resolvd/internal/engine"
	api "github.com/fyrsmithlabs/resolvd/internal/http"
)

func newSubmitCmd(opts *options) *cobra.Command {
	var (
		code    int
		ctxVals []string
	)
	cmd := &cobra.Command{
		Use:   "submit [message]",
		Short: "Submit a database error and print the resolution plan",
		Long: `Submit a raw database error message to resolvd and print the plan it returns.

Examples:
  # Submit a message directly
  rsctl submit "Table 'shop.orders' doesn't exist" --context query="SELECT * FROM shop.orders"

  # Read the message from stdin
  tail -n1 mysql-error.log | rsctl submit -

  # Pre-confirm destructive self-healing actions
  rsctl submit "Too many connections" --context confirm_destructive=true`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := readMessage(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			evCtx, err := parseContext(ctxVals)
			if err != nil {
				return err
			}

			req := api.SubmitErrorRequest{
				RawMessage: msg,
				ErrorCode:  code,
				Timestamp:  time.Now().UTC(),
				Context:    evCtx,
			}
			var plan engine.ResolutionPlan
			if err := opts.client().do("POST", "/api/v1/errors", req, &plan); err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), plan)
			}
			printPlan(cmd.OutOrStdout(), &plan)
			fmt.Fprintf(cmd.ErrOrStderr(), "\n[rsctl] report with: rsctl outcome --plan %s --result success|failure\n", plan.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&code, "code", 0, "vendor error code")
	cmd.Flags().StringArrayVar(&ctxVals, "context", nil, "event context as key=value (repeatable)")
	return cmd
}

func readMessage(stdin io.Reader, args []string) (string, error) {
	var raw []byte
	var err error
	switch {
	case len(args) == 0 || args[0] == "-":
		raw, err = io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
	default:
		raw = []byte(args[0])
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "", fmt.Errorf("no error message to submit")
	}
	return msg, nil
}

// parseContext turns key=value pairs into an event context. The literals
// true and false become booleans so confirm_destructive works from the
// command line.
func parseContext(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid context %q: want key=value", p)
		}
		switch v {
		case "true":
			out[k] = true
		case "false":
			out[k] = false
		default:
			out[k] = v
		}
	}
	return out, nil
}

func printPlan(w io.Writer, p *engine.ResolutionPlan) {
	fmt.Fprintf(w, "Plan:        %s\n", p.ID)
	fmt.Fprintf(w, "Signature:   %s\n", p.Signature)
	fmt.Fprintf(w, "Kind:        %s (%s)\n", p.Classification.Kind, p.Classification.Severity)
	fmt.Fprintf(w, "Strategy:    %s\n", p.Strategy)
	fmt.Fprintf(w, "Recurrence:  %d\n", p.Recurrence)
	fmt.Fprintf(w, "Confidence:  %.2f\n", p.Confidence)
	for i, a := range p.Actions {
		fmt.Fprintf(w, "Action %d:    %s\n", i+1, a.Kind)
	}
	if p.Explanation != "" {
		fmt.Fprintf(w, "\n%s\n", p.Explanation)
	}
}
