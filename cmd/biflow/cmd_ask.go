package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/biflow-io/biflow/bi"
)

func newAskCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags)
			if err != nil {
				return err
			}
			defer logger.Sync()

			svc, err := bi.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			answer, err := svc.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(answer)
			}
			return printAnswer(cmd, answer)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full answer as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, answer *bi.Answer) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "SQL:\n  %s\n\n", answer.SQL)

	if !answer.Result.Success {
		fmt.Fprintf(out, "Query failed: %s\n", answer.Result.ErrorString())
		return nil
	}

	fmt.Fprintf(out, "Results (%d rows):\n", answer.Result.RowCount)
	rows, err := json.MarshalIndent(answer.Result.Data, "  ", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s\n\n", rows)

	if answer.Chart != nil {
		fmt.Fprintf(out, "Chart: %s", answer.Chart.Kind)
		if answer.Chart.Title != "" {
			fmt.Fprintf(out, " (%s)", answer.Chart.Title)
		}
		fmt.Fprintln(out)
	}
	if answer.Explanation != "" {
		fmt.Fprintf(out, "\n%s\n", answer.Explanation)
	}
	for _, stage := range answer.Degraded {
		fmt.Fprintf(out, "\nnote: %s unavailable for this answer\n", stage)
	}
	return nil
}
