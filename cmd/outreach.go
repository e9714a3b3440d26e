package main

import (
	"errors"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/sequencer"
)

var outreachCmd = &cobra.Command{
	Use:   "outreach <lead-id>",
	Short: "Send the first outreach message to one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), "outreach")
		if err != nil {
			return err
		}
		defer env.Close()

		conv, err := env.Orchestrator.StartOutreachFor(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, sequencer.ErrNotEligible) {
				return eris.Wrapf(err, "lead %d needs a conclusive phone extraction on a live listing first", id)
			}
			return err
		}
		return printJSON(cmd.OutOrStdout(), conv)
	},
}

func init() {
	rootCmd.AddCommand(outreachCmd)
}
