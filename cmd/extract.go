package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var extractCmd = &cobra.Command{
	Use:   "extract <lead-id>",
	Short: "Harvest the phone numbers of one lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseLeadID(args[0])
		if err != nil {
			return err
		}

		env, err := initApp(cmd.Context(), "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Orchestrator.ExtractPhoneFor(cmd.Context(), id)
		if err != nil {
			return err
		}
		if !res.Conclusive() {
			zap.L().Warn("extraction inconclusive, lead left for the next cycle",
				zap.Int64("lead_id", id),
				zap.String("error", res.Error),
			)
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
