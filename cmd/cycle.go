package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one phone, outreach and follow-up cycle in the foreground",
	Long: `Runs the three sweeps once and prints the cycle report as JSON.

The first interrupt asks the cycle to stop after the lead in progress.
A second interrupt aborts immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		env, err := initApp(ctx, "cycle")
		if err != nil {
			return err
		}
		defer env.Close()

		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		go func() {
			select {
			case <-sigCh:
			case <-ctx.Done():
				return
			}
			zap.L().Info("stop requested, finishing the current lead (interrupt again to abort)")
			env.Orchestrator.Control().RequestStop()
			select {
			case <-sigCh:
				zap.L().Warn("aborting cycle")
				cancel()
			case <-ctx.Done():
			}
		}()

		report, err := env.Orchestrator.RunCycle(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
}
