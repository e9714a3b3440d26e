package main

import (
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/schedule"
	"github.com/sells-group/outreach-cli/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the control API and the optional daily schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(ctx, env.Orchestrator, server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(gctx) })

		if cfg.Schedule.Enabled {
			sched, err := schedule.New(cfg.Schedule.Cron, env.Orchestrator, cron.WithLocation(cfg.Location()))
			if err != nil {
				return err
			}
			g.Go(func() error { return sched.Run(gctx) })
		} else {
			zap.L().Debug("schedule disabled")
		}

		err = g.Wait()

		// Let an in-flight cycle finish its current item before the browser closes.
		env.Orchestrator.Control().RequestStop()
		env.Orchestrator.Wait()
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
