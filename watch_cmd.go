package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncengine "github.com/centsync/centsync/internal/sync"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sync continuously until interrupted",
		Long: `Run the sync engine continuously. A pass is triggered at startup, when
connectivity is restored, and when the local database changes. Triggers are
coalesced: at most one pass runs at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			engine, cleanup, err := buildEngine(ctx, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			monitor := syncengine.NewProbeMonitor(
				resolvedCfg.ProbeURL,
				resolvedCfg.ProbeInterval.Duration,
				nil,
				logger,
			)

			observer, err := syncengine.NewLocalObserver(resolvedCfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer observer.Close()

			go func() {
				if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("connectivity monitor stopped", "error", err)
				}
			}()

			go func() {
				if err := observer.Run(ctx); err != nil && ctx.Err() == nil {
					logger.Error("local observer stopped", "error", err)
				}
			}()

			err = engine.Watch(ctx, monitor, observer.Events())
			if err != nil && ctx.Err() == nil {
				return err
			}

			return nil
		},
	}
}
