package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/centsync/centsync/internal/authfile"
	"github.com/centsync/centsync/internal/config"
	"github.com/centsync/centsync/internal/remote"
	"github.com/centsync/centsync/internal/store"
	syncengine "github.com/centsync/centsync/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// newRootCmd builds the fully-assembled root command. Called once from main.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "centsync",
		Short:   "Personal finance sync client",
		Long:    "centsync keeps a local finance database in sync with its per-user cloud store.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfgPath := flagConfigPath
			if cfgPath == "" {
				cfgPath = config.DefaultConfigPath()
			}

			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg.ApplyEnv()
			resolvedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newWhoamiCmd())

	return cmd
}

// buildLogger creates the slog.Logger from config and flags. Text output on
// a terminal, JSON otherwise so daemon logs stay machine-readable.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config.
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// buildEngine wires the sync engine from resolved config: local store,
// remote store, identity. The returned cleanup closes both stores.
func buildEngine(ctx context.Context, logger *slog.Logger) (*syncengine.Engine, func(), error) {
	identity, err := authfile.NewProvider(resolvedCfg.AuthPath)
	if err != nil {
		return nil, nil, err
	}

	local, err := store.Open(resolvedCfg.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}

	if resolvedCfg.ProjectID == "" {
		local.Close()
		return nil, nil, fmt.Errorf("project_id is not configured (set it in %s or CENTSYNC_PROJECT_ID)", config.DefaultConfigPath())
	}

	rs, err := remote.NewFirestoreStore(ctx, resolvedCfg.ProjectID, resolvedCfg.CredentialsFile, logger)
	if err != nil {
		local.Close()
		return nil, nil, err
	}

	cleanup := func() {
		rs.Close()
		local.Close()
	}

	return syncengine.NewEngine(local, rs, identity, logger), cleanup, nil
}
