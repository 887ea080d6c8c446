package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	syncengine "github.com/centsync/centsync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one full sync pass",
		Long: `Pull remote changes, merge them into the local database, and push local
changes back, all in one pass. Conflicting edits resolve last-writer-wins on
the modification timestamp.

--force re-runs the initial full pull from scratch. The pull is idempotent,
so forcing it never loses local data.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			engine, cleanup, err := buildEngine(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if force {
				err = engine.ForceFullResync(cmd.Context())
			} else {
				err = engine.RunFullSync(cmd.Context())
			}

			switch {
			case errors.Is(err, syncengine.ErrNotAuthenticated):
				return fmt.Errorf("not signed in — run 'centsync whoami' to check identity")
			case errors.Is(err, syncengine.ErrSyncInProgress):
				fmt.Println("Sync already in progress.")
				return nil
			case err != nil:
				return err
			}

			state := engine.State()
			fmt.Printf("Synced: %d downloaded, %d uploaded, %d conflicts resolved, %d pending.\n",
				state.Stats.Downloaded, state.Stats.Uploaded, state.Stats.ConflictsResolved, state.PendingChanges)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-run the initial full pull")

	return cmd
}
