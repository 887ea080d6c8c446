package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/centsync/centsync/internal/authfile"
	"github.com/centsync/centsync/internal/store"
)

// statusReport is the JSON shape for --json output.
type statusReport struct {
	SignedIn       bool   `json:"signed_in"`
	UserID         string `json:"user_id,omitempty"`
	PendingChanges int    `json:"pending_changes"`
	DBPath         string `json:"db_path"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show identity and pending local changes",
		Long: `Display the signed-in user and how many locally modified records are
waiting to upload. Reads only local state — makes no network calls.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := buildLogger()

			identity, err := authfile.NewProvider(resolvedCfg.AuthPath)
			if err != nil {
				return err
			}

			local, err := store.Open(resolvedCfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer local.Close()

			pending, err := local.CountUnsynced(cmd.Context())
			if err != nil {
				return err
			}

			userID, signedIn := identity.CurrentUserID()
			report := statusReport{
				SignedIn:       signedIn,
				UserID:         userID,
				PendingChanges: pending,
				DBPath:         resolvedCfg.DBPath,
			}

			if flagJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")

				return enc.Encode(report)
			}

			if !signedIn {
				fmt.Println("Not signed in.")
			} else {
				fmt.Printf("Signed in as %s\n", userID)
			}

			fmt.Printf("Pending changes: %d\n", pending)
			fmt.Printf("Database: %s\n", resolvedCfg.DBPath)

			return nil
		},
	}
}
