package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/centsync/centsync/internal/authfile"
)

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(_ *cobra.Command, _ []string) error {
			f, err := authfile.Load(resolvedCfg.AuthPath)
			if err != nil {
				return err
			}

			if f == nil {
				fmt.Println("Not signed in.")
				return nil
			}

			fmt.Println(f.UserID)

			if name := f.Meta["display_name"]; name != "" {
				fmt.Println(name)
			}

			return nil
		},
	}
}
