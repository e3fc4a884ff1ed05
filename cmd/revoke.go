/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codebuddy/apiserver/config"
	"github.com/codebuddy/apiserver/internal/db"
	"github.com/codebuddy/apiserver/internal/logging"
	"github.com/codebuddy/apiserver/internal/services"
	"github.com/codebuddy/apiserver/internal/store"
)

// revokeCmd runs the session sweep by hand: every token version is
// bumped, invalidating all outstanding tokens immediately.
var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Invalidate every outstanding session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		log, err := logging.New(logging.Config{Development: os.Getenv("ENV") == "dev"})
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		defer func() {
			_ = log.Sync()
		}()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() {
			_ = dbConn.Close()
		}()

		revoker := services.NewRevoker(store.NewUserRepository(dbConn), log)
		count, err := revoker.RevokeAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("revoked sessions for %d users\n", count)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}
