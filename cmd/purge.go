/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/foundly/apiserver/config"
	"github.com/foundly/apiserver/internal/db"
	"github.com/foundly/apiserver/internal/services"
	"github.com/foundly/apiserver/internal/store"
	"github.com/spf13/cobra"
)

// purgeCmd runs the retention sweep once and exits. The server runs the same
// sweep on a daily ticker; this command exists for external schedulers.
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Run the retention purge once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		dbConn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() {
			_ = dbConn.Close()
		}()

		purger := services.NewPurgeService(
			store.NewUserRepository(dbConn),
			store.NewRefreshTokenRepository(dbConn),
			cfg.Retention.DeletedUserTTL,
		)
		report, err := purger.Run(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("purged %d users, %d refresh tokens, cleared %d reset tokens\n",
			report.UsersPurged, report.TokensPurged, report.ResetTokensCleared)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
