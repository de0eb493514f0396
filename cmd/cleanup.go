package cmd

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired tokens and sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err = configureLogging(cfg); err != nil {
			return err
		}

		store, closeStore, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		result, err := service.NewMaintenanceService(store, nil).PurgeExpired(ctx)
		if err != nil {
			return err
		}

		logrus.WithFields(logrus.Fields{
			"tokens":   result.Tokens,
			"sessions": result.Sessions,
		}).Info("Expired rows purged")
		fmt.Printf("deleted %d expired token(s) and %d expired session(s)\n", result.Tokens, result.Sessions)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
