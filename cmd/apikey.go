package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/repository"
	"github.com/vibast-solutions/ms-go-accounts/app/service"
	"github.com/vibast-solutions/ms-go-accounts/config"

	"github.com/spf13/cobra"
)

var errMySQLRequired = errors.New("this command requires STORE_DRIVER=mysql")

var apiKeyTTLMinutes int

var apiKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage internal service API keys",
}

var apiKeyGenerateCmd = &cobra.Command{
	Use:   "generate <service_name>",
	Short: "Generate an internal API key for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		internalAuthService, closeDB, err := newInternalAuthServiceForAPIKeyCommands()
		if err != nil {
			return err
		}
		defer closeDB()

		if apiKeyTTLMinutes < 0 {
			return errors.New("--ttl must not be negative")
		}
		ttl := time.Duration(apiKeyTTLMinutes) * time.Minute

		serviceName := args[0]
		key, err := internalAuthService.GenerateInternalAPIKey(context.Background(), serviceName, ttl)
		if err != nil {
			return err
		}

		expiresAt := time.Now().AddDate(100, 0, 0)
		if ttl > 0 {
			expiresAt = time.Now().Add(ttl)
		}
		fmt.Printf("service_name: %s\n", serviceName)
		fmt.Printf("api_key: %s\n", key)
		fmt.Printf("expires_at: %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var apiKeyRevokeCmd = &cobra.Command{
	Use:   "revoke <service_name>",
	Short: "Deactivate all active API keys for a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		internalAuthService, closeDB, err := newInternalAuthServiceForAPIKeyCommands()
		if err != nil {
			return err
		}
		defer closeDB()

		serviceName := args[0]
		count, err := internalAuthService.RevokeInternalAPIKeys(context.Background(), serviceName)
		if err != nil {
			if errors.Is(err, service.ErrServiceHasNoActiveAPIKey) {
				return fmt.Errorf("service %q has no active API key", serviceName)
			}
			return err
		}

		fmt.Printf("revoked %d active API key(s) for service %s\n", count, serviceName)
		return nil
	},
}

func init() {
	apiKeyGenerateCmd.Flags().IntVar(&apiKeyTTLMinutes, "ttl", 0, "key lifetime in minutes (0 = does not expire)")
	apiKeyCmd.AddCommand(apiKeyGenerateCmd)
	apiKeyCmd.AddCommand(apiKeyRevokeCmd)
	rootCmd.AddCommand(apiKeyCmd)
}

// API keys only make sense against a shared database, so these commands
// refuse the in-memory driver.
func newInternalAuthServiceForAPIKeyCommands() (service.InternalAuthService, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != config.StoreDriverMySQL {
		return nil, nil, errMySQLRequired
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	internalAPIKeyRepo := repository.NewInternalAPIKeyRepository(db)
	return service.NewInternalAuthService(internalAPIKeyRepo, nil), func() { db.Close() }, nil
}
