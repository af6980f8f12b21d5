package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/V4T54L/rumtrack/internal/adapter/repository/postgres"

	_ "github.com/lib/pq" // Keep for postgres driver
)

var (
	keysApp string
	keysTTL time.Duration
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage collector app keys",
	Long:  "Create, revoke and check the app keys rum-collector accepts beacons with.\nRequires POSTGRES_URL.",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create <key>",
	Short: "Register an active app key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(cmd.Context(), func(repo *postgres.AppKeyRepository) error {
			var expiresAt *time.Time
			if keysTTL > 0 {
				t := time.Now().Add(keysTTL)
				expiresAt = &t
			}
			if err := repo.CreateKey(cmd.Context(), args[0], keysApp, expiresAt); err != nil {
				return fmt.Errorf("create key: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created key for %s\n", keysApp)
			return nil
		})
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <key>",
	Short: "Deactivate an app key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(cmd.Context(), func(repo *postgres.AppKeyRepository) error {
			if err := repo.RevokeKey(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("revoke key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "revoked")
			return nil
		})
	},
}

var keysCheckCmd = &cobra.Command{
	Use:   "check <key>",
	Short: "Report whether an app key is accepted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKeys(cmd.Context(), func(repo *postgres.AppKeyRepository) error {
			valid, err := repo.IsValid(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("check key: %w", err)
			}
			if !valid {
				return errors.New("key is not valid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysRevokeCmd, keysCheckCmd)

	keysCreateCmd.Flags().StringVar(&keysApp, "app", "", "application the key belongs to (required)")
	keysCreateCmd.Flags().DurationVar(&keysTTL, "ttl", 0, "key lifetime, 0 for no expiry")
	keysCreateCmd.MarkFlagRequired("app")
}

func withKeys(ctx context.Context, fn func(repo *postgres.AppKeyRepository) error) error {
	if cfg.Storage.PostgresURL == "" {
		return errors.New("POSTGRES_URL is not set")
	}
	db, err := sql.Open("postgres", cfg.Storage.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	repo := postgres.NewAppKeyRepository(db, cliLogger, cfg.Storage.AppKeyCacheTTL, nil)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return fn(repo)
}
