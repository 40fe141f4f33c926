package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/ovms-bridge/internal/auth"
	"github.com/nerrad567/ovms-bridge/internal/infrastructure/config"
)

// tokenCommand issues a bearer token for the HTTP API, signed with the
// configured api.auth.secret.
func tokenCommand(configPath *string) *cobra.Command {
	var (
		subject string
		scope   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(*configPath))
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if !auth.ValidScope(auth.Scope(scope)) {
				return fmt.Errorf("unknown scope %q (want %q or %q)", scope, auth.ScopeRead, auth.ScopeCommand)
			}
			if ttl <= 0 {
				ttl = time.Duration(cfg.API.Auth.TokenTTL) * time.Minute
			}

			token, err := auth.GenerateAccessToken(subject, cfg.Vehicle.ID, auth.Scope(scope), cfg.API.Auth.Secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "who the token is issued to")
	cmd.Flags().StringVar(&scope, "scope", string(auth.ScopeCommand), "token scope (read or command)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default api.auth.token_ttl minutes)")
	return cmd
}
