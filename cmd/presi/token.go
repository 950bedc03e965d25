package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orrn/presi/internal/api/middleware"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret == "" {
				return fmt.Errorf("api.jwt_secret is not configured")
			}

			token, err := middleware.NewAuth(cfg.API.JWTSecret).IssueToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", middleware.DefaultTokenDuration, "token lifetime")
	return cmd
}
