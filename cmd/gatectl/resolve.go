package main

import (
	"github.com/spf13/cobra"

	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/identity"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <externalId>",
		Short: "Resolve an account's status from the identity provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			client, err := identity.NewClient(cfg.Identity)
			if err != nil {
				return err
			}
			resolver, err := status.NewResolver(status.ResolverParams{
				Cache:          status.NewCache(status.CacheOptionsFromConfig(cfg.StatusCache, nil)),
				Profiles:       client,
				ProfileTimeout: cfg.Identity.RequestTimeout,
				Logger:         logg,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resolver.Resolve(ctx, args[0], nil))
		},
	}
}
