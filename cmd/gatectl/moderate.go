package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/backoffice/internal/moderation"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/config"
	"github.com/angelmondragon/backoffice/pkg/db"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/pubsub"
)

type moderationOutput struct {
	*moderation.Result
	Warnings []string `json:"warnings,omitempty"`
}

func newModerateCmd() *cobra.Command {
	var (
		moderator       string
		reason          string
		expectedVersion int64
	)
	cmd := &cobra.Command{
		Use:   "moderate <userId> <APPROVE|REJECT|SUSPEND>",
		Short: "Apply a moderation decision and wait for propagation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			targetID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			action, err := enums.ParseModerationAction(args[1])
			if err != nil {
				return err
			}
			if moderator == "" {
				return fmt.Errorf("--moderator is required")
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			dbClient, err := db.New(ctx, cfg.DB, logg)
			if err != nil {
				return err
			}
			defer dbClient.Close()

			client, err := identity.NewClient(cfg.Identity)
			if err != nil {
				return err
			}
			cache := status.NewCache(status.CacheOptionsFromConfig(cfg.StatusCache, nil))
			params := moderation.PropagatorParams{
				Profiles: client,
				Cache:    cache,
				Timeout:  cfg.Moderation.PropagationTimeout,
				Retry:    moderation.RetryPolicy{Attempts: cfg.Moderation.RetryAttempts},
				Logger:   logg,
			}
			events, closeEvents, err := moderationEvents(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeEvents()
			if events != nil {
				params.Events = events
			}
			propagator, err := moderation.NewPropagator(params)
			if err != nil {
				return err
			}
			svc, err := moderation.NewService(moderation.ServiceParams{
				Users:              users.NewRepository(dbClient.DB()),
				Audit:              moderation.NewAuditRepository(dbClient.DB()),
				Tx:                 dbClient,
				Cache:              cache,
				Propagator:         propagator,
				InitialCreditGrant: cfg.Moderation.InitialCreditGrant,
				StoreTimeout:       cfg.Moderation.StoreTimeout,
				AwaitPropagation:   true,
				Logger:             logg,
			})
			if err != nil {
				return err
			}

			result, err := svc.Apply(ctx, moderation.ApplyInput{
				TargetUserID:        targetID,
				ModeratorExternalID: moderator,
				Action:              action,
				Reason:              reason,
				ExpectedVersion:     expectedVersion,
				Metadata:            moderation.RequestMetadata{UserAgent: "gatectl"},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), moderationOutput{Result: result, Warnings: result.Warnings})
		},
	}
	cmd.Flags().StringVar(&moderator, "moderator", "", "external id of the acting admin")
	cmd.Flags().StringVar(&reason, "reason", "", "reason, required for REJECT")
	cmd.Flags().Int64Var(&expectedVersion, "version", 0, "version the decision was based on")
	return cmd
}

// moderationEvents connects the user.moderated publisher when a topic is
// configured. The returned close func is always safe to call.
func moderationEvents(ctx context.Context, cfg *config.Config) (*pubsub.EventPublisher, func(), error) {
	noop := func() {}
	if !cfg.PubSub.Enabled() {
		return nil, noop, nil
	}
	psClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, noop, fmt.Errorf("pubsub: %w", err)
	}
	closeClient := func() {
		if err := psClient.Close(); err != nil {
			logg.WarnErr(context.Background(), "gatectl.pubsub_close_failed", err)
		}
	}
	events, err := pubsub.NewEventPublisher(psClient.ModerationPublisher())
	if err != nil {
		closeClient()
		return nil, noop, err
	}
	return events, closeClient, nil
}
