package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/backoffice/internal/gate"
	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/enums"
)

type evaluation struct {
	Path       string                `json:"path"`
	Capability enums.RouteCapability `json:"capability"`
	Snapshot   status.Snapshot       `json:"snapshot"`
	Allowed    bool                  `json:"allowed"`
	Redirect   string                `json:"redirect,omitempty"`
}

// offlineResolver never consults a store; evaluate runs without config.
type offlineResolver struct{}

func (offlineResolver) Resolve(_ context.Context, _ string, _ *auth.SessionClaims) status.Snapshot {
	return status.DefaultSnapshot(time.Now())
}

func newEvaluateCmd() *cobra.Command {
	var (
		approval string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "evaluate <path>",
		Short: "Show the gate decision for a path and an approval status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approvalStatus, err := enums.ParseApprovalStatus(approval)
			if err != nil {
				return err
			}
			userRole, err := enums.ParseUserRole(role)
			if err != nil {
				return err
			}
			g, err := gate.New(gate.Params{Resolver: offlineResolver{}, Logger: logg})
			if err != nil {
				return fmt.Errorf("build gate: %w", err)
			}

			snap := status.NewSnapshot(approvalStatus, userRole, time.Now(), enums.SnapshotSourceDefault)
			verdict := g.Evaluate(args[0], snap)
			return printJSON(cmd.OutOrStdout(), evaluation{
				Path:       args[0],
				Capability: g.Routes().Classify(args[0]),
				Snapshot:   snap,
				Allowed:    verdict.Allowed(),
				Redirect:   verdict.Target,
			})
		},
	}
	cmd.Flags().StringVar(&approval, "status", string(enums.ApprovalStatusPending), "approval status (PENDING/APPROVED/REJECTED/SUSPENDED)")
	cmd.Flags().StringVar(&role, "role", string(enums.UserRoleUser), "user role (USER/ADMIN)")
	return cmd
}
