package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/backoffice/internal/status"
	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
)

var timeNow = time.Now

// StatusResolver resolves the snapshot the gate decides on.
type StatusResolver interface {
	Resolve(ctx context.Context, externalID string, claims *auth.SessionClaims) status.Snapshot
}

// Params wires a Gate.
type Params struct {
	Routes   *RouteTable
	Pages    Pages
	Resolver StatusResolver
	Logger   *logger.Logger
	Metrics  *metrics.GateMetrics
}

// Gate maps an account's approval status and a request path onto a Verdict.
type Gate struct {
	routes   *RouteTable
	pages    Pages
	resolver StatusResolver
	logg     *logger.Logger
	metrics  *metrics.GateMetrics
}

// New builds a Gate; routes and pages default to DefaultRouteTable and DefaultPages.
func New(params Params) (*Gate, error) {
	if params.Resolver == nil {
		return nil, fmt.Errorf("status resolver required")
	}
	if params.Routes == nil {
		params.Routes = DefaultRouteTable()
	}
	if params.Pages == (Pages{}) {
		params.Pages = DefaultPages()
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Gate{
		routes:   params.Routes,
		pages:    params.Pages,
		resolver: params.Resolver,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Routes exposes the route table the gate classifies with.
func (g *Gate) Routes() *RouteTable {
	return g.routes
}

// Pages exposes the redirect destinations.
func (g *Gate) Pages() Pages {
	return g.pages
}

// Check resolves the caller's status and evaluates path against it. Anonymous
// callers may only reach public routes.
func (g *Gate) Check(ctx context.Context, path, externalID string, claims *auth.SessionClaims) (Verdict, status.Snapshot) {
	if strings.TrimSpace(externalID) == "" {
		snap := status.DefaultSnapshot(timeNow())
		if g.routes.Classify(path) == enums.RouteCapabilityPublic {
			return g.observe(Allow(), snap), snap
		}
		return g.observe(Redirect(g.pages.SignIn), snap), snap
	}

	snap := g.resolver.Resolve(ctx, externalID, claims)
	verdict := g.Evaluate(path, snap)
	if !verdict.Allowed() {
		ctx = g.logg.WithFields(ctx, map[string]any{
			"path":            path,
			"approval_status": snap.ApprovalStatus,
			"source":          snap.Source,
			"target":          verdict.Target,
		})
		g.logg.Debug(ctx, "gate redirect")
	}
	return g.observe(verdict, snap), snap
}

// Evaluate is a pure function of path and snapshot.
func (g *Gate) Evaluate(path string, snap status.Snapshot) Verdict {
	normalized := normalizePath(path)
	limbo, onLimbo := g.pages.limbo(normalized)

	if snap.IsAdmin {
		if onLimbo {
			return Redirect(g.pages.Home)
		}
		return Allow()
	}

	capability := g.routes.Classify(normalized)

	switch snap.ApprovalStatus {
	case enums.ApprovalStatusApproved:
		if onLimbo || capability == enums.RouteCapabilityAdminOnly {
			return Redirect(g.pages.Home)
		}
		return Allow()
	case enums.ApprovalStatusRejected:
		return g.confine(limbo, onLimbo, capability, g.pages.AccountRejected, false)
	case enums.ApprovalStatusSuspended:
		return g.confine(limbo, onLimbo, capability, g.pages.AccountSuspended, false)
	default:
		return g.confine(limbo, onLimbo, capability, g.pages.PendingApproval, true)
	}
}

// confine allows public routes and the account's own status page, plus the
// pending-allowed subset when allowPending is set; everything else goes home to page.
func (g *Gate) confine(limbo string, onLimbo bool, capability enums.RouteCapability, page string, allowPending bool) Verdict {
	if onLimbo {
		if limbo == page {
			return Allow()
		}
		return Redirect(page)
	}
	if capability == enums.RouteCapabilityPublic {
		return Allow()
	}
	if allowPending && capability == enums.RouteCapabilityPendingAllowed {
		return Allow()
	}
	return Redirect(page)
}

func (g *Gate) observe(v Verdict, snap status.Snapshot) Verdict {
	g.metrics.IncVerdict(string(v.Decision), snap.ApprovalStatus.String())
	return v
}
