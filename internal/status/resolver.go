package status

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/backoffice/pkg/auth"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
)

const defaultProfileTimeout = 5 * time.Second

// ProfileStore reads a user's metadata from the identity provider.
type ProfileStore interface {
	GetProfile(ctx context.Context, externalID string) (*identity.Profile, error)
}

// ResolverParams wires a Resolver.
type ResolverParams struct {
	Cache          *Cache
	Profiles       ProfileStore
	ProfileTimeout time.Duration
	Logger         *logger.Logger
	Metrics        *metrics.GateMetrics
	Now            func() time.Time
}

// Resolver answers "what is this account allowed to do right now" from session
// claims, the status cache or the profile store, in that order.
type Resolver struct {
	cache    *Cache
	profiles ProfileStore
	timeout  time.Duration
	logg     *logger.Logger
	metrics  *metrics.GateMetrics
	now      func() time.Time
}

// NewResolver validates params and builds a Resolver.
func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Cache == nil {
		return nil, fmt.Errorf("status cache required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile store required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.ProfileTimeout <= 0 {
		params.ProfileTimeout = defaultProfileTimeout
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &Resolver{
		cache:    params.Cache,
		profiles: params.Profiles,
		timeout:  params.ProfileTimeout,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      params.Now,
	}, nil
}

// Cache exposes the underlying cache so writers can invalidate entries.
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// Resolve never fails: when no source answers it returns DefaultSnapshot.
func (r *Resolver) Resolve(ctx context.Context, externalID string, claims *auth.SessionClaims) Snapshot {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return r.record(DefaultSnapshot(r.now()))
	}
	ctx = r.logg.WithExternalID(ctx, externalID)

	if snap, ok := r.fromClaims(externalID, claims); ok {
		return r.record(snap)
	}

	if snap, ok := r.cache.Get(externalID); ok {
		return r.record(snap)
	}

	snap, err := r.fromProfileStore(ctx, externalID)
	if err != nil {
		if errors.Is(err, identity.ErrProfileNotFound) {
			r.logg.Debug(ctx, "profile not found, using default status")
		} else {
			r.logg.WarnErr(ctx, "profile store unavailable, using default status", err)
		}
		return r.record(DefaultSnapshot(r.now()))
	}

	r.cache.Put(externalID, snap)
	return r.record(snap)
}

func (r *Resolver) fromClaims(externalID string, claims *auth.SessionClaims) (Snapshot, bool) {
	if !claims.HasApprovalStatus() || claims.ExternalID() != externalID {
		return Snapshot{}, false
	}

	approval, err := enums.ParseApprovalStatus(claims.Metadata.ApprovalStatus)
	if err != nil {
		return Snapshot{}, false
	}

	issuedAt := claims.IssuedAtTime()
	if invalidatedAt, ok := r.cache.InvalidatedAt(externalID); ok {
		if issuedAt.IsZero() || !issuedAt.After(invalidatedAt) {
			return Snapshot{}, false
		}
	}

	resolvedAt := issuedAt
	if resolvedAt.IsZero() {
		resolvedAt = r.now()
	}
	return NewSnapshot(approval, parseRole(claims.Metadata.Role), resolvedAt, enums.SnapshotSourceSessionClaims), true
}

type profileResult struct {
	profile *identity.Profile
	err     error
}

// fromProfileStore bounds the call with the profile timeout even if the store ignores ctx.
func (r *Resolver) fromProfileStore(ctx context.Context, externalID string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan profileResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- profileResult{err: fmt.Errorf("profile store panic: %v", rec)}
			}
		}()
		profile, err := r.profiles.GetProfile(ctx, externalID)
		done <- profileResult{profile: profile, err: err}
	}()

	var res profileResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return Snapshot{}, fmt.Errorf("profile lookup: %w", ctx.Err())
	}
	if res.err != nil {
		return Snapshot{}, res.err
	}
	if res.profile == nil {
		return Snapshot{}, identity.ErrProfileNotFound
	}

	approval := enums.ApprovalStatusPending
	if raw := strings.TrimSpace(res.profile.ApprovalStatus); raw != "" {
		parsed, err := enums.ParseApprovalStatus(raw)
		if err != nil {
			return Snapshot{}, err
		}
		approval = parsed
	}
	return NewSnapshot(approval, parseRole(res.profile.Role), r.now(), enums.SnapshotSourceProfileStore), nil
}

func (r *Resolver) record(snap Snapshot) Snapshot {
	r.metrics.IncResolution(snap.Source.String())
	return snap
}

func parseRole(raw string) enums.UserRole {
	role, err := enums.ParseUserRole(raw)
	if err != nil {
		return enums.UserRoleUser
	}
	return role
}
