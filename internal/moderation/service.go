package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/backoffice/internal/users"
	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	pkgerrors "github.com/angelmondragon/backoffice/pkg/errors"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultStoreTimeout = 5 * time.Second

type usersRepository interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByIDTx(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error)
	CompareAndSwapTx(ctx context.Context, tx *gorm.DB, id uuid.UUID, expectedVersion int64, patch users.StatusPatch) (*models.User, error)
}

type auditRepository interface {
	AppendTx(ctx context.Context, tx *gorm.DB, record *models.ModerationRecord) error
	ListByTarget(ctx context.Context, targetUserID uuid.UUID, limit int) ([]models.ModerationRecord, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service applies admin moderation decisions against the local user store.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*Result, error)
	History(ctx context.Context, targetUserID uuid.UUID, limit int) ([]RecordDTO, error)
	// Wait blocks until background propagation drained; used on shutdown.
	Wait()
}

// ServiceParams wires the moderation service.
type ServiceParams struct {
	Users              usersRepository
	Audit              auditRepository
	Tx                 txRunner
	Cache              cacheInvalidator
	Propagator         *Propagator
	InitialCreditGrant int
	StoreTimeout       time.Duration
	AwaitPropagation   bool
	Logger             *logger.Logger
	Metrics            *metrics.GateMetrics
	Now                func() time.Time
}

type service struct {
	users          usersRepository
	audit          auditRepository
	tx             txRunner
	cache          cacheInvalidator
	propagator     *Propagator
	initialCredits int
	storeTimeout   time.Duration
	await          bool
	logg           *logger.Logger
	metrics        *metrics.GateMetrics
	now            func() time.Time
}

// NewService builds the moderation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("status cache required")
	}
	if params.Propagator == nil {
		return nil, fmt.Errorf("propagator required")
	}
	if params.InitialCreditGrant < 0 {
		return nil, fmt.Errorf("initial credit grant must not be negative")
	}
	if params.StoreTimeout <= 0 {
		params.StoreTimeout = defaultStoreTimeout
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		users:          params.Users,
		audit:          params.Audit,
		tx:             params.Tx,
		cache:          params.Cache,
		propagator:     params.Propagator,
		initialCredits: params.InitialCreditGrant,
		storeTimeout:   params.StoreTimeout,
		await:          params.AwaitPropagation,
		logg:           params.Logger,
		metrics:        params.Metrics,
		now:            params.Now,
	}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*Result, error) {
	result, err := s.apply(ctx, input)
	s.metrics.IncModeration(input.Action.String(), outcomeOf(err))
	return result, err
}

func (s *service) apply(ctx context.Context, input ApplyInput) (*Result, error) {
	if input.TargetUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target user id is required")
	}
	if strings.TrimSpace(input.ModeratorExternalID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "moderator identity missing")
	}
	if input.ExpectedVersion < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected version must not be negative")
	}
	if _, err := validateDecision(input.Action, input.Reason); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	moderator, err := s.users.FindByExternalID(storeCtx, input.ModeratorExternalID)
	if err != nil {
		return nil, notFoundOr(err, "moderator not found", "load moderator")
	}
	if !moderator.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "moderator is not an admin")
	}
	patch, err := planTransition(input.Action, input.Reason, moderator.ID, now, s.initialCredits)
	if err != nil {
		return nil, err
	}

	var (
		updated  *models.User
		previous enums.ApprovalStatus
		record   *models.ModerationRecord
	)
	err = s.tx.WithTx(storeCtx, func(tx *gorm.DB) error {
		current, err := s.users.FindByIDTx(storeCtx, tx, input.TargetUserID)
		if err != nil {
			return notFoundOr(err, "target user not found", "load target user")
		}
		if current.Version != input.ExpectedVersion {
			return conflictError(input.ExpectedVersion, current.Version)
		}
		previous = current.ApprovalStatus

		updated, err = s.users.CompareAndSwapTx(storeCtx, tx, current.ID, input.ExpectedVersion, patch)
		if errors.Is(err, users.ErrVersionConflict) {
			latest, findErr := s.users.FindByIDTx(storeCtx, tx, current.ID)
			if findErr != nil {
				return conflictError(input.ExpectedVersion, -1)
			}
			return conflictError(input.ExpectedVersion, latest.Version)
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user status")
		}

		record = &models.ModerationRecord{
			TargetUserID:   current.ID,
			ModeratorID:    moderator.ID,
			Action:         input.Action,
			PreviousStatus: previous,
			NewStatus:      updated.ApprovalStatus,
			Reason:         optionalReason(input.Reason),
			Metadata: &models.ModerationMetadata{
				IP:              input.Metadata.IP,
				UserAgent:       input.Metadata.UserAgent,
				RequestID:       input.Metadata.RequestID,
				ExpectedVersion: input.ExpectedVersion,
				RequestedAt:     now,
			},
			CreatedAt: now,
		}
		if err := s.audit.AppendTx(storeCtx, tx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append moderation record")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit moderation")
		}
		return nil, err
	}

	// Committed. Nothing past this point may fail the decision.
	s.cache.Invalidate(updated.ExternalID)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"target_user_id":  updated.ID.String(),
		"moderator_id":    moderator.ID.String(),
		"action":          input.Action.String(),
		"previous_status": previous.String(),
		"new_status":      updated.ApprovalStatus.String(),
		"version":         updated.Version,
	})
	s.logg.Info(logCtx, "moderation decision applied")

	result := &Result{
		User:   users.FromModel(updated),
		Record: recordFromModel(record),
	}
	job := Job{User: updated, Record: record, PreviousStatus: previous, Action: input.Action}
	if s.await {
		result.Warnings = s.propagator.Run(logCtx, job)
	} else {
		s.propagator.Dispatch(logCtx, job)
		result.PropagationPending = true
	}
	return result, nil
}

func (s *service) History(ctx context.Context, targetUserID uuid.UUID, limit int) ([]RecordDTO, error) {
	if targetUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target user id is required")
	}
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	if _, err := s.users.FindByID(storeCtx, targetUserID); err != nil {
		return nil, notFoundOr(err, "target user not found", "load target user")
	}
	rows, err := s.audit.ListByTarget(storeCtx, targetUserID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list moderation records")
	}
	out := make([]RecordDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *recordFromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Wait() {
	s.propagator.Wait()
}

func conflictError(expected, current int64) error {
	details := map[string]any{"expected_version": expected}
	if current >= 0 {
		details["current_version"] = current
	}
	return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "user was modified concurrently; reload and retry").
		WithDetails(details)
}

func notFoundOr(err error, notFoundMsg, dependencyMsg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, dependencyMsg)
}

func outcomeOf(err error) string {
	if err == nil {
		return "applied"
	}
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
