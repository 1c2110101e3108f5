package moderation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/angelmondragon/backoffice/pkg/db/models"
	"github.com/angelmondragon/backoffice/pkg/enums"
	"github.com/angelmondragon/backoffice/pkg/identity"
	"github.com/angelmondragon/backoffice/pkg/logger"
	"github.com/angelmondragon/backoffice/pkg/metrics"
	"github.com/angelmondragon/backoffice/pkg/pubsub"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	TaskProfileSync  = "profile_sync"
	TaskBan          = "ban"
	TaskUnban        = "unban"
	TaskPublishEvent = "publish_event"

	defaultPropagationTimeout = 5 * time.Second
	defaultRetryAttempts      = 3
	defaultRetryBaseDelay     = 200 * time.Millisecond
	defaultRetryMaxDelay      = 2 * time.Second
	jitterWindow              = 100 * time.Millisecond
)

type profileWriter interface {
	UpdateProfile(ctx context.Context, externalID string, patch identity.ProfilePatch) error
	BanUser(ctx context.Context, externalID string) error
	UnbanUser(ctx context.Context, externalID string) error
}

type eventPublisher interface {
	PublishModeration(ctx context.Context, event pubsub.ModerationEvent) error
}

type cacheInvalidator interface {
	Invalidate(externalID string)
}

// RetryPolicy bounds retries of transient identity provider failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// PropagatorParams wires the best-effort side channels. Events may be nil.
type PropagatorParams struct {
	Profiles profileWriter
	Events   eventPublisher
	Cache    cacheInvalidator
	Timeout  time.Duration
	Retry    RetryPolicy
	Logger   *logger.Logger
	Metrics  *metrics.GateMetrics
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Job is one committed decision whose effects still have to reach the provider.
type Job struct {
	User           *models.User
	Record         *models.ModerationRecord
	PreviousStatus enums.ApprovalStatus
	Action         enums.ModerationAction
}

// Propagator pushes committed decisions to the identity provider and event bus.
// Failures are collected as warnings and never undo the local commit.
type Propagator struct {
	profiles profileWriter
	events   eventPublisher
	cache    cacheInvalidator
	timeout  time.Duration
	retry    RetryPolicy
	logg     *logger.Logger
	metrics  *metrics.GateMetrics
	sleep    func(ctx context.Context, d time.Duration) error

	wg sync.WaitGroup
}

type task struct {
	name string
	run  func(ctx context.Context) error
}

// NewPropagator validates params and fills defaults.
func NewPropagator(params PropagatorParams) (*Propagator, error) {
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile writer required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("status cache required")
	}
	if params.Timeout <= 0 {
		params.Timeout = defaultPropagationTimeout
	}
	if params.Retry.Attempts <= 0 {
		params.Retry.Attempts = defaultRetryAttempts
	}
	if params.Retry.BaseDelay <= 0 {
		params.Retry.BaseDelay = defaultRetryBaseDelay
	}
	if params.Retry.MaxDelay < params.Retry.BaseDelay {
		params.Retry.MaxDelay = defaultRetryMaxDelay
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Sleep == nil {
		params.Sleep = sleepContext
	}
	return &Propagator{
		profiles: params.Profiles,
		events:   params.Events,
		cache:    params.Cache,
		timeout:  params.Timeout,
		retry:    params.Retry,
		logg:     params.Logger,
		metrics:  params.Metrics,
		sleep:    params.Sleep,
	}, nil
}

// Dispatch runs job in the background. The request context only contributes its values.
func (p *Propagator) Dispatch(ctx context.Context, job Job) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Run(ctx, job)
	}()
}

// Wait blocks until every dispatched job finished.
func (p *Propagator) Wait() {
	p.wg.Wait()
}

// Run executes every task for job in parallel and returns one warning per failed task.
func (p *Propagator) Run(ctx context.Context, job Job) []string {
	if job.User == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	started := time.Now()
	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, t := range p.tasksFor(job) {
		g.Go(func() error {
			if err := p.withRetry(ctx, t.run); err != nil {
				p.metrics.IncPropagationFailure(t.name)
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", t.name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	// Claims minted while propagation was in flight may still carry the old status.
	p.cache.Invalidate(job.User.ExternalID)
	p.metrics.ObservePropagation(time.Since(started))

	if errs == nil {
		return nil
	}
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"target_user_id": job.User.ID.String(),
		"external_id":    job.User.ExternalID,
		"action":         job.Action.String(),
	})
	p.logg.WarnErr(logCtx, "moderation propagation incomplete", errs)

	failures := multierr.Errors(errs)
	warnings := make([]string, 0, len(failures))
	for _, err := range failures {
		warnings = append(warnings, err.Error())
	}
	return warnings
}

func (p *Propagator) tasksFor(job Job) []task {
	externalID := job.User.ExternalID
	tasks := []task{{
		name: TaskProfileSync,
		run: func(ctx context.Context) error {
			return p.profiles.UpdateProfile(ctx, externalID, identity.ProfilePatch{
				ApprovalStatus: job.User.ApprovalStatus.String(),
			})
		},
	}}

	switch {
	case job.Action == enums.ModerationActionReject:
		tasks = append(tasks, task{name: TaskBan, run: func(ctx context.Context) error {
			return p.profiles.BanUser(ctx, externalID)
		}})
	case job.Action == enums.ModerationActionApprove && job.PreviousStatus == enums.ApprovalStatusRejected:
		tasks = append(tasks, task{name: TaskUnban, run: func(ctx context.Context) error {
			return p.profiles.UnbanUser(ctx, externalID)
		}})
	}

	if p.events != nil {
		event := buildEvent(job)
		tasks = append(tasks, task{name: TaskPublishEvent, run: func(ctx context.Context) error {
			return p.events.PublishModeration(ctx, event)
		}})
	}
	return tasks
}

func (p *Propagator) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		err   error
		delay time.Duration
	)
	for attempt := 1; attempt <= p.retry.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == p.retry.Attempts || !identity.IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		delay = nextBackoff(delay, p.retry.BaseDelay, p.retry.MaxDelay)
		if sleepErr := p.sleep(ctx, withJitter(delay)); sleepErr != nil {
			return multierr.Append(err, sleepErr)
		}
	}
	return err
}

func buildEvent(job Job) pubsub.ModerationEvent {
	event := pubsub.ModerationEvent{
		EventID:        uuid.New(),
		TargetUserID:   job.User.ID,
		ExternalID:     job.User.ExternalID,
		Action:         job.Action.String(),
		PreviousStatus: job.PreviousStatus.String(),
		NewStatus:      job.User.ApprovalStatus.String(),
		Version:        job.User.Version,
		OccurredAt:     job.User.UpdatedAt,
	}
	if job.Record != nil {
		event.EventID = job.Record.ID
		event.ModeratorID = job.Record.ModeratorID
		event.OccurredAt = job.Record.CreatedAt
	}
	return event
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		return base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int64N(int64(jitterWindow)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
