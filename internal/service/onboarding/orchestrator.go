package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/adapter/platform"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

const tracerName = "github.com/smallbiznis/valora-onboard/internal/service/onboarding"

// Orchestrator adds sampled subjects to a target group, one at a time.
type Orchestrator struct {
	platform    platform.Client
	credentials repository.CredentialStore
	delay       time.Duration
	logger      *zap.Logger
	tracer      trace.Tracer
	wait        func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator constructs an Orchestrator. delay must be positive.
func NewOrchestrator(client platform.Client, credentials repository.CredentialStore, delay time.Duration, logger *zap.Logger) (*Orchestrator, error) {
	if delay <= 0 {
		return nil, fmt.Errorf("attempt delay must be positive, got %s", delay)
	}
	return &Orchestrator{
		platform:    client,
		credentials: credentials,
		delay:       delay,
		logger:      logger,
		tracer:      otel.Tracer(tracerName),
		wait:        sleep,
	}, nil
}

// ResolveTarget checks the group exists before any subject is touched.
func (o *Orchestrator) ResolveTarget(ctx context.Context, groupID string) (*onboard.Group, error) {
	group, err := o.platform.ResolveGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, onboard.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("resolve group: %w", err)
	}
	return group, nil
}

// Run executes one batch. Per-candidate failures are counted, never returned;
// the returned error is reserved for failures before the first attempt.
func (o *Orchestrator) Run(ctx context.Context, batch onboard.Batch) (onboard.Result, error) {
	ctx, span := o.tracer.Start(ctx, "onboarding.Run", trace.WithAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.String("group.id", batch.GroupID),
		attribute.Int("batch.quantity", batch.Quantity),
	))
	defer span.End()

	if batch.Quantity <= 0 {
		return onboard.Result{}, onboard.ErrInvalidQuantity
	}

	group, err := o.ResolveTarget(ctx, batch.GroupID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return onboard.Result{}, err
	}

	candidates, err := o.credentials.Sample(ctx, batch.Quantity)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return onboard.Result{}, fmt.Errorf("sample credentials: %w", err)
	}

	logger := o.log().With(
		zap.String("batch_id", batch.ID),
		zap.String("group_id", group.ID),
		zap.String("group_name", group.Name),
	)
	logger.Info("onboarding batch started", zap.Int("requested", batch.Quantity), zap.Int("sampled", len(candidates)))

	result := onboard.Result{Attempted: batch.Quantity}
	if shortfall := batch.Quantity - len(candidates); shortfall > 0 {
		// The pool shrank between validation and sampling.
		result.Failed += shortfall
		logger.Warn("credential pool smaller than requested", zap.Int("shortfall", shortfall))
	}

	for i, candidate := range candidates {
		if i > 0 {
			if err := o.wait(ctx, o.delay); err != nil {
				// Remaining candidates count as failed.
				result.Failed += len(candidates) - i
				logger.Warn("onboarding batch interrupted", zap.Error(err))
				break
			}
		}
		if o.attempt(ctx, logger, group.ID, candidate, batch.Roles) {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("batch.succeeded", result.Succeeded),
		attribute.Int("batch.failed", result.Failed),
	)
	logger.Info("onboarding batch finished",
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (o *Orchestrator) attempt(ctx context.Context, logger *zap.Logger, groupID string, candidate domain.CredentialRecord, roles []string) bool {
	err := o.platform.AddMember(ctx, groupID, candidate.SubjectID, candidate.AccessToken, roles)
	if err == nil {
		return true
	}

	fields := []zap.Field{zap.String("subject_id", candidate.SubjectID), zap.String("class", failureClass(err)), zap.Error(err)}
	logger.Warn("onboarding attempt failed", fields...)

	if errors.Is(err, onboard.ErrCredentialInvalid) {
		if delErr := o.credentials.Delete(ctx, candidate.SubjectID); delErr != nil {
			logger.Error("prune credential failed", zap.String("subject_id", candidate.SubjectID), zap.Error(delErr))
		} else {
			logger.Info("pruned invalid credential", zap.String("subject_id", candidate.SubjectID))
		}
	}
	return false
}

func failureClass(err error) string {
	switch {
	case errors.Is(err, onboard.ErrCredentialInvalid):
		return "credential_invalid"
	case errors.Is(err, onboard.ErrTransient):
		return "transient"
	case errors.Is(err, onboard.ErrAlreadyMember):
		return "already_member"
	default:
		return "other"
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) log() *zap.Logger {
	if o != nil && o.logger != nil {
		return o.logger
	}
	return zap.L()
}
