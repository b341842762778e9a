package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
)

// GroupResolver looks up a target group on the platform.
type GroupResolver interface {
	ResolveGroup(ctx context.Context, groupID string) (*onboard.Group, error)
}

// BatchQueue accepts batches and reports on them.
type BatchQueue interface {
	Enqueue(ctx context.Context, batch onboard.Batch) (onboard.BatchStatus, error)
	Status(ctx context.Context, batchID string) (*onboard.BatchStatus, error)
	Pending() int
	Running() bool
}

// SettingsStore reads and updates the effective settings.
type SettingsStore interface {
	Current(ctx context.Context) domain.Settings
	Update(ctx context.Context, in domain.Settings) (domain.Settings, error)
}

// StartBatchInput is an administrator's push request.
type StartBatchInput struct {
	GroupID     string
	Quantity    int
	Roles       []string
	RequestedBy string
}

// Stats summarises the pool and queue.
type Stats struct {
	PoolSize     int  `json:"pool_size"`
	CodesIssued  int  `json:"codes_issued"`
	PendingBatch int  `json:"pending_batches"`
	BatchRunning bool `json:"batch_running"`
}

// AdminService backs the administrator API.
type AdminService struct {
	credentials repository.CredentialStore
	codes       repository.RedemptionCodeRepository
	groups      GroupResolver
	queue       BatchQueue
	settings    SettingsStore
	redemption  *redemption.Service
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewAdminService wires dependencies.
func NewAdminService(
	credentials repository.CredentialStore,
	codes repository.RedemptionCodeRepository,
	groups GroupResolver,
	queue BatchQueue,
	settings SettingsStore,
	redemptionService *redemption.Service,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		credentials: credentials,
		codes:       codes,
		groups:      groups,
		queue:       queue,
		settings:    settings,
		redemption:  redemptionService,
		logger:      logger,
		tracer:      otel.Tracer("github.com/smallbiznis/valora-onboard/internal/service"),
	}
}

// StartBatch validates a push against the pool and target group, then queues it.
func (s *AdminService) StartBatch(ctx context.Context, in StartBatchInput) (onboard.BatchStatus, error) {
	ctx, span := s.tracer.Start(ctx, "admin.StartBatch", trace.WithAttributes(
		attribute.String("group.id", in.GroupID),
		attribute.Int("batch.quantity", in.Quantity),
	))
	defer span.End()

	if in.Quantity <= 0 {
		return onboard.BatchStatus{}, onboard.ErrInvalidQuantity
	}
	groupID := strings.TrimSpace(in.GroupID)
	if groupID == "" {
		return onboard.BatchStatus{}, fmt.Errorf("%w: group_id is required", onboard.ErrValidation)
	}

	pool, err := s.credentials.Count(ctx)
	if err != nil {
		return onboard.BatchStatus{}, fmt.Errorf("count credentials: %w", err)
	}
	if in.Quantity > pool {
		return onboard.BatchStatus{}, fmt.Errorf("%w: requested %d, available %d", onboard.ErrInsufficientPool, in.Quantity, pool)
	}

	group, err := s.groups.ResolveGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, onboard.ErrNotFound) {
			return onboard.BatchStatus{}, err
		}
		return onboard.BatchStatus{}, fmt.Errorf("resolve group: %w", err)
	}

	status, err := s.queue.Enqueue(ctx, onboard.Batch{
		GroupID:     group.ID,
		GroupName:   group.Name,
		Quantity:    in.Quantity,
		Roles:       compact(in.Roles),
		Source:      onboard.SourceAdmin,
		RequestedBy: in.RequestedBy,
	})
	if err != nil {
		return onboard.BatchStatus{}, fmt.Errorf("queue batch: %w", err)
	}
	s.log().Info("admin batch queued",
		zap.String("batch_id", status.Batch.ID),
		zap.String("group_id", group.ID),
		zap.Int("quantity", in.Quantity),
	)
	return status, nil
}

// BatchStatus returns the recorded status of a batch.
func (s *AdminService) BatchStatus(ctx context.Context, batchID string) (*onboard.BatchStatus, error) {
	return s.queue.Status(ctx, strings.TrimSpace(batchID))
}

// IssueCodes mints redemption codes.
func (s *AdminService) IssueCodes(ctx context.Context, in redemption.IssueInput) ([]redemption.IssuedCode, error) {
	return s.redemption.Issue(ctx, in)
}

// Stats reports pool size, issued code count and queue depth.
func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	pool, err := s.credentials.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count credentials: %w", err)
	}
	codes, err := s.codes.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count codes: %w", err)
	}
	return Stats{
		PoolSize:     pool,
		CodesIssued:  codes,
		PendingBatch: s.queue.Pending(),
		BatchRunning: s.queue.Running(),
	}, nil
}

func (s *AdminService) Settings(ctx context.Context) domain.Settings {
	return s.settings.Current(ctx)
}

func (s *AdminService) UpdateSettings(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	return s.settings.Update(ctx, in)
}

func compact(values []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func (s *AdminService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
