package redemption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

// MaxCodesPerIssue caps how many codes one Issue call may mint.
const MaxCodesPerIssue = 100

// GroupResolver looks up a target group on the platform.
type GroupResolver interface {
	ResolveGroup(ctx context.Context, groupID string) (*onboard.Group, error)
}

// Enqueuer hands a batch to the background worker.
type Enqueuer interface {
	Enqueue(ctx context.Context, batch onboard.Batch) (onboard.BatchStatus, error)
}

// IssueInput describes a bulk code issue.
type IssueInput struct {
	Quantity  int
	Count     int
	CreatorID string
}

// IssuedCode is a freshly minted code and its public redeem link.
type IssuedCode struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
	Link     string `json:"link"`
}

// Service issues and redeems single-use redemption codes.
type Service struct {
	codes       repository.RedemptionCodeRepository
	credentials repository.CredentialStore
	groups      GroupResolver
	queue       Enqueuer
	baseURL     string
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(
	codes repository.RedemptionCodeRepository,
	credentials repository.CredentialStore,
	groups GroupResolver,
	queue Enqueuer,
	baseURL string,
	logger *zap.Logger,
) *Service {
	return &Service{
		codes:       codes,
		credentials: credentials,
		groups:      groups,
		queue:       queue,
		baseURL:     strings.TrimRight(baseURL, "/"),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints Count codes, each worth Quantity subjects.
func (s *Service) Issue(ctx context.Context, in IssueInput) ([]IssuedCode, error) {
	if in.Quantity <= 0 {
		return nil, onboard.ErrInvalidQuantity
	}
	if in.Count <= 0 || in.Count > MaxCodesPerIssue {
		return nil, fmt.Errorf("%w: count must be between 1 and %d", onboard.ErrValidation, MaxCodesPerIssue)
	}
	if err := s.checkPool(ctx, in.Quantity); err != nil {
		return nil, err
	}

	issued := make([]IssuedCode, 0, in.Count)
	for i := 0; i < in.Count; i++ {
		code := domain.RedemptionCode{
			Code:              uuid.NewString(),
			RequestedQuantity: in.Quantity,
			CreatorID:         strings.TrimSpace(in.CreatorID),
			CreatedAt:         s.now(),
		}
		if err := s.codes.Create(ctx, code); err != nil {
			return issued, fmt.Errorf("issue code: %w", err)
		}
		issued = append(issued, IssuedCode{Code: code.Code, Quantity: code.RequestedQuantity, Link: s.Link(code.Code)})
	}

	s.log().Info("redemption codes issued",
		zap.Int("count", len(issued)),
		zap.Int("quantity", in.Quantity),
		zap.String("creator_id", in.CreatorID),
	)
	return issued, nil
}

// Link returns the public redeem URL for code.
func (s *Service) Link(code string) string {
	return s.baseURL + "/redeem/" + code
}

// Lookup returns the code record or ErrCodeNotFound.
func (s *Service) Lookup(ctx context.Context, code string) (domain.RedemptionCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.RedemptionCode{}, onboard.ErrCodeNotFound
	}
	rc, err := s.codes.Get(ctx, code)
	if err != nil {
		if errors.Is(err, onboard.ErrNotFound) {
			return domain.RedemptionCode{}, err
		}
		return domain.RedemptionCode{}, fmt.Errorf("lookup code: %w", err)
	}
	return rc, nil
}

// Redeem validates a code against the current pool, claims it and queues a batch
// for its quantity. Validation and lookup failures leave the code unused.
func (s *Service) Redeem(ctx context.Context, code, groupID, requestedBy string) (onboard.BatchStatus, error) {
	rc, err := s.Lookup(ctx, code)
	if err != nil {
		return onboard.BatchStatus{}, err
	}
	if rc.Used {
		return onboard.BatchStatus{}, onboard.ErrCodeUsed
	}
	if err := s.checkPool(ctx, rc.RequestedQuantity); err != nil {
		return onboard.BatchStatus{}, err
	}

	group, err := s.groups.ResolveGroup(ctx, strings.TrimSpace(groupID))
	if err != nil {
		if errors.Is(err, onboard.ErrNotFound) {
			return onboard.BatchStatus{}, err
		}
		return onboard.BatchStatus{}, fmt.Errorf("resolve group: %w", err)
	}

	claimed, err := s.codes.Claim(ctx, rc.Code)
	if err != nil {
		return onboard.BatchStatus{}, fmt.Errorf("claim code: %w", err)
	}
	if !claimed {
		return onboard.BatchStatus{}, onboard.ErrCodeUsed
	}

	status, err := s.queue.Enqueue(ctx, onboard.Batch{
		GroupID:     group.ID,
		GroupName:   group.Name,
		Quantity:    rc.RequestedQuantity,
		Source:      onboard.SourceRedeem,
		RequestedBy: requestedBy,
		Code:        rc.Code,
	})
	if err != nil {
		if relErr := s.codes.Release(ctx, rc.Code); relErr != nil {
			s.log().Error("release code after enqueue failure", zap.String("code", rc.Code), zap.Error(relErr))
		}
		return onboard.BatchStatus{}, fmt.Errorf("queue batch: %w", err)
	}

	s.log().Info("redemption code redeemed",
		zap.String("code", rc.Code),
		zap.String("group_id", group.ID),
		zap.Int("quantity", rc.RequestedQuantity),
		zap.String("batch_id", status.Batch.ID),
	)
	return status, nil
}

func (s *Service) checkPool(ctx context.Context, quantity int) error {
	pool, err := s.credentials.Count(ctx)
	if err != nil {
		return fmt.Errorf("count credentials: %w", err)
	}
	if quantity > pool {
		return fmt.Errorf("%w: requested %d, available %d", onboard.ErrInsufficientPool, quantity, pool)
	}
	return nil
}

func (s *Service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
