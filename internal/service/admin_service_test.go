package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/adapter/platform/platformtest"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
	"github.com/smallbiznis/valora-onboard/internal/repository/memory"
	"github.com/smallbiznis/valora-onboard/internal/service"
	"github.com/smallbiznis/valora-onboard/internal/service/redemption"
	"github.com/smallbiznis/valora-onboard/internal/service/settings"
)

type memoryQueue struct {
	statuses *memory.BatchStatuses
	batches  []onboard.Batch
}

func (q *memoryQueue) Enqueue(ctx context.Context, batch onboard.Batch) (onboard.BatchStatus, error) {
	batch.ID = fmt.Sprintf("b-%d", len(q.batches)+1)
	q.batches = append(q.batches, batch)
	status := onboard.BatchStatus{Batch: batch, Status: onboard.StatusQueued}
	return status, q.statuses.Put(ctx, status)
}

func (q *memoryQueue) Status(ctx context.Context, id string) (*onboard.BatchStatus, error) {
	return q.statuses.Get(ctx, id)
}

func (q *memoryQueue) Pending() int  { return len(q.batches) }
func (q *memoryQueue) Running() bool { return false }

type adminHarness struct {
	admin  *service.AdminService
	client *platformtest.Fake
	queue  *memoryQueue
}

func newAdminHarness(pool int) *adminHarness {
	records := make([]domain.CredentialRecord, 0, pool)
	for i := 0; i < pool; i++ {
		records = append(records, domain.CredentialRecord{SubjectID: fmt.Sprintf("U%d", i)})
	}
	credentials := memory.NewCredentialStore(records...)
	codes := memory.NewRedemptionCodes()
	client := platformtest.New()
	client.Groups["G1"] = onboard.Group{ID: "G1", Name: "Guild"}
	queue := &memoryQueue{statuses: memory.NewBatchStatuses()}
	resolver := settings.NewResolver(memory.NewSettings(), domain.Settings{MainGroupID: "G-main"}, zap.NewNop())
	redeem := redemption.NewService(codes, credentials, client, queue, "https://onboard.example", zap.NewNop())

	admin := service.NewAdminService(credentials, codes, client, queue, resolver, redeem, zap.NewNop())
	return &adminHarness{admin: admin, client: client, queue: queue}
}

func TestStartBatchQueues(t *testing.T) {
	h := newAdminHarness(10)

	status, err := h.admin.StartBatch(context.Background(), service.StartBatchInput{
		GroupID:     "G1",
		Quantity:    5,
		Roles:       []string{"R1", " ", "R1"},
		RequestedBy: "admin",
	})
	require.NoError(t, err)
	require.Equal(t, onboard.StatusQueued, status.Status)
	require.Equal(t, "Guild", status.Batch.GroupName)
	require.Equal(t, []string{"R1"}, status.Batch.Roles)
	require.Equal(t, onboard.SourceAdmin, status.Batch.Source)

	got, err := h.admin.BatchStatus(context.Background(), status.Batch.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.Batch.Quantity)
}

func TestStartBatchValidatesBeforeNetwork(t *testing.T) {
	h := newAdminHarness(10)

	_, err := h.admin.StartBatch(context.Background(), service.StartBatchInput{GroupID: "G1", Quantity: 11})
	require.ErrorIs(t, err, onboard.ErrValidation)
	_, err = h.admin.StartBatch(context.Background(), service.StartBatchInput{GroupID: "G1", Quantity: -1})
	require.ErrorIs(t, err, onboard.ErrValidation)
	require.Zero(t, h.client.NetworkCalls())

	_, err = h.admin.StartBatch(context.Background(), service.StartBatchInput{GroupID: "G404", Quantity: 1})
	require.ErrorIs(t, err, onboard.ErrNotFound)
	require.Empty(t, h.queue.batches)
}

func TestBatchStatusUnknown(t *testing.T) {
	h := newAdminHarness(1)
	_, err := h.admin.BatchStatus(context.Background(), "missing")
	require.ErrorIs(t, err, onboard.ErrBatchNotFound)
}

func TestStatsAndCodes(t *testing.T) {
	h := newAdminHarness(4)

	issued, err := h.admin.IssueCodes(context.Background(), redemption.IssueInput{Quantity: 2, Count: 2, CreatorID: "admin"})
	require.NoError(t, err)
	require.Len(t, issued, 2)

	stats, err := h.admin.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, stats.PoolSize)
	require.Equal(t, 2, stats.CodesIssued)
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newAdminHarness(1)
	require.Equal(t, "G-main", h.admin.Settings(context.Background()).MainGroupID)

	updated, err := h.admin.UpdateSettings(context.Background(), domain.Settings{MainGroupID: "G-main", VerifiedRoleID: "R1"})
	require.NoError(t, err)
	require.Equal(t, "G-main", updated.MainGroupID)
	require.Equal(t, "R1", updated.VerifiedRoleID)
	require.Equal(t, updated, h.admin.Settings(context.Background()))

	_, err = h.admin.UpdateSettings(context.Background(), domain.Settings{VerifiedRoleID: "R1"})
	require.ErrorIs(t, err, onboard.ErrValidation)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReport(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	healthy := service.NewHealthService(map[string]repository.Pinger{"database": ok, "redis": ok}, zap.NewNop()).Check(context.Background())
	require.True(t, healthy.Healthy())
	require.Equal(t, "connected", healthy.Checks["database"])

	degraded := service.NewHealthService(map[string]repository.Pinger{"database": down, "redis": ok}, zap.NewNop()).Check(context.Background())
	require.False(t, degraded.Healthy())
	require.Equal(t, "degraded", degraded.Status)
	require.Equal(t, "unavailable", degraded.Checks["database"])
}
