package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/adapter/notify"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository/memory"
)

type stubRunner struct {
	mu      sync.Mutex
	release chan struct{}
	result  onboard.Result
	err     error
	ran     []string
}

func (r *stubRunner) Run(_ context.Context, batch onboard.Batch) (onboard.Result, error) {
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	r.ran = append(r.ran, batch.ID)
	r.mu.Unlock()
	return r.result, r.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(_ context.Context, _ string, event notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type staticSettings domain.Settings

func (s staticSettings) Current(context.Context) domain.Settings { return domain.Settings(s) }

func newTestQueue(t *testing.T, runner Runner, size int, notifier notify.Notifier) (*Queue, *memory.BatchStatuses) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	statuses := memory.NewBatchStatuses()
	q := NewQueue(runner, statuses, notifier, staticSettings{LogWebhookURL: "https://hooks.example/1"}, node, size, zap.NewNop())
	return q, statuses
}

func waitForStatus(t *testing.T, statuses *memory.BatchStatuses, id, want string) *onboard.BatchStatus {
	t.Helper()
	var got *onboard.BatchStatus
	require.Eventually(t, func() bool {
		s, err := statuses.Get(context.Background(), id)
		if err != nil {
			return false
		}
		got = s
		return s.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestQueueRunsBatchAndRecordsCompletion(t *testing.T) {
	runner := &stubRunner{result: onboard.Result{Attempted: 3, Succeeded: 2, Failed: 1}}
	notifier := &recordingNotifier{}
	q, statuses := newTestQueue(t, runner, 4, notifier)
	q.Start()
	defer func() { require.NoError(t, q.Stop(context.Background())) }()

	queued, err := q.Enqueue(context.Background(), onboard.Batch{GroupID: "G1", Quantity: 3, Source: onboard.SourceAdmin})
	require.NoError(t, err)
	require.NotEmpty(t, queued.Batch.ID)
	require.Equal(t, onboard.StatusQueued, queued.Status)

	done := waitForStatus(t, statuses, queued.Batch.ID, onboard.StatusCompleted)
	require.Equal(t, 2, done.Result.Succeeded)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.FinishedAt)
	require.Eventually(t, func() bool { return notifier.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestQueueRecordsRunnerError(t *testing.T) {
	runner := &stubRunner{err: onboard.ErrGroupNotFound}
	q, statuses := newTestQueue(t, runner, 1, nil)
	q.Start()
	defer func() { require.NoError(t, q.Stop(context.Background())) }()

	queued, err := q.Enqueue(context.Background(), onboard.Batch{GroupID: "G404", Quantity: 1})
	require.NoError(t, err)

	failed := waitForStatus(t, statuses, queued.Batch.ID, onboard.StatusFailed)
	require.Contains(t, failed.Error, "group")
	require.Nil(t, failed.Result)
}

func TestQueueFullRejectsWithoutBlocking(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	q, statuses := newTestQueue(t, runner, 1, nil)

	first, err := q.Enqueue(context.Background(), onboard.Batch{GroupID: "G1", Quantity: 1})
	require.NoError(t, err)

	_, err = q.Enqueue(context.Background(), onboard.Batch{ID: "overflow", GroupID: "G1", Quantity: 1})
	require.ErrorIs(t, err, onboard.ErrQueueFull)
	require.ErrorIs(t, err, onboard.ErrTransient)

	rejected, err := statuses.Get(context.Background(), "overflow")
	require.NoError(t, err)
	require.Equal(t, onboard.StatusFailed, rejected.Status)

	q.Start()
	close(runner.release)
	waitForStatus(t, statuses, first.Batch.ID, onboard.StatusCompleted)
	require.NoError(t, q.Stop(context.Background()))
}

func TestQueueStopWaitsForRunningBatch(t *testing.T) {
	runner := &stubRunner{release: make(chan struct{})}
	q, statuses := newTestQueue(t, runner, 2, nil)
	q.Start()

	queued, err := q.Enqueue(context.Background(), onboard.Batch{GroupID: "G1", Quantity: 1})
	require.NoError(t, err)
	require.Eventually(t, q.Running, time.Second, 5*time.Millisecond)

	stopped := make(chan error, 1)
	go func() { stopped <- q.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("stop returned while a batch was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	require.NoError(t, <-stopped)
	waitForStatus(t, statuses, queued.Batch.ID, onboard.StatusCompleted)

	_, err = q.Enqueue(context.Background(), onboard.Batch{GroupID: "G1", Quantity: 1})
	require.True(t, errors.Is(err, ErrStopped))
}

func TestQueueRecoversPanickingRunner(t *testing.T) {
	q, statuses := newTestQueue(t, panicRunner{}, 1, nil)
	q.Start()
	defer func() { require.NoError(t, q.Stop(context.Background())) }()

	queued, err := q.Enqueue(context.Background(), onboard.Batch{GroupID: "G1", Quantity: 1})
	require.NoError(t, err)
	failed := waitForStatus(t, statuses, queued.Batch.ID, onboard.StatusFailed)
	require.Contains(t, failed.Error, "panicked")
}

type panicRunner struct{}

func (panicRunner) Run(context.Context, onboard.Batch) (onboard.Result, error) {
	panic("boom")
}
