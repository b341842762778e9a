package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/smallbiznis/valora-onboard/internal/adapter/notify"
	"github.com/smallbiznis/valora-onboard/internal/domain"
	"github.com/smallbiznis/valora-onboard/internal/domain/onboard"
	"github.com/smallbiznis/valora-onboard/internal/repository"
)

// ErrStopped is returned by Enqueue once the queue has been stopped.
var ErrStopped = fmt.Errorf("%w: batch queue stopped", onboard.ErrTransient)

// Runner executes one batch.
type Runner interface {
	Run(ctx context.Context, batch onboard.Batch) (onboard.Result, error)
}

// SettingsSource yields the effective deployment settings.
type SettingsSource interface {
	Current(ctx context.Context) domain.Settings
}

// Queue runs onboarding batches on a single background consumer.
type Queue struct {
	runner   Runner
	statuses repository.BatchStatusStore
	notifier notify.Notifier
	settings SettingsSource
	node     *snowflake.Node
	logger   *zap.Logger

	jobs     chan onboard.Batch
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	inFlight atomic.Int64
	now      func() time.Time
}

// NewQueue builds a queue with room for size pending batches.
func NewQueue(runner Runner, statuses repository.BatchStatusStore, notifier notify.Notifier, settings SettingsSource, node *snowflake.Node, size int, logger *zap.Logger) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{
		runner:   runner,
		statuses: statuses,
		notifier: notifier,
		settings: settings,
		node:     node,
		logger:   logger,
		jobs:     make(chan onboard.Batch, size),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records the batch as queued and hands it to the consumer without blocking.
func (q *Queue) Enqueue(ctx context.Context, batch onboard.Batch) (onboard.BatchStatus, error) {
	select {
	case <-q.quit:
		return onboard.BatchStatus{}, ErrStopped
	default:
	}

	if batch.ID == "" {
		batch.ID = q.node.Generate().String()
	}
	status := onboard.BatchStatus{Batch: batch, Status: onboard.StatusQueued, QueuedAt: q.now()}
	if err := q.statuses.Put(ctx, status); err != nil {
		return onboard.BatchStatus{}, fmt.Errorf("record queued batch: %w", err)
	}

	select {
	case q.jobs <- batch:
		q.log().Info("batch queued",
			zap.String("batch_id", batch.ID),
			zap.String("group_id", batch.GroupID),
			zap.Int("quantity", batch.Quantity),
			zap.String("source", batch.Source),
		)
		return status, nil
	default:
		status.Status = onboard.StatusFailed
		status.Error = onboard.ErrQueueFull.Error()
		finished := q.now()
		status.FinishedAt = &finished
		if err := q.statuses.Put(ctx, status); err != nil {
			q.log().Warn("record rejected batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
		}
		return onboard.BatchStatus{}, onboard.ErrQueueFull
	}
}

// Status returns the recorded status of a batch.
func (q *Queue) Status(ctx context.Context, batchID string) (*onboard.BatchStatus, error) {
	return q.statuses.Get(ctx, batchID)
}

// Pending is the number of batches waiting for the consumer.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

// Running reports whether a batch is executing right now.
func (q *Queue) Running() bool {
	return q.inFlight.Load() > 0
}

// Start launches the consumer goroutine. Calling Start twice is a no-op.
func (q *Queue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	go q.loop()
}

// Stop stops accepting work and waits for the running batch, if any, to finish.
// Batches still waiting in the buffer are dropped and recorded as failed.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.quit) })
	if !q.started.Load() {
		return nil
	}
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) loop() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			q.drain()
			return
		default:
		}
		select {
		case <-q.quit:
			q.drain()
			return
		case batch := <-q.jobs:
			q.process(batch)
		}
	}
}

func (q *Queue) drain() {
	for {
		select {
		case batch := <-q.jobs:
			q.finish(context.Background(), onboard.BatchStatus{Batch: batch}, nil, ErrStopped)
		default:
			return
		}
	}
}

func (q *Queue) process(batch onboard.Batch) {
	ctx := context.Background()
	q.inFlight.Inc()
	defer q.inFlight.Dec()

	status := onboard.BatchStatus{Batch: batch, Status: onboard.StatusRunning}
	if prev, err := q.statuses.Get(ctx, batch.ID); err == nil && prev != nil {
		status.QueuedAt = prev.QueuedAt
	}
	started := q.now()
	status.StartedAt = &started
	if err := q.statuses.Put(ctx, status); err != nil {
		q.log().Warn("record running batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}

	result, err := q.safeRun(ctx, batch)
	q.finish(ctx, status, &result, err)
}

func (q *Queue) safeRun(ctx context.Context, batch onboard.Batch) (result onboard.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()
	return q.runner.Run(ctx, batch)
}

func (q *Queue) finish(ctx context.Context, status onboard.BatchStatus, result *onboard.Result, runErr error) {
	finished := q.now()
	status.FinishedAt = &finished
	if runErr != nil {
		status.Status = onboard.StatusFailed
		status.Error = runErr.Error()
		status.Result = nil
		q.log().Error("batch failed", zap.String("batch_id", status.Batch.ID), zap.Error(runErr))
	} else {
		status.Status = onboard.StatusCompleted
		status.Result = result
	}
	if err := q.statuses.Put(ctx, status); err != nil {
		q.log().Warn("record finished batch failed", zap.String("batch_id", status.Batch.ID), zap.Error(err))
	}
	if !errors.Is(runErr, ErrStopped) {
		q.report(ctx, status)
	}
}

func (q *Queue) report(ctx context.Context, status onboard.BatchStatus) {
	if q.notifier == nil || q.settings == nil {
		return
	}
	settings := q.settings.Current(ctx)
	if settings.LogWebhookURL == "" {
		return
	}

	target := status.Batch.GroupID
	if status.Batch.GroupName != "" {
		target = status.Batch.GroupName + " (" + status.Batch.GroupID + ")"
	}
	event := notify.Event{
		Title:     "Push completed",
		Color:     notify.ColorInfo,
		Timestamp: q.now(),
		Fields: []notify.Field{
			{Name: "Target", Value: target},
			{Name: "Source", Value: status.Batch.Source, Inline: true},
			{Name: "Requested by", Value: fallback(status.Batch.RequestedBy, "-"), Inline: true},
		},
	}
	if status.Result != nil {
		event.Fields = append(event.Fields,
			notify.Field{Name: "Succeeded", Value: strconv.Itoa(status.Result.Succeeded), Inline: true},
			notify.Field{Name: "Failed", Value: strconv.Itoa(status.Result.Failed), Inline: true},
		)
	} else {
		event.Title = "Push failed"
		event.Color = notify.ColorWarning
		event.Description = status.Error
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := q.notifier.Notify(notifyCtx, settings.LogWebhookURL, event); err != nil {
		q.log().Warn("batch report not delivered", zap.String("batch_id", status.Batch.ID), zap.Error(err))
	}
}

func fallback(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (q *Queue) log() *zap.Logger {
	if q != nil && q.logger != nil {
		return q.logger
	}
	return zap.L()
}
