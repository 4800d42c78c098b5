package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// WorkerConfig contains worker configuration.
type WorkerConfig struct {
	BatchSize         int
	PollInterval      time.Duration
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	NumWorkers        int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:         100,
		PollInterval:      5 * time.Second,
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2,
		NumWorkers:        2,
	}
}

// Worker drains the notification queue. Each poller claims its own batch,
// so several pollers (or several replicas) never deliver the same item twice.
type Worker struct {
	config     WorkerConfig
	repo       Repository
	dispatcher *Dispatcher
	renderer   *Renderer

	now func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a new notification worker.
func NewWorker(config WorkerConfig, repo Repository, dispatcher *Dispatcher, renderer *Renderer) *Worker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultWorkerConfig().BatchSize
	}
	return &Worker{
		config:     config,
		repo:       repo,
		dispatcher: dispatcher,
		renderer:   renderer,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start launches the pollers. They run until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting notification worker",
		"pollers", w.config.NumWorkers,
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	for i := range w.config.NumWorkers {
		w.wg.Add(1)
		go w.poll(ctx, i)
	}
}

// Stop signals the pollers and waits for in-flight batches. Safe to call twice.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("notification worker stopped")
}

// ProcessOnce claims and delivers a single batch synchronously.
func (w *Worker) ProcessOnce(ctx context.Context) {
	w.drain(ctx, slog.Default())
}

func (w *Worker) poll(ctx context.Context, id int) {
	defer w.wg.Done()

	logger := slog.With("poller", id)
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx, logger)
		}
	}
}

func (w *Worker) drain(ctx context.Context, logger *slog.Logger) {
	items, err := w.repo.FetchPendingNotifications(ctx, w.config.BatchSize)
	if err != nil {
		logger.Error("failed to claim notifications", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	logger.Debug("claimed notifications", "count", len(items))
	observeClaimed(len(items))

	for _, item := range items {
		start := time.Now()
		err := w.deliver(ctx, item)
		w.settle(ctx, logger.With("item_id", item.ID, "incident_id", item.IncidentID, "channel", item.ChannelType), item, err, time.Since(start))
	}
}

// deliver renders the item for its channel and hands it to the sender.
func (w *Worker) deliver(ctx context.Context, item *QueueItem) error {
	if !w.dispatcher.HasSender(item.ChannelType) {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrNoSender, item.ChannelType))
	}

	subject, body, err := w.renderer.Render(item.ChannelType, item.Payload)
	if err != nil {
		return NewNonRetryableError(fmt.Errorf("render: %w", err))
	}

	return w.dispatcher.SendToChannel(ctx, item.ChannelType, Notification{
		To:      item.Target,
		Subject: subject,
		Body:    body,
	})
}

// settle records the delivery outcome on the queue item.
// Permanent errors and exhausted attempts fail the item; anything else is retried with backoff.
func (w *Worker) settle(ctx context.Context, logger *slog.Logger, item *QueueItem, sendErr error, took time.Duration) {
	var (
		result  deliveryResult
		markErr error
	)

	attempt := item.Attempts + 1
	switch {
	case sendErr == nil:
		result = resultSent
		markErr = w.repo.MarkAsSent(ctx, item.ID)
		logger.Debug("notification sent", "duration", took)

	case !isRetryable(sendErr):
		result = resultFailed
		markErr = w.repo.MarkAsFailed(ctx, item.ID, sendErr)
		logger.Warn("notification failed permanently", "attempt", attempt, "error", sendErr)

	case attempt >= item.MaxAttempts:
		result = resultFailed
		markErr = w.repo.MarkAsFailed(ctx, item.ID, fmt.Errorf("max attempts exceeded: %w", sendErr))
		logger.Warn("notification gave up", "attempt", attempt, "max_attempts", item.MaxAttempts, "error", sendErr)

	default:
		result = resultRetry
		next := w.calculateNextAttempt(attempt)
		markErr = w.repo.MarkForRetry(ctx, item.ID, sendErr, next)
		logger.Info("notification scheduled for retry", "attempt", attempt, "next_attempt", next, "error", sendErr)
	}

	if markErr != nil {
		logger.Error("failed to update queue item", "result", result, "error", markErr)
	}
	observeDelivery(item.ChannelType, result, took)
}

// calculateNextAttempt returns when the given attempt number should be retried:
// InitialBackoff * BackoffMultiplier^(attempt-1), capped at MaxBackoff.
func (w *Worker) calculateNextAttempt(attempt int) time.Time {
	backoff := float64(w.config.InitialBackoff) * math.Pow(w.config.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}
	return w.now().Add(time.Duration(backoff))
}
