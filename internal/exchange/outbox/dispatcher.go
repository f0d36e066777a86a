package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gridline-energy/gridline/internal/shared"
)

// Sender delivers one message to the market hub. Implementations wrap
// the hub's transport; errors are classified with shared.ErrTransient
// and shared.ErrPermanent.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Store is the dispatcher's view of the outbox. ClaimPending must move
// matched rows to SENDING atomically so concurrent dispatcher instances
// never double-send.
type Store interface {
	ClaimPending(ctx context.Context, limit int, now time.Time) ([]Message, error)
	MarkSent(ctx context.Context, msg Message, at time.Time) error
	ScheduleRetry(ctx context.Context, msg Message, attempts int, nextRetry time.Time, lastError string) error
	MarkDeadLettered(ctx context.Context, msg Message, attempts int, lastError string) error
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error)
}

// Config tunes the dispatch loop.
type Config struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	PollInterval   time.Duration
	BatchSize      int
	// StaleClaimAge is how long a SENDING row may sit unclaimed before a
	// restart sweep returns it to PENDING.
	StaleClaimAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 1 {
		c.MaxRetries = 5
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.StaleClaimAge <= 0 {
		c.StaleClaimAge = 5 * time.Minute
	}
	return c
}

// CycleResult reports one dispatch cycle for logging and metrics.
type CycleResult struct {
	Claimed      int
	Sent         int
	Retried      int
	DeadLettered int
	Released     int
}

// Dispatcher drains pending outbox entries and delivers them with
// exponential backoff, dead-lettering after the retry budget.
type Dispatcher struct {
	store  Store
	sender Sender
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(store Store, sender Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Run executes dispatch cycles until the context is cancelled. In-flight
// sends finish their cycle; claimed-but-unsent entries are recovered by
// the stale-claim sweep after restart.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		result, err := d.RunCycle(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("outbox cycle", slog.Any("error", err))
		}
		if result.Claimed > 0 || result.DeadLettered > 0 {
			d.logger.Info("outbox cycle",
				slog.Int("claimed", result.Claimed),
				slog.Int("sent", result.Sent),
				slog.Int("retried", result.Retried),
				slog.Int("dead_lettered", result.DeadLettered))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle performs one claim-and-send pass.
func (d *Dispatcher) RunCycle(ctx context.Context) (CycleResult, error) {
	var result CycleResult
	now := d.now()

	released, err := d.store.ReleaseStale(ctx, now.Add(-d.cfg.StaleClaimAge))
	if err != nil {
		return result, err
	}
	result.Released = released
	if released > 0 {
		d.logger.Warn("released stale outbox claims", slog.Int("count", released))
	}

	claimed, err := d.store.ClaimPending(ctx, d.cfg.BatchSize, now)
	if err != nil {
		return result, err
	}
	result.Claimed = len(claimed)

	for _, msg := range claimed {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if err := d.sender.Send(ctx, msg); err != nil {
			d.handleFailure(ctx, msg, err, &result)
			continue
		}
		if err := d.store.MarkSent(ctx, msg, d.now()); err != nil {
			return result, err
		}
		result.Sent++
	}
	return result, nil
}

func (d *Dispatcher) handleFailure(ctx context.Context, msg Message, sendErr error, result *CycleResult) {
	attempts := msg.Attempts + 1

	// Counterparty rejections cannot succeed on retry; they skip the
	// remaining budget and go straight to the dead letter queue.
	if errors.Is(sendErr, shared.ErrPermanent) || attempts >= d.cfg.MaxRetries {
		reason := sendErr.Error()
		if !errors.Is(sendErr, shared.ErrPermanent) {
			reason = shared.ErrExhaustedRetries.Error() + ": " + reason
		}
		if err := d.store.MarkDeadLettered(ctx, msg, attempts, reason); err != nil {
			d.logger.Error("dead-letter outbox message", slog.Any("error", err))
			return
		}
		result.DeadLettered++
		d.logger.Warn("outbox message dead-lettered",
			slog.String("message_id", msg.ID.String()),
			slog.String("type", msg.MessageType),
			slog.Int("attempts", attempts),
			slog.String("error", reason))
		return
	}

	backoff := d.cfg.RetryBaseDelay * (1 << (attempts - 1))
	nextRetry := d.now().Add(backoff)
	if err := d.store.ScheduleRetry(ctx, msg, attempts, nextRetry, sendErr.Error()); err != nil {
		d.logger.Error("schedule outbox retry", slog.Any("error", err))
		return
	}
	result.Retried++
}
