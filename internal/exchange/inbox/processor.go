package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/shared"
)

// Store is the persistence surface the processor needs.
type Store interface {
	Insert(ctx context.Context, msg Message) error
	GetByExternalID(ctx context.Context, externalID string) (Message, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, id uuid.UUID, attempts int, processingError string) error
	ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]Message, error)
}

// Config tunes the processor. Zero values fall back to defaults.
type Config struct {
	MaxAttempts  int
	PollInterval time.Duration
	BatchSize    int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	return c
}

// ReceiveResult reports what Receive did with an envelope.
type ReceiveResult struct {
	Message   Message
	Duplicate bool
	Processed bool
}

// Processor records inbound envelopes exactly once and dispatches them
// to the registered domain handlers.
type Processor struct {
	store    Store
	registry *Registry
	validate *validator.Validate
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// NewProcessor constructs a processor.
func NewProcessor(store Store, registry *Registry, cfg Config, logger *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		registry: registry,
		validate: validator.New(),
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// Receive records the envelope and attempts to process it. Redelivery of
// an already processed external id is a no-op returning the stored entry.
// Redelivery of a recorded but unprocessed entry with attempt budget left
// retries its handler, so handlers run at most once per successful
// processing regardless of how many times the hub delivers the message.
func (p *Processor) Receive(ctx context.Context, env Envelope) (ReceiveResult, error) {
	if err := p.validate.Struct(env); err != nil {
		return ReceiveResult{}, fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}

	msg := Message{
		ID:              uuid.New(),
		ExternalID:      env.ExternalID,
		DocumentType:    env.DocumentType,
		BusinessProcess: env.BusinessProcess,
		SenderParty:     env.SenderParty,
		ReceiverParty:   env.ReceiverParty,
		Payload:         env.Payload,
		ReceivedAt:      p.now(),
	}
	if err := p.store.Insert(ctx, msg); err != nil {
		if errors.Is(err, ErrDuplicateMessage) {
			existing, getErr := p.store.GetByExternalID(ctx, env.ExternalID)
			if getErr != nil {
				return ReceiveResult{}, getErr
			}
			if !existing.Processed && existing.Attempts < p.cfg.MaxAttempts {
				processed := p.process(ctx, &existing)
				return ReceiveResult{Message: existing, Duplicate: true, Processed: processed}, nil
			}
			p.logger.Info("duplicate inbound message ignored",
				slog.String("external_id", env.ExternalID),
				slog.String("document_type", env.DocumentType))
			return ReceiveResult{Message: existing, Duplicate: true, Processed: existing.Processed}, nil
		}
		return ReceiveResult{}, err
	}

	processed := p.process(ctx, &msg)
	return ReceiveResult{Message: msg, Processed: processed}, nil
}

// process dispatches one recorded message to its handler and persists
// the outcome. Returns whether the message is now processed.
func (p *Processor) process(ctx context.Context, msg *Message) bool {
	handler, ok := p.registry.Lookup(msg.DocumentType, msg.BusinessProcess)
	if !ok {
		p.fail(ctx, msg, fmt.Errorf("%w: %s/%s", ErrNoHandler, msg.DocumentType, msg.BusinessProcess))
		return false
	}
	if err := handler(ctx, *msg); err != nil {
		p.fail(ctx, msg, err)
		return false
	}

	at := p.now()
	if err := p.store.MarkProcessed(ctx, msg.ID, at); err != nil {
		p.logger.Error("mark inbound message processed",
			slog.String("external_id", msg.ExternalID), slog.Any("error", err))
		return false
	}
	msg.Processed = true
	msg.ProcessedAt = &at
	msg.ProcessingError = ""
	p.logger.Info("inbound message processed",
		slog.String("external_id", msg.ExternalID),
		slog.String("document_type", msg.DocumentType),
		slog.String("business_process", msg.BusinessProcess))
	return true
}

func (p *Processor) fail(ctx context.Context, msg *Message, cause error) {
	msg.Attempts++
	msg.ProcessingError = cause.Error()
	if err := p.store.RecordFailure(ctx, msg.ID, msg.Attempts, msg.ProcessingError); err != nil {
		p.logger.Error("record inbound failure",
			slog.String("external_id", msg.ExternalID), slog.Any("error", err))
		return
	}
	level := slog.LevelWarn
	if msg.Attempts >= p.cfg.MaxAttempts {
		level = slog.LevelError
	}
	p.logger.Log(ctx, level, "inbound message processing failed",
		slog.String("external_id", msg.ExternalID),
		slog.String("document_type", msg.DocumentType),
		slog.Int("attempts", msg.Attempts),
		slog.Any("error", cause))
}

// SweepUnprocessed retries messages that failed earlier and still have
// attempt budget. Permanently exhausted entries stay visible through the
// operator listing instead of being retried forever.
func (p *Processor) SweepUnprocessed(ctx context.Context) (int, error) {
	messages, err := p.store.ListUnprocessed(ctx, p.cfg.MaxAttempts, p.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	processed := 0
	for i := range messages {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if p.process(ctx, &messages[i]) {
			processed++
		}
	}
	return processed, nil
}

// Run sweeps on an interval until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.SweepUnprocessed(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("inbox sweep", slog.Any("error", err))
			}
		}
	}
}
