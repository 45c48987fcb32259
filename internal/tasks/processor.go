package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const TypeResetTokenSweep = "reset_token_sweep"

type Sweeper interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type TaskPayload struct {
	Type       string `json:"type"`
	EnqueuedAt string `json:"enqueued_at"`
}

// NewSweepPayload builds the stream entry for a sweep request.
func NewSweepPayload(now time.Time) map[string]any {
	return map[string]any{
		"type":        TypeResetTokenSweep,
		"enqueued_at": now.UTC().Format(time.RFC3339),
	}
}

type Processor struct {
	sweeper Sweeper
	logger  zerolog.Logger
	now     func() time.Time
}

func NewProcessor(sweeper Sweeper, logger zerolog.Logger) *Processor {
	return &Processor{
		sweeper: sweeper,
		logger:  logger.With().Str("component", "tasks").Logger(),
		now:     time.Now,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeResetTokenSweep:
		_, err := p.Sweep(ctx)
		return err
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

// Sweep clears every reset token whose window has closed.
func (p *Processor) Sweep(ctx context.Context) (int64, error) {
	cleared, err := p.sweeper.ClearExpiredResetTokens(ctx, p.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep reset tokens: %w", err)
	}
	if cleared > 0 {
		p.logger.Info().Int64("cleared", cleared).Msg("expired reset tokens cleared")
	} else {
		p.logger.Debug().Msg("no expired reset tokens")
	}
	return cleared, nil
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}
