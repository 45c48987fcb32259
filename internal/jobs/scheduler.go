package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"userhub/internal/tasks"
)

type Publisher interface {
	Publish(ctx context.Context, values map[string]any) (string, error)
}

type LocalSweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Scheduler triggers the reset token sweep on a cron schedule. With a
// publisher the sweep is handed to the worker through the stream, otherwise
// it runs in-process.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	queue    Publisher
	local    LocalSweeper
	log      zerolog.Logger
	now      func() time.Time
}

func NewScheduler(schedule string, queue Publisher, local LocalSweeper, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		schedule: schedule,
		queue:    queue,
		local:    local,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil && s.local == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.runSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Bool("queued", s.queue != nil).Msg("scheduler started")
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish, up to
// the deadline of ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.queue != nil {
		if _, err := s.queue.Publish(ctx, tasks.NewSweepPayload(s.now())); err != nil {
			s.log.Error().Err(err).Msg("enqueue reset token sweep failed")
		}
		return
	}

	if _, err := s.local.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("reset token sweep failed")
	}
}
