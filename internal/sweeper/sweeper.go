// Package sweeper periodically reaps lapsed seat holds so abandoned claims
// return to inventory even when nobody reads the booking again.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"busway/pkg/config"
	"busway/pkg/logger"

	"github.com/go-co-op/gocron/v2"
)

// Expirer is the slice of the booking service the sweeper needs.
type Expirer interface {
	ExpireLapsed(ctx context.Context) (int, error)
}

type Sweeper struct {
	expirer   Expirer
	scheduler gocron.Scheduler
	interval  time.Duration
	timeout   time.Duration
	log       *logger.Logger
}

func NewSweeper(expirer Expirer, cfg *config.Config) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithClock(cfg.Clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create sweep scheduler: %w", err)
	}

	return &Sweeper{
		expirer:   expirer,
		scheduler: scheduler,
		interval:  cfg.SweepInterval,
		timeout:   cfg.RequestTimeout,
		log:       cfg.Log,
	}, nil
}

func (s *Sweeper) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.sweep),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	s.scheduler.Start()
	s.log.Info("Hold sweeper started", "interval", s.interval)
	return nil
}

func (s *Sweeper) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop sweep scheduler: %w", err)
	}
	s.log.Info("Hold sweeper stopped")
	return nil
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	expired, err := s.expirer.ExpireLapsed(ctx)
	if err != nil {
		s.log.Error("Sweep failed", "error", err)
		return
	}
	if expired > 0 {
		s.log.Info("Sweep reclaimed lapsed holds", "expired", expired)
	}
}
