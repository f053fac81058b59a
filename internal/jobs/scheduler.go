package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	closeIdleSpec    = "0 */5 * * * *"
	purgeAdminSpec   = "0 */15 * * * *"
	sweepLimiterSpec = "0 */10 * * * *"

	jobTimeout = 30 * time.Second
)

type VisitorSessionCloser interface {
	CloseIdle(ctx context.Context) (int64, error)
}

type AdminSessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// Sweeper is an in-process limiter or guard that can drop idle keys.
type Sweeper interface {
	Sweep() int
}

type Scheduler struct {
	cron     *cron.Cron
	visitors VisitorSessionCloser
	admins   AdminSessionPurger
	sweepers []Sweeper
	log      zerolog.Logger
}

func NewScheduler(visitors VisitorSessionCloser, admins AdminSessionPurger, sweepers []Sweeper, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		visitors: visitors,
		admins:   admins,
		sweepers: sweepers,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.visitors != nil {
		if _, err := s.cron.AddFunc(closeIdleSpec, s.closeIdleSessions); err != nil {
			return err
		}
	}
	if s.admins != nil {
		if _, err := s.cron.AddFunc(purgeAdminSpec, s.purgeAdminSessions); err != nil {
			return err
		}
	}
	if len(s.sweepers) > 0 {
		if _, err := s.cron.AddFunc(sweepLimiterSpec, s.sweepLimiters); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) closeIdleSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.visitors.CloseIdle(ctx); err != nil {
		s.log.Error().Err(err).Msg("close idle visitor sessions failed")
	}
}

func (s *Scheduler) purgeAdminSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.admins.PurgeExpiredSessions(ctx); err != nil {
		s.log.Error().Err(err).Msg("purge expired admin sessions failed")
	}
}

func (s *Scheduler) sweepLimiters() {
	removed := 0
	for _, sw := range s.sweepers {
		removed += sw.Sweep()
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("rate limit keys swept")
	}
}
