package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/doguto/nari-note-sub000/internal/domain"
	"github.com/doguto/nari-note-sub000/internal/observability"
)

const (
	DefaultSweepInterval = time.Hour
	sweepTimeout         = 30 * time.Second
)

// SessionSweeper periodically deletes expired sessions. Lookups already
// ignore expired rows; sweeping only bounds storage growth.
type SessionSweeper struct {
	sessions domain.SessionRepository
	interval time.Duration
	log      *zap.Logger
}

func NewSessionSweeper(sessions domain.SessionRepository, interval time.Duration, log *zap.Logger) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionSweeper{sessions: sessions, interval: interval, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one bounded DeleteExpired pass and returns the number removed.
func (s *SessionSweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()

	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		s.log.Error("session sweep failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		observability.SessionsSweptTotal.Add(float64(n))
		s.log.Info("swept expired sessions", zap.Int64("count", n))
	}
	return n
}
