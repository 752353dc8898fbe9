// Package sweeper periodically expires stale matches outside the request path.
package sweeper

import (
	"context"
	"time"

	"github.com/shaamilshan/hamme/pkg/log"
)

const defaultInterval = 5 * time.Minute

// Expirer expires every stale active match and reports how many it expired.
type Expirer interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RevocationCleaner drops token revocations that no longer matter.
type RevocationCleaner interface {
	CleanupExpiredRevocations() int
}

// Sweeper runs the expiry job on a fixed interval.
type Sweeper struct {
	expirer  Expirer
	tokens   RevocationCleaner
	interval time.Duration
	quit     chan struct{}
	doneCh   chan struct{}
}

// New creates a Sweeper. tokens may be nil.
func New(expirer Expirer, tokens RevocationCleaner, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Sweeper{
		expirer:  expirer,
		tokens:   tokens,
		interval: interval,
		quit:     make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the sweeper in a background goroutine.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop signals the sweeper to stop and returns immediately.
// Call Done() to wait for it to exit.
func (s *Sweeper) Stop() {
	close(s.quit)
}

// Done returns a channel that is closed when the sweeper has fully stopped.
func (s *Sweeper) Done() <-chan struct{} {
	return s.doneCh
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	l := log.L()

	n, err := s.expirer.SweepExpired(ctx)
	if err != nil {
		l.Error().Err(err).Int(log.FieldCount, n).Msg("sweeper: failed to expire matches")
	} else if n > 0 {
		l.Info().Int(log.FieldCount, n).Msg("sweeper: expired matches")
	}

	if s.tokens != nil {
		if dropped := s.tokens.CleanupExpiredRevocations(); dropped > 0 {
			l.Debug().Int(log.FieldCount, dropped).Msg("sweeper: dropped expired revocations")
		}
	}
}
