package device

import (
	"context"
	"time"

	"github.com/kdegeek/T-Deck-Pro-OS-Server/internal/infrastructure/logging"
)

// Sweeper periodically marks devices offline when they have been silent
// for longer than the configured threshold.
//
// Presence is best-effort: a device is "online" because it said so or
// sent traffic recently, and "offline" once the sweeper notices silence.
type Sweeper struct {
	registry     *Registry
	interval     time.Duration
	offlineAfter time.Duration
	logger       *logging.Logger
}

// NewSweeper creates a presence sweeper.
//
// Parameters:
//   - registry: Device registry to sweep
//   - interval: Time between sweeps
//   - offlineAfter: Silence duration after which a device is offline
//   - logger: Structured logger
func NewSweeper(registry *Registry, interval, offlineAfter time.Duration, logger *logging.Logger) *Sweeper {
	return &Sweeper{
		registry:     registry,
		interval:     interval,
		offlineAfter: offlineAfter,
		logger:       logger.With("component", "presence-sweeper"),
	}
}

// Run sweeps on the configured interval until the context is cancelled.
// Intended to be started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("presence sweeper started",
		"interval", s.interval.String(),
		"offline_after", s.offlineAfter.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("presence sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep performs a single pass.
func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.offlineAfter)

	affected, err := s.registry.MarkOfflineBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("presence sweep failed", "error", err)
		return
	}
	if affected > 0 {
		s.logger.Info("devices marked offline", "count", affected)
	}
}
