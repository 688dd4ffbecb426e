package health

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Probe is the view of a store adapter the supervisor needs.
type Probe interface {
	Healthy() bool
	Reconnect(ctx context.Context) error
	Ping(ctx context.Context) error
}

// Supervisor runs one supervisory loop for a single backing store. It
// reconnects unhealthy adapters and degrades process readiness on
// failures; it never restores readiness (see package doc).
type Supervisor struct {
	name         string
	probe        Probe
	readiness    *Readiness
	interval     time.Duration
	probeTimeout time.Duration
	logger       *zap.Logger
	onDegrade    func()
}

// NewSupervisor creates a supervisor for one adapter. onDegrade is
// invoked on every degradation (used for the readiness metric); it
// may be nil.
func NewSupervisor(name string, probe Probe, readiness *Readiness, interval time.Duration, logger *zap.Logger, onDegrade func()) *Supervisor {
	return &Supervisor{
		name:         name,
		probe:        probe,
		readiness:    readiness,
		interval:     interval,
		probeTimeout: 5 * time.Second,
		logger:       logger,
		onDegrade:    onDegrade,
	}
}

// Run executes the supervisory loop until ctx is cancelled. The loop
// always reschedules its next tick; probe and reconnect failures are
// logged, never propagated.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Supervisor) tick(ctx context.Context) {
	if !s.probe.Healthy() {
		// Degrade immediately, regardless of the reconnect outcome.
		s.degrade(s.name + " unhealthy")
		s.logger.Warn("store unhealthy, attempting to reconnect",
			zap.String("store", s.name))

		if err := s.probe.Reconnect(ctx); err != nil {
			s.logger.Error("reconnect failed",
				zap.String("store", s.name),
				zap.Error(err))
			// Skip this tick's probe; try again next interval.
			return
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	err := s.probe.Ping(probeCtx)
	cancel()

	if err != nil {
		s.degrade(s.name + " probe failed")
		s.logger.Error("health probe failed",
			zap.String("store", s.name),
			zap.Error(err))
	}
}

func (s *Supervisor) degrade(reason string) {
	s.readiness.Degrade(reason)
	if s.onDegrade != nil {
		s.onDegrade()
	}
}
