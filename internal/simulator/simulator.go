package simulator

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/model"
)

// Sink receives generated readings.
type Sink interface {
	AppendReading(ctx context.Context, r *model.MetricReading) (int64, error)
}

// Simulator appends one generated reading per interval until stopped.
type Simulator struct {
	sink     Sink
	gen      *Generator
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Simulator.
func New(sink Sink, gen *Generator, interval time.Duration, logger *zap.Logger) (*Simulator, error) {
	if interval <= 0 {
		return nil, errors.New("simulator: interval must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		sink:     sink,
		gen:      gen,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Tick generates and writes a single reading.
func (s *Simulator) Tick(ctx context.Context) (model.MetricReading, error) {
	r := s.gen.Next(s.now())
	id, err := s.sink.AppendReading(ctx, &r)
	if err != nil {
		return r, err
	}
	r.ID = id
	return r, nil
}

// Run writes a reading immediately and then every interval until ctx is
// cancelled. Write failures are logged and do not stop the loop.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulator started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		r, err := s.Tick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error("failed to write reading", zap.Error(err))
		} else {
			s.logger.Info("added reading",
				zap.Int64("reading_id", r.ID),
				zap.Float64("heart_rate", r.HeartRate),
				zap.Int("steps", r.Steps),
			)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return nil
		case <-ticker.C:
		}
	}
	s.logger.Info("simulator stopped")
	return nil
}
