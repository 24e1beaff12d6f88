// Package coordinator drives the agent pipeline: analyze, escalate, sleep,
// repeat, until the process is told to stop.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mukhtiarDev/personal-health-monitor/internal/agent"
	"github.com/mukhtiarDev/personal-health-monitor/internal/metrics"
)

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAnalyzing
	StateEscalating
	StateSleeping
	StateShuttingDown
)

var allStates = []State{StateIdle, StateAnalyzing, StateEscalating, StateSleeping, StateShuttingDown}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAnalyzing:
		return "analyzing_readings"
	case StateEscalating:
		return "escalating_approvals"
	case StateSleeping:
		return "sleeping"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Runner is one pipeline agent.
type Runner interface {
	Name() string
	Run(ctx context.Context) agent.Result
}

// StateObserver is notified on every state change.
type StateObserver interface {
	ObserveState(s State)
}

// StateObserverFunc adapts a function to StateObserver.
type StateObserverFunc func(State)

func (f StateObserverFunc) ObserveState(s State) { f(s) }

// Config configures a Coordinator.
type Config struct {
	Analyzer  Runner
	Escalator Runner
	Interval  time.Duration
	Metrics   *metrics.Metrics // optional
	Observers []StateObserver
	Logger    *zap.Logger
}

// Coordinator runs the Analyzer then the Escalator on a fixed interval.
// Both agents run on the calling goroutine; there is never more than one
// phase in flight.
type Coordinator struct {
	analyzer  Runner
	escalator Runner
	interval  time.Duration
	metrics   *metrics.Metrics
	observers []StateObserver
	logger    *zap.Logger

	mu    sync.Mutex
	state State
}

// CycleResult is the outcome of one cycle.
type CycleResult struct {
	ID        string
	Analyzer  agent.Result
	Escalator agent.Result
	Elapsed   time.Duration
	// Interrupted is set when shutdown was requested between the two phases
	// and the Escalator did not run.
	Interrupted bool
}

// Failed reports whether either agent aborted its batch.
func (r CycleResult) Failed() bool {
	return r.Analyzer.Failed() || r.Escalator.Failed()
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Analyzer == nil || cfg.Escalator == nil {
		return nil, errors.New("coordinator: analyzer and escalator are required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("coordinator: interval must be positive")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		analyzer:  cfg.Analyzer,
		escalator: cfg.Escalator,
		interval:  cfg.Interval,
		metrics:   cfg.Metrics,
		observers: cfg.Observers,
		logger:    logger,
		state:     StateIdle,
	}, nil
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	if c.state == StateShuttingDown || c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	if c.metrics != nil {
		names := make([]string, len(allStates))
		for i, st := range allStates {
			names[i] = st.String()
		}
		c.metrics.SetState(s.String(), names)
	}
	for _, o := range c.observers {
		o.ObserveState(s)
	}
}

// Run loops until ctx is cancelled. Cancellation is honoured between the
// two phases and while sleeping; a phase already started runs to completion.
// Agent failures are logged and counted and never stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.setState(StateShuttingDown)

	c.logger.Info("coordinator started", zap.Duration("interval", c.interval))

	for {
		if ctx.Err() != nil {
			c.logger.Info("coordinator stopping")
			return nil
		}

		res := c.RunOnce(ctx)
		if res.Interrupted {
			c.logger.Info("coordinator stopping between phases", zap.String("cycle_id", res.ID))
			return nil
		}

		c.setState(StateSleeping)
		timer := time.NewTimer(c.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.logger.Info("coordinator stopping")
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs a single analyze + escalate cycle.
func (c *Coordinator) RunOnce(ctx context.Context) CycleResult {
	start := time.Now()
	res := CycleResult{ID: uuid.NewString()}

	// Agents keep ctx values but not its cancellation, so in-flight store
	// calls finish and each reading commits or rolls back whole.
	runCtx := agent.WithCycleID(context.WithoutCancel(ctx), res.ID)
	log := c.logger.With(zap.String("cycle_id", res.ID))

	c.setState(StateAnalyzing)
	res.Analyzer = c.analyzer.Run(runCtx)
	c.report(log, res.Analyzer)

	if ctx.Err() != nil {
		res.Interrupted = true
	} else {
		c.setState(StateEscalating)
		res.Escalator = c.escalator.Run(runCtx)
		c.report(log, res.Escalator)
	}

	res.Elapsed = time.Since(start)
	if c.metrics != nil {
		results := []agent.Result{res.Analyzer}
		if !res.Interrupted {
			results = append(results, res.Escalator)
		}
		c.metrics.ObserveCycle(results, res.Elapsed)
	}
	if !res.Interrupted {
		c.setState(StateIdle)
	}
	return res
}

func (c *Coordinator) report(log *zap.Logger, r agent.Result) {
	if r.Failed() {
		log.Error("agent run failed",
			zap.String("agent", r.Agent),
			zap.Int("processed", r.Processed),
			zap.Error(r.Err),
		)
		return
	}
	if r.Fetched == 0 {
		log.Debug("agent found no work", zap.String("agent", r.Agent))
		return
	}
	log.Info("agent run complete",
		zap.String("agent", r.Agent),
		zap.Int("fetched", r.Fetched),
		zap.Int("processed", r.Processed),
		zap.Int("skipped", r.Skipped),
	)
}
