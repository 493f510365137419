package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
)

type SchedulerDeps struct {
	Events  *observability.EventLogger
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Scheduler is the poll loop: every interval it ticks each agent once,
// spreading the agents over a fixed pool of workers.
type Scheduler struct {
	agents   []*UserAgent
	interval time.Duration
	workers  int

	events  *observability.EventLogger
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

func NewScheduler(agents []*UserAgent, cfg config.PollConfig, deps SchedulerDeps) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer("hris-autoclock")
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		agents:   agents,
		interval: cfg.Interval,
		workers:  workers,
		events:   deps.Events,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
	}
}

func (s *Scheduler) Agents() []*UserAgent {
	return s.agents
}

// Run assigns every agent its first target, runs a cycle immediately and
// then one per interval until ctx is canceled. An in-flight cycle always
// completes before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.agents) == 0 {
		return ErrNoAgents
	}

	s.prime(ctx)
	s.logger.Info(ctx, "Poll loop started",
		zap.Int("agents", len(s.agents)),
		zap.Int("workers", s.workers),
		zap.Duration("interval", s.interval),
	)
	s.RunCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				s.logger.Info(ctx, "Poll loop stopped")
				return nil
			}
			s.RunCycle(ctx)
		case <-ctx.Done():
			s.logger.Info(ctx, "Poll loop stopped")
			return nil
		}
	}
}

// RunOnce assigns first targets and runs exactly one cycle.
func (s *Scheduler) RunOnce(ctx context.Context) ([]TickResult, error) {
	if len(s.agents) == 0 {
		return nil, ErrNoAgents
	}
	s.prime(ctx)
	return s.RunCycle(ctx), nil
}

func (s *Scheduler) prime(ctx context.Context) {
	for _, agent := range s.agents {
		agent.Prime(ctx)
	}
}

// RunCycle ticks every agent once and returns the results in agent order.
// A panicking tick is recovered and does not affect the other agents.
func (s *Scheduler) RunCycle(ctx context.Context) []TickResult {
	cycleID := uuid.NewString()
	ctx = s.logger.WithContext(ctx, observability.CycleIDKey, cycleID)
	ctx, span := s.tracer.Start(ctx, "poll.cycle",
		attribute.String("cycle_id", cycleID),
		attribute.Int("agents", len(s.agents)),
	)
	defer span.End()

	started := time.Now()
	results := make([]TickResult, len(s.agents))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(s.workers, len(s.agents)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.tickSafely(ctx, s.agents[i])
			}
		}()
	}
	for i := range s.agents {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	states := make(map[string]int)
	failures := 0
	for _, res := range results {
		states[string(res.State)]++
		if res.Err != nil {
			failures++
		}
	}
	if s.metrics != nil {
		s.metrics.RecordCycle(time.Since(started), states)
	}
	span.SetAttributes(attribute.Int("failures", failures))

	s.logger.Debug(ctx, "Poll cycle completed",
		zap.Int("agents", len(results)),
		zap.Int("failures", failures),
		zap.Duration("duration", time.Since(started)),
	)
	return results
}

func (s *Scheduler) tickSafely(ctx context.Context, agent *UserAgent) (res TickResult) {
	defer func() {
		if r := recover(); r != nil {
			err := TickPanicError(agent.EmployeeNumber(), r)
			s.logger.Error(ctx, "Agent tick panicked",
				zap.String("employee_number", agent.EmployeeNumber()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			if s.events != nil {
				s.events.LogEvent(ctx, observability.Event{
					Type:           observability.EventTickPanicked,
					EmployeeNumber: agent.EmployeeNumber(),
					At:             time.Now(),
					ErrorCode:      string(err.Code),
					Detail:         err.Message,
				})
			}
			res = TickResult{
				EmployeeNumber: agent.EmployeeNumber(),
				State:          agent.Snapshot().State,
				Action:         ActionPanicked,
				Err:            err,
			}
		}
	}()
	return agent.Tick(ctx)
}
