package app

import (
	"context"
	"fmt"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/hris"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/modules/attendance"
	"github.com/waqasmani/hris-autoclock/internal/modules/credentials"
	"github.com/waqasmani/hris-autoclock/internal/modules/health"
	"go.uber.org/zap"
)

const serviceName = "hris-autoclock"

// Version is stamped at build time.
var Version = "dev"

type Container struct {
	Config        *config.Config
	Logger        *observability.Logger
	EventLogger   *observability.EventLogger
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
	HRISClient    *hris.Client
	Credentials   []credentials.Credential
	Scheduler     *attendance.Scheduler
	HealthHandler *health.Handler
}

type ContainerOption func(*containerOptions)

type containerOptions struct {
	metrics    *observability.Metrics
	clock      attendance.Clock
	hrisClient []hris.Option
}

// WithMetrics uses m instead of the process-wide collectors.
func WithMetrics(m *observability.Metrics) ContainerOption {
	return func(o *containerOptions) { o.metrics = m }
}

// WithClock overrides the agents' clock.
func WithClock(clock attendance.Clock) ContainerOption {
	return func(o *containerOptions) { o.clock = clock }
}

func WithHRISOptions(opts ...hris.Option) ContainerOption {
	return func(o *containerOptions) { o.hrisClient = append(o.hrisClient, opts...) }
}

// NewContainer loads credentials, opens the event log and builds one agent
// per credential. Every failure here is fatal for startup.
func NewContainer(cfg *config.Config, logger *observability.Logger, opts ...ContainerOption) (*Container, error) {
	o := containerOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NewMetrics()
	}

	ctx := context.Background()

	creds, err := credentials.Load(cfg.Credentials.Path)
	if err != nil {
		return nil, err
	}
	if dups := credentials.Duplicates(creds); len(dups) > 0 {
		logger.Warn(ctx, "Duplicate employee numbers in credentials file, each entry gets its own agent",
			zap.Strings("employee_numbers", dups),
		)
	}

	window, err := attendance.WindowFromConfig(cfg.Window)
	if err != nil {
		return nil, err
	}

	eventLogger, err := observability.NewEventLogger(cfg.EventLog.Path, cfg.EventLog.Format)
	if err != nil {
		return nil, fmt.Errorf("open event log %s: %w", cfg.EventLog.Path, err)
	}
	logger.Info(ctx, "Event log opened",
		zap.String("path", cfg.EventLog.Path),
		zap.String("format", cfg.EventLog.Format),
	)

	if cfg.HRIS.CircuitBreaker.Enabled {
		logger.Info(ctx, "Initializing HRIS circuit breaker",
			zap.Uint32("max_failures", cfg.HRIS.CircuitBreaker.MaxFailures),
			zap.Float64("failure_threshold", cfg.HRIS.CircuitBreaker.FailureThreshold),
			zap.Duration("reset_timeout", cfg.HRIS.CircuitBreaker.ResetTimeout),
		)
	}
	client := hris.NewClient(cfg.HRIS, o.metrics, logger, o.hrisClient...)
	tracer := observability.NewTracer(serviceName)

	agents := make([]*attendance.UserAgent, 0, len(creds))
	for _, cred := range creds {
		agents = append(agents, attendance.NewUserAgent(cred,
			attendance.AgentOptions{
				Window:        window,
				RequireTimeIn: cfg.HRIS.RequireTimeIn,
				Backoff:       cfg.Backoff,
			},
			attendance.AgentDeps{
				Client:  client,
				Events:  eventLogger,
				Logger:  logger,
				Metrics: o.metrics,
				Tracer:  tracer,
				Clock:   o.clock,
			},
		))
	}

	scheduler := attendance.NewScheduler(agents, cfg.Poll, attendance.SchedulerDeps{
		Events:  eventLogger,
		Logger:  logger,
		Metrics: o.metrics,
		Tracer:  tracer,
	})

	logger.Info(ctx, "Agents configured",
		zap.Int("agents", len(agents)),
		zap.String("window", window.String()),
		zap.String("timezone", window.Location.String()),
		zap.Bool("require_time_in", cfg.HRIS.RequireTimeIn),
	)

	return &Container{
		Config:        cfg,
		Logger:        logger,
		EventLogger:   eventLogger,
		Metrics:       o.metrics,
		Tracer:        tracer,
		HRISClient:    client,
		Credentials:   creds,
		Scheduler:     scheduler,
		HealthHandler: health.NewHandler(scheduler, client, Version),
	}, nil
}

// Close flushes and releases the event log.
func (c *Container) Close() {
	if c.EventLogger != nil {
		if err := c.EventLogger.Close(); err != nil {
			c.Logger.Error(context.Background(), "Error closing event log", zap.Error(err))
		}
	}
}
