package attendance

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/hris"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/modules/auth"
	"github.com/waqasmani/hris-autoclock/internal/modules/credentials"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

// HRISClient is the subset of the HRIS API an agent drives.
type HRISClient interface {
	auth.Authenticator
	SubmitAttendance(ctx context.Context, token string) error
	Dashboard(ctx context.Context, token string) (*hris.Attendance, error)
}

// Clock returns the current instant.
type Clock func() time.Time

type AgentOptions struct {
	Window        Window
	RequireTimeIn bool
	Backoff       config.BackoffConfig
}

type AgentDeps struct {
	Client  HRISClient
	Events  *observability.EventLogger
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Clock   Clock
	// Rand seeds the schedule draws; nil uses the global source.
	Rand *rand.Rand
}

// UserAgent drives one employee through login, waiting for the randomized
// clock-out target, and submitting the clock-out. Ticks on the same agent
// are serialized.
type UserAgent struct {
	mu            sync.Mutex
	session       *auth.Session
	schedule      *ScheduleState
	client        HRISClient
	window        Window
	requireTimeIn bool
	backoff       *loginBackoff
	lastOut       *time.Time

	events  *observability.EventLogger
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
	now     Clock

	snapMu   sync.RWMutex
	snapshot AgentSnapshot
}

func NewUserAgent(cred credentials.Credential, opts AgentOptions, deps AgentDeps) *UserAgent {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer("hris-autoclock")
	}
	if deps.Events == nil {
		deps.Events = observability.NewEventLoggerWithWriter(io.Discard, "json")
	}

	a := &UserAgent{
		session:       auth.NewSession(cred, deps.Client, deps.Metrics),
		schedule:      NewScheduleState(deps.Rand),
		client:        deps.Client,
		window:        opts.Window,
		requireTimeIn: opts.RequireTimeIn,
		backoff:       newLoginBackoff(opts.Backoff),
		events:        deps.Events,
		logger:        deps.Logger,
		metrics:       deps.Metrics,
		tracer:        deps.Tracer,
		now:           deps.Clock,
	}
	a.snapshot = AgentSnapshot{
		EmployeeNumber: cred.EmployeeNumber,
		State:          StateUnauthenticated,
	}
	return a
}

func (a *UserAgent) EmployeeNumber() string {
	return a.session.EmployeeNumber()
}

// Prime assigns today's clock-out target if none is held yet.
func (a *UserAgent) Prime(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx = a.logger.WithContext(ctx, observability.EmployeeNumberKey, a.EmployeeNumber())
	now := a.now()
	if a.schedule.Target() == nil {
		a.assign(ctx, now)
	}
	a.publish(now, nil)
}

// Tick performs at most one step of the agent's state machine. It never
// panics on HRIS failures; errors are reported in the result and the agent
// stays usable for the next tick. A tick started with a canceled ctx does
// nothing and leaves the agent untouched.
func (a *UserAgent) Tick(ctx context.Context) TickResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.Err() != nil {
		return TickResult{
			EmployeeNumber: a.EmployeeNumber(),
			State:          a.Snapshot().State,
			Action:         ActionCanceled,
			Target:         a.schedule.Target(),
		}
	}

	ctx = a.logger.WithContext(ctx, observability.EmployeeNumberKey, a.EmployeeNumber())
	ctx, span := a.tracer.StartAgentSpan(ctx, "agent.tick", a.EmployeeNumber())
	defer span.End()

	started := time.Now()
	now := a.now()

	res := a.tick(ctx, now)
	res.EmployeeNumber = a.EmployeeNumber()
	res.Target = a.schedule.Target()

	span.SetAttributes(attribute.String("action", string(res.Action)), attribute.String("state", string(res.State)))
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(errors.CodeOf(res.Err)))
	}
	if a.metrics != nil {
		a.metrics.RecordTick(string(res.Action), time.Since(started), res.Err)
	}

	a.publish(now, &res)
	return res
}

func (a *UserAgent) tick(ctx context.Context, now time.Time) TickResult {
	if a.schedule.Target() == nil {
		a.assign(ctx, now)
	}

	loggedIn := false
	if !a.session.Authenticated() {
		if !a.backoff.Ready(now) {
			if a.metrics != nil {
				a.metrics.LoginBackoffSkips.Inc()
			}
			return TickResult{State: StateUnauthenticated, Action: ActionBackoff}
		}
		if err := a.login(ctx, now); err != nil {
			return TickResult{State: StateUnauthenticated, Action: ActionLoginFailed, Err: err}
		}
		loggedIn = true
	}

	if !a.schedule.IsDue(now) {
		action := ActionNone
		if loggedIn {
			action = ActionLogin
		}
		return TickResult{State: StateWaiting, Action: action}
	}

	if a.requireTimeIn {
		if res, proceed := a.checkDashboard(ctx, now); !proceed {
			return res
		}
	}

	return a.clockOut(ctx, now)
}

func (a *UserAgent) login(ctx context.Context, now time.Time) error {
	if _, err := a.session.Login(ctx); err != nil {
		delay := a.backoff.Failed(now)
		a.events.LogEvent(ctx, observability.Event{
			Type:           observability.EventLoginFailed,
			EmployeeNumber: a.EmployeeNumber(),
			At:             now,
			ErrorCode:      string(errors.CodeOf(err)),
			Detail:         err.Error(),
		})
		a.logger.Warn(ctx, "HRIS login failed",
			zap.Error(err),
			zap.Bool("transient", hris.IsTransient(err)),
			zap.Duration("retry_in", delay),
		)
		return err
	}

	a.backoff.Succeeded()
	a.events.LogEvent(ctx, observability.Event{
		Type:           observability.EventLoginSucceeded,
		EmployeeNumber: a.EmployeeNumber(),
		Success:        true,
		At:             now,
	})

	fields := []zap.Field{}
	if exp := a.session.ExpiresAt(); exp != nil {
		fields = append(fields, zap.Time("token_expires_at", *exp))
	}
	a.logger.Info(ctx, "HRIS login succeeded", fields...)
	return nil
}

// checkDashboard gates a due clock-out on the dashboard. It reports false
// when the clock-out must not be submitted this tick.
func (a *UserAgent) checkDashboard(ctx context.Context, now time.Time) (TickResult, bool) {
	att, err := a.dashboard(ctx)
	if err != nil {
		a.logger.Warn(ctx, "Dashboard check failed", zap.Error(err), zap.Bool("transient", hris.IsTransient(err)))
		a.recoverSession(ctx, now)
		return TickResult{State: a.state(now), Action: ActionDashboardFailed, Err: err}, false
	}

	if att.HasTimedOut() {
		a.events.LogEvent(ctx, observability.Event{
			Type:           observability.EventClockOutSkipped,
			EmployeeNumber: a.EmployeeNumber(),
			Success:        true,
			At:             now,
			Target:         a.schedule.Target(),
			Detail:         "already timed out at " + att.TimeOut,
		})
		a.logger.Info(ctx, "Clock-out already recorded, skipping", zap.String("time_out", att.TimeOut))
		if a.metrics != nil {
			a.metrics.ClockOutsTotal.WithLabelValues("skipped").Inc()
		}
		a.reschedule(ctx, now)
		return TickResult{State: StateWaiting, Action: ActionAlreadyOut}, false
	}

	if !att.HasTimedIn() {
		a.logger.Debug(ctx, "No time-in recorded yet, holding clock-out")
		return TickResult{State: StateDue, Action: ActionAwaitingTimeIn}, false
	}

	return TickResult{}, true
}

func (a *UserAgent) clockOut(ctx context.Context, now time.Time) TickResult {
	target := a.schedule.Target()

	if err := a.submit(ctx); err != nil {
		a.events.LogEvent(ctx, observability.Event{
			Type:           observability.EventClockOutFailed,
			EmployeeNumber: a.EmployeeNumber(),
			At:             now,
			Target:         target,
			ErrorCode:      string(errors.CodeOf(err)),
			Detail:         err.Error(),
		})
		a.logger.Warn(ctx, "Clock-out submission failed", zap.Error(err), zap.Bool("transient", hris.IsTransient(err)))
		if a.metrics != nil {
			a.metrics.ClockOutsTotal.WithLabelValues("failure").Inc()
		}
		a.recoverSession(ctx, now)
		return TickResult{State: a.state(now), Action: ActionClockOutFailed, Err: err}
	}

	out := now
	a.lastOut = &out
	a.events.LogEvent(ctx, observability.Event{
		Type:           observability.EventClockOutSucceeded,
		EmployeeNumber: a.EmployeeNumber(),
		Success:        true,
		At:             now,
		Target:         target,
	})
	a.logger.Info(ctx, "Clock-out submitted", zap.Timep("target_out", target))
	if a.metrics != nil {
		a.metrics.ClockOutsTotal.WithLabelValues("success").Inc()
	}

	a.reschedule(ctx, now)
	return TickResult{State: StatePostAction, Action: ActionClockOut}
}

func (a *UserAgent) submit(ctx context.Context) error {
	token, err := a.session.Bearer()
	if err != nil {
		return err
	}
	return a.client.SubmitAttendance(ctx, token)
}

func (a *UserAgent) dashboard(ctx context.Context) (*hris.Attendance, error) {
	token, err := a.session.Bearer()
	if err != nil {
		return nil, err
	}
	return a.client.Dashboard(ctx, token)
}

// recoverSession drops the token after a failed authenticated call and logs
// in again once, unless login is backing off. The clock-out stays due.
func (a *UserAgent) recoverSession(ctx context.Context, now time.Time) {
	a.session.Invalidate()
	if a.backoff.Ready(now) {
		_ = a.login(ctx, now)
	}
}

func (a *UserAgent) assign(ctx context.Context, now time.Time) {
	a.logAssigned(ctx, now, a.schedule.Assign(a.window, now))
}

func (a *UserAgent) reschedule(ctx context.Context, now time.Time) {
	a.logAssigned(ctx, now, a.schedule.AssignNext(a.window, now))
}

func (a *UserAgent) logAssigned(ctx context.Context, now, target time.Time) {
	a.events.LogEvent(ctx, observability.Event{
		Type:           observability.EventAssigned,
		EmployeeNumber: a.EmployeeNumber(),
		Success:        true,
		At:             now,
		Target:         &target,
	})
	a.logger.Info(ctx, "Clock-out target assigned",
		zap.Time("target_out", target),
		zap.String("window", a.window.String()),
	)
}

func (a *UserAgent) state(now time.Time) AgentState {
	switch {
	case !a.session.Authenticated():
		return StateUnauthenticated
	case a.schedule.IsDue(now):
		return StateDue
	default:
		return StateWaiting
	}
}

// Snapshot returns the status published by the last tick. It does not wait
// for an in-flight tick.
func (a *UserAgent) Snapshot() AgentSnapshot {
	a.snapMu.RLock()
	defer a.snapMu.RUnlock()
	return a.snapshot
}

// publish must be called with a.mu held.
func (a *UserAgent) publish(now time.Time, res *TickResult) {
	snap := AgentSnapshot{
		EmployeeNumber: a.EmployeeNumber(),
		State:          a.state(now),
		Authenticated:  a.session.Authenticated(),
		TargetOut:      a.schedule.Target(),
		TokenExpiresAt: a.session.ExpiresAt(),
		NextLoginAt:    a.backoff.NextAttempt(now),
	}
	if a.lastOut != nil {
		out := *a.lastOut
		snap.LastOut = &out
	}

	a.snapMu.Lock()
	defer a.snapMu.Unlock()
	if res != nil {
		tickAt := now
		snap.LastTickAt = &tickAt
		snap.LastAction = res.Action
		if res.Err != nil {
			snap.LastError = res.Err.Error()
		}
	} else {
		snap.LastTickAt = a.snapshot.LastTickAt
		snap.LastAction = a.snapshot.LastAction
		snap.LastError = a.snapshot.LastError
	}
	a.snapshot = snap
}
