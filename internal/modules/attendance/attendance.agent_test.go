package attendance

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/hris"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

func TestUserAgent_FirstTickLogsInAndWaits(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Prime(ctx)
	target := f.agent.Snapshot().TargetOut
	require.NotNil(t, target)

	res := f.agent.Tick(ctx)
	assert.Equal(t, "E001", res.EmployeeNumber)
	assert.Equal(t, StateWaiting, res.State)
	assert.Equal(t, ActionLogin, res.Action)
	assert.NoError(t, res.Err)
	assert.Equal(t, target, res.Target, "login must not move the target")

	logins, submits, _ := f.client.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 0, submits)
}

func TestUserAgent_WaitingTicksAreIdempotent(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Tick(ctx)
	for i := 0; i < 5; i++ {
		f.clock.Advance(time.Minute)
		res := f.agent.Tick(ctx)
		assert.Equal(t, ActionNone, res.Action)
		assert.Equal(t, StateWaiting, res.State)
	}

	logins, submits, dashboards := f.client.counts()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 0, submits)
	assert.Equal(t, 0, dashboards)
}

func TestUserAgent_ClocksOutOncePerDay(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Tick(ctx)
	target := *f.agent.Snapshot().TargetOut

	f.clock.Set(target.Add(time.Second))
	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionClockOut, res.Action)
	assert.Equal(t, StatePostAction, res.State)
	require.NotNil(t, res.Target)
	assert.True(t, res.Target.After(f.clock.Now()), "next target must be in the future")
	assert.Equal(t, target.Day()+1, res.Target.Day())

	_, submits, _ := f.client.counts()
	assert.Equal(t, 1, submits)
	assert.Equal(t, "token-E001-1", f.client.lastToken)

	// Later the same evening nothing more happens.
	for i := 0; i < 3; i++ {
		f.clock.Advance(time.Minute)
		assert.Equal(t, ActionNone, f.agent.Tick(ctx).Action)
	}
	_, submits, _ = f.client.counts()
	assert.Equal(t, 1, submits)

	snap := f.agent.Snapshot()
	require.NotNil(t, snap.LastOut)
	assert.Equal(t, target.Add(time.Second), *snap.LastOut)
	assert.Equal(t, StateWaiting, snap.State)
}

func TestUserAgent_LateClockOutKeepsTodaysWindow(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Prime(ctx)
	require.Equal(t, 10, f.agent.Snapshot().TargetOut.Day())

	// The HRIS was unreachable all evening; the pending clock-out goes
	// through the next morning.
	f.clock.Set(time.Date(2024, time.May, 11, 7, 0, 0, 0, time.UTC))
	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionClockOut, res.Action)
	require.NotNil(t, res.Target)
	assert.Equal(t, 11, res.Target.Day())
	assert.Equal(t, 17, res.Target.Hour())
}

func TestUserAgent_CanceledTickDoesNothing(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	f.agent.Prime(context.Background())
	f.clock.Set(time.Date(2024, time.May, 10, 19, 0, 0, 0, time.UTC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionCanceled, res.Action)
	assert.Equal(t, StateUnauthenticated, res.State)
	assert.NoError(t, res.Err)

	logins, submits, _ := f.client.counts()
	assert.Equal(t, 0, logins)
	assert.Equal(t, 0, submits)

	// The agent carries on normally once ticks resume.
	res = f.agent.Tick(context.Background())
	assert.Equal(t, ActionClockOut, res.Action)
}

func TestUserAgent_StartedAfterWindowClocksOutImmediately(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	f.clock.Set(time.Date(2024, time.May, 10, 19, 0, 0, 0, time.UTC))

	res := f.agent.Tick(context.Background())
	assert.Equal(t, ActionClockOut, res.Action)

	_, submits, _ := f.client.counts()
	assert.Equal(t, 1, submits)
}

func TestUserAgent_LoginFailureBacksOff(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	f.client.loginErr = errors.ErrAuthRejected.WithStatus(401)
	ctx := context.Background()

	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionLoginFailed, res.Action)
	assert.Equal(t, StateUnauthenticated, res.State)
	assert.ErrorIs(t, res.Err, errors.ErrAuthRejected)

	f.clock.Advance(10 * time.Second)
	res = f.agent.Tick(ctx)
	assert.Equal(t, ActionBackoff, res.Action)
	assert.NoError(t, res.Err)

	logins, _, _ := f.client.counts()
	assert.Equal(t, 1, logins, "no attempt while backing off")
	assert.NotNil(t, f.agent.Snapshot().NextLoginAt)

	f.clock.Advance(time.Minute)
	f.client.loginErr = nil
	res = f.agent.Tick(ctx)
	assert.Equal(t, ActionLogin, res.Action)
	assert.Nil(t, f.agent.Snapshot().NextLoginAt)

	logins, _, _ = f.client.counts()
	assert.Equal(t, 2, logins)
}

func TestUserAgent_BackoffGrows(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	f.client.loginErr = errors.ErrTransport
	ctx := context.Background()

	f.agent.Tick(ctx)
	f.clock.Advance(31 * time.Second)
	assert.Equal(t, ActionLoginFailed, f.agent.Tick(ctx).Action)

	// Second delay is 60s, so 31s later is still inside it.
	f.clock.Advance(31 * time.Second)
	assert.Equal(t, ActionBackoff, f.agent.Tick(ctx).Action)

	f.clock.Advance(30 * time.Second)
	assert.Equal(t, ActionLoginFailed, f.agent.Tick(ctx).Action)
}

func TestUserAgent_BackoffDisabledRetriesEveryTick(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: config.BackoffConfig{Enabled: false}})
	f.client.loginErr = errors.ErrTransport
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, ActionLoginFailed, f.agent.Tick(ctx).Action)
	}
	logins, _, _ := f.client.counts()
	assert.Equal(t, 3, logins)
}

func TestUserAgent_FailedSubmitRelogsInAndRetries(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Tick(ctx)
	target := *f.agent.Snapshot().TargetOut
	f.clock.Set(target.Add(time.Minute))
	f.client.submitErrs = []error{errors.ErrSubmitRejected.WithStatus(500)}

	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionClockOutFailed, res.Action)
	assert.ErrorIs(t, res.Err, errors.ErrSubmitRejected)
	assert.Equal(t, StateDue, res.State, "fresh token, clock-out still due")
	assert.Equal(t, target, *res.Target, "target kept after a failed submit")

	logins, submits, _ := f.client.counts()
	assert.Equal(t, 2, logins, "exactly one re-login after the failed submit")
	assert.Equal(t, 1, submits)

	f.clock.Advance(time.Minute)
	res = f.agent.Tick(ctx)
	assert.Equal(t, ActionClockOut, res.Action)
	assert.Equal(t, "token-E001-2", f.client.lastToken)

	logins, submits, _ = f.client.counts()
	assert.Equal(t, 2, logins)
	assert.Equal(t, 2, submits)
}

func TestUserAgent_FailedSubmitWithHRISDown(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Tick(ctx)
	f.clock.Set(f.agent.Snapshot().TargetOut.Add(time.Minute))
	f.client.submitErrs = []error{errors.ErrTransport}
	f.client.loginErr = errors.ErrTransport

	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionClockOutFailed, res.Action)
	assert.Equal(t, StateUnauthenticated, res.State)
	assert.False(t, f.agent.Snapshot().Authenticated)
}

func TestUserAgent_DashboardGate(t *testing.T) {
	tests := []struct {
		name        string
		dashboard   *hris.Attendance
		wantAction  Action
		wantSubmits int
		wantNextDay bool
	}{
		{
			name:        "timed in",
			dashboard:   &hris.Attendance{TimeIn: "08:55"},
			wantAction:  ActionClockOut,
			wantSubmits: 1,
			wantNextDay: true,
		},
		{
			name:        "already timed out",
			dashboard:   &hris.Attendance{TimeIn: "08:55", TimeOut: "17:02"},
			wantAction:  ActionAlreadyOut,
			wantNextDay: true,
		},
		{
			name:       "no time in",
			dashboard:  &hris.Attendance{},
			wantAction: ActionAwaitingTimeIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff(), RequireTimeIn: true})
			f.client.dashboard = tt.dashboard
			ctx := context.Background()

			f.agent.Tick(ctx)
			target := *f.agent.Snapshot().TargetOut
			f.clock.Set(target.Add(time.Second))

			res := f.agent.Tick(ctx)
			assert.Equal(t, tt.wantAction, res.Action)

			_, submits, dashboards := f.client.counts()
			assert.Equal(t, tt.wantSubmits, submits)
			assert.Equal(t, 1, dashboards)
			if tt.wantNextDay {
				assert.True(t, res.Target.After(target))
			} else {
				assert.Equal(t, target, *res.Target)
			}
		})
	}
}

func TestUserAgent_DashboardFailureKeepsClockOutDue(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff(), RequireTimeIn: true})
	f.client.dashboardErr = errors.ErrRequestRejected.WithStatus(401)
	ctx := context.Background()

	f.agent.Tick(ctx)
	f.clock.Set(f.agent.Snapshot().TargetOut.Add(time.Second))

	res := f.agent.Tick(ctx)
	assert.Equal(t, ActionDashboardFailed, res.Action)
	assert.Equal(t, StateDue, res.State)

	logins, submits, _ := f.client.counts()
	assert.Equal(t, 2, logins)
	assert.Equal(t, 0, submits)
}

func TestUserAgent_EventLog(t *testing.T) {
	f := newAgentFixture(t, "E042", AgentOptions{Backoff: fixedBackoff()})
	ctx := context.Background()

	f.agent.Prime(ctx)
	f.agent.Tick(ctx)
	f.clock.Set(f.agent.Snapshot().TargetOut.Add(time.Second))
	f.agent.Tick(ctx)

	out := f.events.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"event":"schedule_assigned"`)
	assert.Contains(t, lines[1], `"event":"login_succeeded"`)
	assert.Contains(t, lines[2], `"event":"clock_out_succeeded"`)
	assert.Contains(t, lines[3], `"event":"schedule_assigned"`)
	for _, line := range lines {
		assert.Contains(t, line, `"employee_number":"E042"`)
	}
	assert.NotContains(t, out, "s3cret", "passwords never reach the event log")
}

func TestUserAgent_SnapshotBeforeFirstTick(t *testing.T) {
	f := newAgentFixture(t, "E001", AgentOptions{Backoff: fixedBackoff()})

	snap := f.agent.Snapshot()
	assert.Equal(t, "E001", snap.EmployeeNumber)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.TargetOut)
	assert.Nil(t, snap.LastTickAt)

	f.client.loginErr = errors.ErrTransport
	f.agent.Tick(context.Background())
	snap = f.agent.Snapshot()
	assert.Equal(t, ActionLoginFailed, snap.LastAction)
	assert.Contains(t, snap.LastError, "TRANSPORT_ERROR")
	assert.NotNil(t, snap.LastTickAt)
}
