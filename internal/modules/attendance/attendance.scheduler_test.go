package attendance

import (
	"context"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/modules/credentials"
	"github.com/waqasmani/hris-autoclock/internal/shared/errors"
)

func newTestAgents(t *testing.T, n int, clock *fakeClock) ([]*UserAgent, []*fakeHRIS) {
	t.Helper()
	agents := make([]*UserAgent, n)
	clients := make([]*fakeHRIS, n)
	for i := range agents {
		clients[i] = &fakeHRIS{}
		agents[i] = NewUserAgent(
			credentials.Credential{EmployeeNumber: fmt.Sprintf("E%03d", i+1), Password: "pw"},
			AgentOptions{Window: eveningWindow(t), Backoff: fixedBackoff()},
			AgentDeps{
				Client: clients[i],
				Clock:  clock.Now,
				Rand:   rand.New(rand.NewPCG(uint64(i), 1)),
			},
		)
	}
	return agents, clients
}

func TestScheduler_RunOnce(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 5, clock)
	metrics := observability.NewMetricsWithConfig(observability.NewTestMetricsConfig())
	s := NewScheduler(agents, config.PollConfig{Interval: time.Minute, Workers: 3}, SchedulerDeps{Metrics: metrics})

	results, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)

	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("E%03d", i+1), res.EmployeeNumber, "results keep agent order")
		assert.Equal(t, ActionLogin, res.Action)
		assert.NotNil(t, res.Target)
		logins, _, _ := clients[i].counts()
		assert.Equal(t, 1, logins)
	}
}

func TestScheduler_OneFailingAgentDoesNotAffectOthers(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 3, clock)
	clients[1].loginErr = errors.ErrAuthRejected
	s := NewScheduler(agents, config.PollConfig{Interval: time.Minute, Workers: 2}, SchedulerDeps{})

	results, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ActionLogin, results[0].Action)
	assert.Equal(t, ActionLoginFailed, results[1].Action)
	assert.Equal(t, ActionLogin, results[2].Action)
}

func TestScheduler_CanceledCycleSkipsAgents(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 3, clock)
	s := NewScheduler(agents, config.PollConfig{Interval: time.Minute, Workers: 2}, SchedulerDeps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := s.RunCycle(ctx)

	for i, res := range results {
		assert.Equal(t, ActionCanceled, res.Action)
		assert.NoError(t, res.Err)
		logins, _, _ := clients[i].counts()
		assert.Equal(t, 0, logins)
		assert.Nil(t, agents[i].Snapshot().NextLoginAt, "no backoff armed")
	}
}

func TestScheduler_RecoversPanickingTick(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 3, clock)
	clients[0].panicOnLogin = true
	s := NewScheduler(agents, config.PollConfig{Interval: time.Minute, Workers: 1}, SchedulerDeps{})

	results := s.RunCycle(context.Background())

	assert.Equal(t, ActionPanicked, results[0].Action)
	assert.ErrorIs(t, results[0].Err, errors.ErrInternal)
	assert.Equal(t, "E001", results[0].EmployeeNumber)
	assert.Equal(t, ActionLogin, results[1].Action)
	assert.Equal(t, ActionLogin, results[2].Action)

	// The panicking agent stays usable.
	clients[0].mu.Lock()
	clients[0].panicOnLogin = false
	clients[0].mu.Unlock()
	results = s.RunCycle(context.Background())
	assert.Equal(t, ActionLogin, results[0].Action)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 2, clock)
	s := NewScheduler(agents, config.PollConfig{Interval: 10 * time.Millisecond, Workers: 2}, SchedulerDeps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop did not stop after cancel")
	}

	for _, c := range clients {
		logins, _, _ := c.counts()
		assert.Equal(t, 1, logins, "authenticated agents do not log in again")
	}
	for _, a := range agents {
		assert.NotNil(t, a.Snapshot().TargetOut)
	}
}

func TestScheduler_ClockOutAcrossCycles(t *testing.T) {
	clock := newFakeClock(morning)
	agents, clients := newTestAgents(t, 4, clock)
	s := NewScheduler(agents, config.PollConfig{Interval: time.Minute, Workers: 4}, SchedulerDeps{})

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	clock.Set(time.Date(2024, time.May, 10, 18, 0, 1, 0, time.UTC))
	for _, res := range s.RunCycle(context.Background()) {
		assert.Equal(t, ActionClockOut, res.Action)
	}
	for _, res := range s.RunCycle(context.Background()) {
		assert.Equal(t, ActionNone, res.Action)
	}
	for _, c := range clients {
		_, submits, _ := c.counts()
		assert.Equal(t, 1, submits)
	}
}

func TestScheduler_NoAgents(t *testing.T) {
	s := NewScheduler(nil, config.PollConfig{Interval: time.Minute, Workers: 1}, SchedulerDeps{})

	assert.ErrorIs(t, s.Run(context.Background()), ErrNoAgents)
	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrNoAgents)
}
