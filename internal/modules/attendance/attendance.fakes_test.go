package attendance

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/waqasmani/hris-autoclock/internal/config"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/hris"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	"github.com/waqasmani/hris-autoclock/internal/modules/credentials"
)

type fakeHRIS struct {
	mu           sync.Mutex
	logins       int
	submits      int
	dashboards   int
	loginErr     error
	submitErrs   []error
	dashboard    *hris.Attendance
	dashboardErr error
	panicOnLogin bool
	lastToken    string
}

func (f *fakeHRIS) Login(_ context.Context, req hris.LoginRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnLogin {
		panic("login exploded for " + req.EmployeeNumber)
	}
	f.logins++
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return fmt.Sprintf("token-%s-%d", req.EmployeeNumber, f.logins), nil
}

func (f *fakeHRIS) SubmitAttendance(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastToken = token
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return err
	}
	return nil
}

func (f *fakeHRIS) Dashboard(_ context.Context, _ string) (*hris.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dashboards++
	if f.dashboardErr != nil {
		return nil, f.dashboardErr
	}
	if f.dashboard == nil {
		return &hris.Attendance{}, nil
	}
	att := *f.dashboard
	return &att, nil
}

func (f *fakeHRIS) counts() (logins, submits, dashboards int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.submits, f.dashboards
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Friday morning, well before the evening window.
var morning = time.Date(2024, time.May, 10, 8, 0, 0, 0, time.UTC)

func eveningWindow(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow(TimeOfDay{Hour: 17}, TimeOfDay{Hour: 18}, time.UTC)
	require.NoError(t, err)
	return w
}

func fixedBackoff() config.BackoffConfig {
	return config.BackoffConfig{
		Enabled:         true,
		InitialInterval: 30 * time.Second,
		MaxInterval:     15 * time.Minute,
		Multiplier:      2,
		Randomization:   0,
	}
}

type agentFixture struct {
	agent  *UserAgent
	client *fakeHRIS
	clock  *fakeClock
	events *bytes.Buffer
}

func newAgentFixture(t *testing.T, employee string, opts AgentOptions) *agentFixture {
	t.Helper()
	if opts.Window.Location == nil {
		opts.Window = eveningWindow(t)
	}
	client := &fakeHRIS{}
	clock := newFakeClock(morning)
	events := &bytes.Buffer{}

	agent := NewUserAgent(
		credentials.Credential{EmployeeNumber: employee, Password: "s3cret-" + employee},
		opts,
		AgentDeps{
			Client:  client,
			Events:  observability.NewEventLoggerWithWriter(events, "json"),
			Metrics: observability.NewMetricsWithConfig(observability.NewTestMetricsConfig()),
			Clock:   clock.Now,
			Rand:    rand.New(rand.NewPCG(7, 11)),
		},
	)
	return &agentFixture{agent: agent, client: client, clock: clock, events: events}
}
