package session_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/metrics"
	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/resource"
	"github.com/emc-lab/emcbench/session"
	"github.com/emc-lab/emcbench/sim"
)

// rig is a simulated chamber with the drivers of its last acquisition
type rig struct {
	chamber *sim.Bench
	mu      sync.Mutex
	last    []resource.Resource
}

func newRig() *rig {
	b := sim.New()
	b.Threshold = func(angle float64, horizontal bool) float64 {
		if horizontal {
			return -70
		}
		return -65
	}
	return &rig{chamber: b}
}

func (r *rig) acquire() (session.Bench, error) {
	gen, relay, analog, pos := r.chamber.Drivers()
	r.mu.Lock()
	r.last = []resource.Resource{gen, relay, analog, pos}
	r.mu.Unlock()
	return session.Bench{Generator: gen, Relays: relay, Sensor: analog, Positioner: pos}, nil
}

func (r *rig) assertSafe(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.last {
		assert.Equal(t, resource.Closed, res.State(), "%s should have been released", res.ID())
	}
	s := r.chamber.Snapshot()
	assert.False(t, s.RF, "RF must be off")
	assert.Equal(t, -120., s.PowerDBm)
	assert.Equal(t, uint8(0), s.RelayPort)
	assert.GreaterOrEqual(t, s.Stops, 1, "motion must have been halted")
}

func fastProcedure(angles ...int) session.Procedure {
	p := session.DefaultProcedure()
	p.Angles = angles
	p.Threshold.Settle = 0
	p.PolarSettle = 0
	p.TurntableTimeout = time.Second
	return p
}

func newSession(t *testing.T, r *rig, p session.Procedure) (*session.Session, string) {
	dir := t.TempDir()
	return session.New(p, r.acquire, report.Sink{Dir: dir}, metrics.New(prometheus.NewRegistry())), dir
}

func TestSweepTwoAnglesBothPolarizations(t *testing.T) {
	r := newRig()
	s, _ := newSession(t, r, fastProcedure(0, 30))
	id, err := s.Start()
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.NoError(t, s.Wait())

	rows, err := s.Results()
	require.NoError(t, err)
	want := []report.Row{
		{Angle: 0, HAct: -70, HStop: -80, VAct: -65, VStop: -75},
		{Angle: 30, HAct: -70, HStop: -80, VAct: -65, VStop: -75},
	}
	assert.Equal(t, want, rows)

	st := s.Status()
	assert.False(t, st.Active)
	assert.True(t, st.ResultsReady)
	assert.Equal(t, "idle", st.State)
	assert.Equal(t, session.OutcomeCompleted, st.LastOutcome)
	assert.Equal(t, id, st.RunID)
	r.assertSafe(t)
	assert.Equal(t, 0., r.chamber.Snapshot().Degrees, "turntable should return home")
}

func TestNoActivationIsAValidResult(t *testing.T) {
	r := newRig()
	r.chamber.Threshold = func(float64, bool) float64 { return 100 }
	p := fastProcedure(0)
	p.Threshold.Start, p.Threshold.End = -20, -10
	s, _ := newSession(t, r, p)
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	rows, err := s.Results()
	require.NoError(t, err)
	assert.Equal(t, []report.Row{{Angle: 0}}, rows)
	assert.Equal(t, 2*11+1, r.chamber.Snapshot().Reads, "11 probes per polarization plus the safe state read")
}

func TestStopMidSweepWritesNothing(t *testing.T) {
	r := newRig()
	var s *session.Session
	r.chamber.OnRead = func(n int) error {
		if n == 5 {
			assert.True(t, s.Stop())
		}
		return nil
	}
	s, dir := newSession(t, r, fastProcedure(0, 30, 60))
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())

	st := s.Status()
	assert.Equal(t, session.OutcomeStopped, st.LastOutcome)
	assert.False(t, st.ResultsReady)
	assert.Empty(t, s.Artifact())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a stopped sweep must not leave a report")
	_, err = s.Results()
	assert.Equal(t, report.ErrNoReport, err)
	r.assertSafe(t)
}

func TestStartWhileRunningConflicts(t *testing.T) {
	r := newRig()
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	r.chamber.OnRead = func(n int) error {
		if n == 2 {
			once.Do(func() { close(entered) })
			<-gate
		}
		return nil
	}
	s, _ := newSession(t, r, fastProcedure(0))
	id, err := s.Start()
	require.NoError(t, err)
	<-entered
	_, err = s.Start()
	assert.ErrorIs(t, err, session.ErrConflict)
	assert.Equal(t, session.Running, s.State())
	assert.Equal(t, id, s.Status().RunID)
	close(gate)
	require.NoError(t, s.Wait())
	assert.Equal(t, session.OutcomeCompleted, s.Status().LastOutcome)
}

func TestSensorFailureAbortsToSafeState(t *testing.T) {
	r := newRig()
	r.chamber.OnRead = func(n int) error {
		if n == 3 {
			return fault.New(fault.Operation, "sim/Analog", "read ai0", "device disconnected")
		}
		return nil
	}
	s, dir := newSession(t, r, fastProcedure(0, 30))
	_, err := s.Start()
	require.NoError(t, err)
	err = s.Wait()
	assert.ErrorIs(t, err, fault.ErrOperation)
	st := s.Status()
	assert.Equal(t, session.OutcomeFailed, st.LastOutcome)
	assert.Contains(t, st.LastError, "device disconnected")
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
	r.assertSafe(t)
}

func TestPositionTimeoutAbortsToSafeState(t *testing.T) {
	r := newRig()
	r.chamber.Speed = 1
	p := fastProcedure(0, 90)
	p.TurntableTimeout = 50 * time.Millisecond
	s, _ := newSession(t, r, p)
	_, err := s.Start()
	require.NoError(t, err)
	err = s.Wait()
	var te *fault.TimeoutError
	require.True(t, errors.As(err, &te), "expected a timeout, got %v", err)
	assert.Greater(t, te.Distance, 0.)
	assert.False(t, s.Active())
	r.assertSafe(t)
}

func TestPanicStillTearsDown(t *testing.T) {
	r := newRig()
	r.chamber.OnRead = func(n int) error {
		if n == 2 {
			panic("driver bug")
		}
		return nil
	}
	s, _ := newSession(t, r, fastProcedure(0))
	_, err := s.Start()
	require.NoError(t, err)
	assert.Error(t, s.Wait())
	assert.Equal(t, session.OutcomeFailed, s.Status().LastOutcome)
	r.assertSafe(t)
}

func TestConnectionFailureReleasesEarlierResources(t *testing.T) {
	r := newRig()
	r.chamber.DAQOffline = true
	s, _ := newSession(t, r, fastProcedure(0))
	_, err := s.Start()
	require.NoError(t, err)
	assert.ErrorIs(t, s.Wait(), fault.ErrConnection)
	snap := r.chamber.Snapshot()
	assert.False(t, snap.RF)
	assert.Equal(t, -120., snap.PowerDBm)
}

func TestMissingHardwareIsConfigurationFault(t *testing.T) {
	r := newRig()
	acquire := func() (session.Bench, error) {
		b, _ := r.acquire()
		b.Sensor = nil
		return b, nil
	}
	s := session.New(fastProcedure(0), acquire, report.Sink{Dir: t.TempDir()}, nil)
	_, err := s.Start()
	assert.ErrorIs(t, err, fault.ErrConfiguration)
	assert.Equal(t, session.Idle, s.State())
	assert.NoError(t, s.Wait())
}

func TestInvalidProcedureIsUsageFault(t *testing.T) {
	p := fastProcedure(0, 0)
	s := session.New(p, newRig().acquire, report.Sink{Dir: t.TempDir()}, nil)
	_, err := s.Start()
	assert.ErrorIs(t, err, fault.ErrUsage)
	assert.False(t, s.Active())
}

func TestStartClearsPreviousArtifact(t *testing.T) {
	r := newRig()
	s, _ := newSession(t, r, fastProcedure(0))
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	require.NotEmpty(t, s.Artifact())

	var stopper sync.Once
	r.chamber.OnRead = func(n int) error {
		stopper.Do(func() { s.Stop() })
		return nil
	}
	_, err = s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	assert.Empty(t, s.Artifact())
	assert.False(t, s.Status().ResultsReady)
}

func TestStopWhenIdle(t *testing.T) {
	s := session.New(fastProcedure(0), newRig().acquire, report.Sink{Dir: t.TempDir()}, nil)
	assert.False(t, s.Stop())
}

func TestHealthSkipsUnconfigured(t *testing.T) {
	r := newRig()
	b, _ := r.acquire()
	b.Relays = nil
	checks := session.Health(context.Background(), b)
	require.Len(t, checks, 4)
	assert.True(t, checks[1].Skipped)
	for _, c := range checks {
		assert.True(t, c.OK(), "%+v", c)
	}
	assert.Contains(t, checks[0].Identity, "SMB100A")
}

func TestStopWhileAcquiringIsHonored(t *testing.T) {
	r := newRig()
	entered := make(chan struct{})
	gate := make(chan struct{})
	acquire := func() (session.Bench, error) {
		close(entered)
		<-gate
		return r.acquire()
	}
	dir := t.TempDir()
	s := session.New(fastProcedure(0), acquire, report.Sink{Dir: dir}, nil)

	type started struct {
		id  string
		err error
	}
	res := make(chan started, 1)
	go func() {
		id, err := s.Start()
		res <- started{id, err}
	}()
	<-entered
	assert.NotPanics(t, func() { assert.True(t, s.Stop()) })
	assert.Equal(t, session.StopRequested, s.State())
	close(gate)

	got := <-res
	require.NoError(t, got.err)
	require.NoError(t, s.Wait())
	st := s.Status()
	assert.Equal(t, session.OutcomeStopped, st.LastOutcome)
	assert.False(t, st.ResultsReady)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, r.chamber.Snapshot().Reads, "no hardware is touched after an early stop")
	assert.False(t, r.chamber.Snapshot().RF)
}

// homing calls onHome when the turntable is sent back to 0°
type homing struct {
	session.Positioner
	onHome func()
}

func (h homing) MoveTurntable(deg float64) error {
	if deg == 0 {
		h.onHome()
	}
	return h.Positioner.MoveTurntable(deg)
}

func TestStopAtTheEndWritesNothing(t *testing.T) {
	r := newRig()
	var s *session.Session
	acquire := func() (session.Bench, error) {
		b, err := r.acquire()
		b.Positioner = homing{Positioner: b.Positioner, onHome: func() { s.Stop() }}
		return b, err
	}
	dir := t.TempDir()
	s = session.New(fastProcedure(30), acquire, report.Sink{Dir: dir}, nil)
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	assert.Equal(t, session.OutcomeStopped, s.Status().LastOutcome)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStopAfterCommitIsRefused(t *testing.T) {
	r := newRig()
	var s *session.Session
	var stopped bool
	sink := report.Sink{Dir: t.TempDir(), Now: func() time.Time {
		stopped = s.Stop()
		return time.Now()
	}}
	s = session.New(fastProcedure(0), r.acquire, sink, nil)
	_, err := s.Start()
	require.NoError(t, err)
	require.NoError(t, s.Wait())
	assert.False(t, stopped, "a stop after the report is committed is refused")
	st := s.Status()
	assert.Equal(t, session.OutcomeCompleted, st.LastOutcome)
	assert.True(t, st.ResultsReady)
}

func TestHealthHoldsTheSlot(t *testing.T) {
	r := newRig()
	var s *session.Session
	var startErr error
	var during session.State
	r.chamber.OnRead = func(n int) error {
		during = s.State()
		_, startErr = s.Start()
		return nil
	}
	s = session.New(fastProcedure(0), r.acquire, report.Sink{Dir: t.TempDir()}, nil)
	checks, err := s.Health(context.Background())
	require.NoError(t, err)
	require.Len(t, checks, 4)
	assert.Equal(t, session.Checking, during)
	assert.ErrorIs(t, startErr, session.ErrConflict, "a sweep must not start under a health check")
	assert.Equal(t, session.Idle, s.State())
	assert.False(t, r.chamber.Snapshot().RF)
}

func TestHealthRefusedDuringSweep(t *testing.T) {
	r := newRig()
	gate := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	r.chamber.OnRead = func(n int) error {
		if n == 1 {
			once.Do(func() { close(entered) })
			<-gate
		}
		return nil
	}
	s, _ := newSession(t, r, fastProcedure(0))
	_, err := s.Start()
	require.NoError(t, err)
	<-entered
	_, err = s.Health(context.Background())
	assert.ErrorIs(t, err, session.ErrConflict)
	assert.True(t, r.chamber.Snapshot().RF, "the sweep keeps the RF on")
	close(gate)
	require.NoError(t, s.Wait())
	assert.Equal(t, session.OutcomeCompleted, s.Status().LastOutcome)
}
