/*
Package session runs the sensitivity sweep.

A Session is a single slot: at most one sweep runs at a time, and a Start
while one is active is refused with ErrConflict rather than queued.  The
sweep itself runs on its own goroutine so Status and Stop stay responsive.

Lifecycle:

	Idle -> Running -> (StopRequested) -> Completed | Aborted -> Idle
	Idle -> Checking -> Idle

Stop is cooperative.  It cancels the run's context, which is checked between
angles, between polarizations, before every power probe and during position
waits; an in-flight hardware call always finishes first.  A stopped or failed
run writes no report.  Whatever ends a run, every resource it acquired is
driven to its safe state before the session leaves Running.
*/
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/emc-lab/emcbench/fault"
	"github.com/emc-lab/emcbench/metrics"
	"github.com/emc-lab/emcbench/report"
	"github.com/emc-lab/emcbench/resource"
)

// ErrConflict is returned by Start while a sweep is active
var ErrConflict = errors.New("a sweep is already running")

// State of a session
type State int32

const (
	// Idle sessions accept Start
	Idle State = iota

	// Running sessions are sweeping
	Running

	// StopRequested sessions are winding down after Stop
	StopRequested

	// Completed is held from the moment a run commits its report until it
	// has torn down; Stop is no longer honored
	Completed

	// Aborted is held while a stopped or failed run tears down
	Aborted

	// Checking sessions are running a health check on the bench
	Checking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case StopRequested:
		return "stop-requested"
	case Completed:
		return "completed"
	case Aborted:
		return "aborted"
	case Checking:
		return "checking"
	}
	return "unknown"
}

// Outcomes of a finished run
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeFailed    = "failed"
)

// Status is the externally observable state of a session
type Status struct {
	Active       bool   `json:"is_running"`
	ResultsReady bool   `json:"results_ready"`
	State        string `json:"state"`
	RunID        string `json:"run_id,omitempty"`
	LastOutcome  string `json:"last_outcome,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

// Session owns the sweep slot
type Session struct {
	proc    Procedure
	acquire Acquirer
	sink    report.Sink
	metrics *metrics.Sweep

	state    atomic.Int32
	artifact atomic.Value // string

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	runID       string
	lastOutcome string
	lastErr     error
}

// New returns an idle session.  m may be nil
func New(proc Procedure, acquire Acquirer, sink report.Sink, m *metrics.Sweep) *Session {
	s := &Session{proc: proc, acquire: acquire, sink: sink, metrics: m}
	s.artifact.Store("")
	return s
}

// Procedure returns the sweep parameters
func (s *Session) Procedure() Procedure { return s.proc }

// State returns the current state
func (s *Session) State() State { return State(s.state.Load()) }

// Active returns true while a sweep or a health check occupies the slot
func (s *Session) Active() bool {
	return s.State() != Idle
}

// Artifact returns the path of the last report, or "" if the last run
// produced none
func (s *Session) Artifact() string {
	return s.artifact.Load().(string)
}

// Results reads the last report back.  ErrNoReport if there is none
func (s *Session) Results() ([]report.Row, error) {
	return report.Read(s.Artifact())
}

// Status returns a snapshot for the status surface
func (s *Session) Status() Status {
	st := Status{
		Active:       s.Active(),
		ResultsReady: report.Exists(s.Artifact()),
		State:        s.State().String(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.RunID = s.runID
	st.LastOutcome = s.lastOutcome
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Start launches a sweep in the background and returns its run ID.
// It fails with ErrConflict if the slot is taken, or with a Usage or
// Configuration fault if the procedure or the bench is unfit; in every
// failure case the session is left as it was.  A Stop that arrives while
// Start is still acquiring the bench is honored: the run ends stopped
// before touching any hardware.
func (s *Session) Start() (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if !s.state.CompareAndSwap(int32(Idle), int32(Running)) {
		s.mu.Unlock()
		cancel()
		return "", ErrConflict
	}
	// Stop reads cancel under mu, so it never sees a stale one
	s.cancel = cancel
	s.mu.Unlock()

	release := func(err error) (string, error) {
		cancel()
		s.state.Store(int32(Idle))
		return "", err
	}
	if err := s.proc.Validate(); err != nil {
		return release(err)
	}
	bench, err := s.acquire()
	if err != nil {
		return release(fault.Wrap(fault.Configuration, "", "acquire bench", err))
	}
	if missing := bench.Missing(); len(missing) > 0 {
		return release(fault.New(fault.Configuration, "", "acquire bench", "not configured: %v", missing))
	}

	s.artifact.Store("")
	id := uuid.New().String()
	done := make(chan struct{})
	s.mu.Lock()
	s.done = done
	s.runID = id
	s.lastOutcome = ""
	s.lastErr = nil
	s.mu.Unlock()

	s.metrics.SetActive(true)
	log.WithFields(log.Fields{"component": "session", "run": id}).Info("sweep started")
	go s.run(ctx, cancel, bench, id, done)
	return id, nil
}

// Stop requests the active sweep to stop.  It returns false if no sweep
// was running, or if the sweep has already committed its report
func (s *Session) Stop() bool {
	if s.state.CompareAndSwap(int32(Running), int32(StopRequested)) {
		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		log.WithField("component", "session").Info("stop requested")
		return true
	}
	return s.State() == StopRequested
}

// commit moves a running sweep past the point where Stop is honored.  It
// fails with context.Canceled if a stop got there first
func (s *Session) commit() error {
	if !s.state.CompareAndSwap(int32(Running), int32(Completed)) {
		return context.Canceled
	}
	return nil
}

// Wait blocks until the current run, if any, has finished and returns the
// error it ended with
func (s *Session) Wait() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) run(ctx context.Context, cancel context.CancelFunc, b Bench, id string, done chan struct{}) {
	defer close(done)
	defer cancel()
	entry := log.WithFields(log.Fields{"component": "session", "run": id})

	var acquired []resource.Resource
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic during sweep: %v", p)
			}
		}()
		return s.sweep(ctx, b, &acquired, entry)
	}()

	entry.Info("teardown: driving every resource to its safe state")
	resource.SafeAll(acquired...)
	resource.CloseAll(acquired...)

	outcome := OutcomeCompleted
	final := Completed
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		outcome, final = OutcomeStopped, Aborted
		err = nil
		entry.Warn("sweep stopped before completion, no report written")
	default:
		outcome, final = OutcomeFailed, Aborted
		kind := "unknown"
		if k, ok := fault.KindOf(err); ok {
			kind = k.String()
		}
		s.metrics.Fault(kind)
		entry.WithField("kind", kind).Errorf("sweep failed: %v", err)
	}
	s.state.Store(int32(final))
	s.mu.Lock()
	s.lastOutcome = outcome
	s.lastErr = err
	s.mu.Unlock()
	s.metrics.Finished(outcome)
	s.metrics.SetActive(false)
	entry.Infof("sweep %s", outcome)
	s.state.Store(int32(Idle))
}
