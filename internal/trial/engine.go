package trial

import (
	"errors"
	"fmt"
	"time"

	"github.com/verte-zerg/seqrecall/internal/model"
)

// State is the phase of a single trial.
type State int

// Trial states. Transitions only move forward.
const (
	StateIdle State = iota
	StateDisplay
	StateArmed
	StateSubmitted
	StateTimedOut
	StateScored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDisplay:
		return "display"
	case StateArmed:
		return "armed"
	case StateSubmitted:
		return "submitted"
	case StateTimedOut:
		return "timed_out"
	case StateScored:
		return "scored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Defaults for trial timing.
const (
	DefaultDisplayDuration = 2500 * time.Millisecond
	DefaultRecallSeconds   = 10
	TickInterval           = time.Second
)

var (
	// ErrFinished is returned when every trial has been scored.
	ErrFinished = errors.New("trial: session finished")
	// ErrInvalidTransition is returned for an event the current state does not accept.
	ErrInvalidTransition = errors.New("trial: invalid transition")
	// ErrStaleTimer is returned for a display or tick event that no longer applies.
	ErrStaleTimer = errors.New("trial: stale timer event")
)

// Timing configures phase durations.
type Timing struct {
	Display       time.Duration
	RecallSeconds int
}

// DefaultTiming returns the standard 2.5s display and 10s recall window.
func DefaultTiming() Timing {
	return Timing{Display: DefaultDisplayDuration, RecallSeconds: DefaultRecallSeconds}
}

// Trial is one display/recall step.
type Trial struct {
	Index    int
	Stimulus model.Stimulus
	Practice bool

	state     State
	countdown *Countdown
	armedAt   time.Time
	record    model.TrialRecord
}

// State returns the trial's current phase.
func (t *Trial) State() State {
	return t.state
}

// Countdown returns the recall timer, nil before the trial is armed.
func (t *Trial) Countdown() *Countdown {
	return t.countdown
}

// Record returns the scored record. Only valid in StateScored.
func (t *Trial) Record() model.TrialRecord {
	return t.record
}

// Outcome reports the effect of an armed-phase event.
type Outcome struct {
	Remaining int
	Scored    bool
	TimedOut  bool
	Record    model.TrialRecord
	Practice  bool
}

// Engine runs trials in order. It is not safe for concurrent use; all
// events are expected from a single event loop.
type Engine struct {
	ctx    model.SessionContext
	timing Timing
	now    func() time.Time

	trials    []*Trial
	pos       int
	records   []model.TrialRecord
	completed int
	total     int

	lastTimerID uint64
	active      *Countdown
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithTiming overrides the default timing.
func WithTiming(t Timing) Option {
	return func(e *Engine) {
		e.timing = t
	}
}

// WithPractice prepends a practice trial whose record is discarded.
func WithPractice(stim model.Stimulus) Option {
	return func(e *Engine) {
		e.trials = append([]*Trial{{Index: -1, Stimulus: stim, Practice: true}}, e.trials...)
	}
}

// NewEngine builds an engine over pre-tagged stimuli in presentation order.
func NewEngine(sc model.SessionContext, stimuli []model.Stimulus, opts ...Option) *Engine {
	e := &Engine{
		ctx:    sc,
		timing: DefaultTiming(),
		now:    time.Now,
		total:  len(stimuli),
	}
	e.trials = make([]*Trial, 0, len(stimuli)+1)
	for i, stim := range stimuli {
		e.trials = append(e.trials, &Trial{Index: i, Stimulus: stim})
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.timing.RecallSeconds <= 0 {
		e.timing.RecallSeconds = DefaultRecallSeconds
	}
	if e.timing.Display < 0 {
		e.timing.Display = 0
	}
	e.records = make([]model.TrialRecord, 0, len(stimuli))
	return e
}

// Timing returns the engine's phase durations.
func (e *Engine) Timing() Timing {
	return e.timing
}

// Context returns the session context records are built with.
func (e *Engine) Context() model.SessionContext {
	return e.ctx
}

// Current returns the trial in progress or next to start, nil when done.
func (e *Engine) Current() *Trial {
	if e.pos >= len(e.trials) {
		return nil
	}
	return e.trials[e.pos]
}

// Done reports whether every trial has been scored.
func (e *Engine) Done() bool {
	return e.pos >= len(e.trials)
}

// Progress returns scored real trials and the real trial total.
func (e *Engine) Progress() (completed, total int) {
	return e.completed, e.total
}

// Records returns a copy of the scored real-trial records in presentation order.
func (e *Engine) Records() []model.TrialRecord {
	out := make([]model.TrialRecord, len(e.records))
	copy(out, e.records)
	return out
}

// Start moves the current trial from idle to display.
func (e *Engine) Start() (*Trial, error) {
	t := e.Current()
	if t == nil {
		return nil, ErrFinished
	}
	if t.state != StateIdle {
		return nil, fmt.Errorf("%w: start from %s", ErrInvalidTransition, t.state)
	}
	t.state = StateDisplay
	return t, nil
}

// DisplayElapsed arms the trial whose display phase ended. Any countdown
// still running is stopped before the new one starts.
func (e *Engine) DisplayElapsed(t *Trial) (*Countdown, error) {
	cur := e.Current()
	if cur == nil {
		return nil, ErrFinished
	}
	if cur != t {
		return nil, ErrStaleTimer
	}
	if t.state != StateDisplay {
		return nil, fmt.Errorf("%w: arm from %s", ErrInvalidTransition, t.state)
	}
	if e.active != nil {
		e.active.Stop()
	}
	e.lastTimerID++
	t.countdown = newCountdown(e.lastTimerID, e.timing.RecallSeconds)
	t.armedAt = e.now()
	t.state = StateArmed
	e.active = t.countdown
	return t.countdown, nil
}

// Tick advances the countdown identified by timerID. field is the current
// input; it is force-submitted when the countdown reaches zero.
func (e *Engine) Tick(timerID uint64, field string) (Outcome, error) {
	t := e.Current()
	if t == nil || t.state != StateArmed || e.active == nil || e.active.ID() != timerID || e.active.Stopped() {
		return Outcome{}, ErrStaleTimer
	}
	if !e.active.tick() {
		return Outcome{Remaining: e.active.Remaining()}, nil
	}
	t.state = StateTimedOut
	return e.score(t, field, true), nil
}

// Submit scores the armed trial with an explicit response and cancels its countdown.
func (e *Engine) Submit(response string) (Outcome, error) {
	t := e.Current()
	if t == nil {
		return Outcome{}, ErrFinished
	}
	if t.state != StateArmed {
		return Outcome{}, fmt.Errorf("%w: submit from %s", ErrInvalidTransition, t.state)
	}
	t.state = StateSubmitted
	return e.score(t, response, false), nil
}

func (e *Engine) score(t *Trial, response string, timedOut bool) Outcome {
	if t.countdown != nil {
		t.countdown.Stop()
	}
	e.active = nil

	latency := e.now().Sub(t.armedAt)
	if latency < 0 {
		latency = 0
	}
	t.record = Score(e.ctx, t.Index, t.Stimulus, response, latency, timedOut)
	t.state = StateScored
	if !t.Practice {
		e.records = append(e.records, t.record)
		e.completed++
	}
	e.pos++

	remaining := 0
	if t.countdown != nil {
		remaining = t.countdown.Remaining()
	}
	return Outcome{
		Remaining: remaining,
		Scored:    true,
		TimedOut:  timedOut,
		Record:    t.record,
		Practice:  t.Practice,
	}
}
