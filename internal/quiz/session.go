// Package quiz drives checkpoint presentations during playback: a per-checkpoint countdown
// session and the scheduler that decides when a checkpoint is due.
package quiz

import (
	"errors"
	"sync"
	"time"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

const (
	// DefaultCountdown is the time a learner has to answer
	DefaultCountdown = 45 * time.Second
	// WrongAnswerPenalty is applied to incorrect answers and timeouts
	WrongAnswerPenalty = -5
	// DisplayWindow is how long a resolved session stays on screen before it is dismissed
	DisplayWindow = 3 * time.Second

	tickInterval = time.Second
)

var (
	ErrNotAnswering    = errors.New("quiz: session is not accepting answers")
	ErrAlreadyStarted  = errors.New("quiz: session already started")
	ErrAlreadyResolved = errors.New("quiz: session already resolved")
	ErrNoSelection     = errors.New("quiz: no answer selected")
	ErrInvalidOption   = errors.New("quiz: option index out of range")
	ErrClosed          = errors.New("quiz: session closed")
)

// Phase of a session
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAnswering
	PhaseResolved
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAnswering:
		return "answering"
	case PhaseResolved:
		return "resolved"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TickerFunc starts a ticker and returns its channel and a stop function
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func systemTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Option configures a session
type Option func(*Session)

// WithCountdown overrides the answer time; it is rounded down to whole seconds
func WithCountdown(d time.Duration) Option {
	return func(s *Session) { s.countdown = d }
}

// WithTicker replaces the one-second ticker
func WithTicker(f TickerFunc) Option {
	return func(s *Session) { s.ticker = f }
}

// WithClock sets the time source for ResolvedAt
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithOnTick registers a callback receiving the remaining seconds after each tick
func WithOnTick(f func(remaining int)) Option {
	return func(s *Session) { s.onTick = f }
}

// WithOnResolve registers a callback run once when the session resolves
func WithOnResolve(f func(model.CheckpointResult)) Option {
	return func(s *Session) { s.onResolve = append(s.onResolve, f) }
}

// Session is a single checkpoint presentation.
// It moves Idle → Answering → Resolved exactly once, by submission or by timeout.
type Session struct {
	mu         sync.Mutex
	checkpoint model.Checkpoint
	countdown  time.Duration
	remaining  int
	selected   *int
	phase      Phase
	result     *model.CheckpointResult

	ticker     TickerFunc
	stopTicker func()
	quit       chan struct{}
	done       chan struct{}
	now        func() time.Time
	onTick     func(remaining int)
	onResolve  []func(model.CheckpointResult)
}

// NewSession creates an idle session for a checkpoint
func NewSession(cp model.Checkpoint, opts ...Option) *Session {
	s := &Session{
		checkpoint: cp,
		countdown:  DefaultCountdown,
		ticker:     systemTicker,
		now:        time.Now,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.remaining = int(s.countdown / time.Second)
	return s
}

// Checkpoint returns the presented checkpoint
func (s *Session) Checkpoint() model.Checkpoint {
	return s.checkpoint
}

// Start begins the countdown
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseIdle {
		return ErrAlreadyStarted
	}
	s.phase = PhaseAnswering

	tick, stop := s.ticker(tickInterval)
	s.stopTicker = stop
	go s.run(tick)
	return nil
}

func (s *Session) run(tick <-chan time.Time) {
	for {
		select {
		case <-s.quit:
			return
		case <-tick:
			if !s.tick() {
				return
			}
		}
	}
}

// tick decrements the countdown and reports whether the session is still answering
func (s *Session) tick() bool {
	s.mu.Lock()
	if s.phase != PhaseAnswering {
		s.mu.Unlock()
		return false
	}

	s.remaining--
	remaining := s.remaining
	onTick := s.onTick

	var resolved *model.CheckpointResult
	if s.remaining <= 0 {
		s.remaining = 0
		resolved = s.resolveLocked(model.OutcomeTimeout)
	}
	s.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
	if resolved != nil {
		s.finish(*resolved)
		return false
	}
	return true
}

// Select changes the chosen option; it may be called any number of times before Submit
func (s *Session) Select(option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.answeringLocked(); err != nil {
		return err
	}
	if option < 0 || option >= len(s.checkpoint.Options) {
		return ErrInvalidOption
	}
	s.selected = &option
	return nil
}

// Submit commits the selected option. Once resolved, it returns the existing result
// together with ErrAlreadyResolved and changes nothing.
func (s *Session) Submit() (model.CheckpointResult, error) {
	s.mu.Lock()
	if s.phase == PhaseResolved {
		result := *s.result
		s.mu.Unlock()
		return result, ErrAlreadyResolved
	}
	if err := s.answeringLocked(); err != nil {
		s.mu.Unlock()
		return model.CheckpointResult{}, err
	}
	if s.selected == nil {
		s.mu.Unlock()
		return model.CheckpointResult{}, ErrNoSelection
	}

	outcome := model.OutcomeIncorrect
	if *s.selected == s.checkpoint.CorrectAnswer {
		outcome = model.OutcomeCorrect
	}
	result := s.resolveLocked(outcome)
	s.mu.Unlock()

	s.finish(*result)
	return *result, nil
}

// SubmitAnswer selects and submits in one step
func (s *Session) SubmitAnswer(option int) (model.CheckpointResult, error) {
	if err := s.Select(option); err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return s.Submit()
		}
		return model.CheckpointResult{}, err
	}
	return s.Submit()
}

// Close tears the session down. An unresolved session is abandoned without a result.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.phase {
	case PhaseResolved, PhaseClosed:
		return
	case PhaseAnswering:
		s.halt()
	}
	s.phase = PhaseClosed
	close(s.done)
}

// Done is closed when the session resolves or is closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the resolution, if any
func (s *Session) Result() (model.CheckpointResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return model.CheckpointResult{}, false
	}
	return *s.result, true
}

// Remaining returns the seconds left to answer
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Phase returns the current phase
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Selected returns the chosen option, if any
func (s *Session) Selected() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return 0, false
	}
	return *s.selected, true
}

func (s *Session) answeringLocked() error {
	switch s.phase {
	case PhaseAnswering:
		return nil
	case PhaseResolved:
		return ErrAlreadyResolved
	case PhaseClosed:
		return ErrClosed
	default:
		return ErrNotAnswering
	}
}

// resolveLocked performs the single Answering → Resolved transition
func (s *Session) resolveLocked(outcome model.CheckpointOutcome) *model.CheckpointResult {
	s.halt()
	s.phase = PhaseResolved

	delta := WrongAnswerPenalty
	if outcome == model.OutcomeCorrect {
		delta = s.checkpoint.Points
	}

	result := &model.CheckpointResult{
		CheckpointID: s.checkpoint.ID,
		Outcome:      outcome,
		PointsDelta:  delta,
		ResolvedAt:   s.now(),
	}
	if outcome != model.OutcomeTimeout && s.selected != nil {
		selected := *s.selected
		result.SelectedAnswer = &selected
	}
	s.result = result
	return result
}

// halt stops the countdown goroutine
func (s *Session) halt() {
	if s.stopTicker != nil {
		s.stopTicker()
	}
	close(s.quit)
}

// finish runs the resolve callbacks, then releases Done waiters
func (s *Session) finish(result model.CheckpointResult) {
	for _, f := range s.onResolve {
		f(result)
	}
	close(s.done)
}
