package quiz

import (
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/Taichi-iskw/clipquiz/internal/model"
)

// TriggerWindow is how close, in seconds, playback must be to a checkpoint's position
const TriggerWindow = 0.5

// ErrSessionActive is returned when a checkpoint is presented while another is on screen
var ErrSessionActive = errors.New("quiz: another checkpoint is being answered")

// Playback schedules the checkpoints of one video. It owns the set of completed
// checkpoints and the running score, and allows one active session at a time.
type Playback struct {
	mu          sync.Mutex
	checkpoints []model.Checkpoint
	completed   map[string]bool
	active      *Session
	score       int
	results     []model.CheckpointResult
	opts        []Option
}

// NewPlayback creates a scheduler; opts are applied to every session it presents
func NewPlayback(checkpoints []model.Checkpoint, opts ...Option) *Playback {
	sorted := append([]model.Checkpoint(nil), checkpoints...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimePercent < sorted[j].TimePercent
	})

	return &Playback{
		checkpoints: sorted,
		completed:   make(map[string]bool),
		opts:        opts,
	}
}

// Checkpoints returns the checkpoints in presentation order
func (p *Playback) Checkpoints() []model.Checkpoint {
	return p.checkpoints
}

// Due returns the first uncompleted checkpoint whose position is within the trigger
// window of current, or nil. Nothing is due while a session is active.
func (p *Playback) Due(current, duration float64) *model.Checkpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil || duration <= 0 {
		return nil
	}
	for i := range p.checkpoints {
		cp := &p.checkpoints[i]
		if p.completed[cp.ID] {
			continue
		}
		at := duration * float64(cp.TimePercent) / 100
		if math.Abs(current-at) < TriggerWindow {
			return cp
		}
	}
	return nil
}

// Present starts a session for the checkpoint. Its result is recorded automatically.
func (p *Playback) Present(cp model.Checkpoint) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return nil, ErrSessionActive
	}

	var session *Session
	opts := append(append([]Option(nil), p.opts...), WithOnResolve(func(result model.CheckpointResult) {
		p.record(session, result)
	}))
	session = NewSession(cp, opts...)
	if err := session.Start(); err != nil {
		return nil, err
	}
	p.active = session
	return session, nil
}

// Dismiss closes the active session, abandoning it if unresolved
func (p *Playback) Dismiss() {
	p.mu.Lock()
	session := p.active
	p.active = nil
	p.mu.Unlock()

	if session != nil {
		session.Close()
	}
}

// record folds a resolution into the score. A late result from a dismissed session
// leaves the currently active session in place.
func (p *Playback) record(session *Session, result model.CheckpointResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.results = append(p.results, result)
	p.score += result.PointsDelta
	if p.score < 0 {
		p.score = 0
	}
	if result.Correct() {
		p.completed[result.CheckpointID] = true
	}
	if p.active == session {
		p.active = nil
	}
}

// Score returns the running score, never below zero
func (p *Playback) Score() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.score
}

// IsCompleted reports whether the checkpoint was answered correctly
func (p *Playback) IsCompleted(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed[id]
}

// Results returns every recorded resolution in order
func (p *Playback) Results() []model.CheckpointResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.CheckpointResult(nil), p.results...)
}

// Finished reports whether every checkpoint has been completed
func (p *Playback) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed) == len(p.checkpoints)
}
