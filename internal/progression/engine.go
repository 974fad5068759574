package progression

import (
	"sync"
	"time"

	"github.com/and161185/hacking-zone/internal/catalog"
	"github.com/and161185/hacking-zone/internal/model"
)

// Engine owns one learner's state and serializes transitions on it.
type Engine struct {
	rules Rules
	now   func() time.Time

	mu    sync.Mutex
	state State
}

// NewEngine constructs an engine over cat starting from initial (normalized).
func NewEngine(cat *catalog.Catalog, initial State) *Engine {
	r := Rules{Catalog: cat}
	return &Engine{rules: r, now: time.Now, state: r.Normalize(initial)}
}

// WithClock replaces the time source used for badge timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Rules exposes the engine's rule set.
func (e *Engine) Rules() Rules { return e.rules }

// State returns a copy of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

// Apply runs fn against the current state and stores the result unless fn fails.
func (e *Engine) Apply(fn func(State) (State, error)) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := fn(e.state.Clone())
	if err != nil {
		return e.state.Clone(), err
	}
	e.state = next
	return next.Clone(), nil
}

// CompleteLevel applies a level completion event.
func (e *Engine) CompleteLevel(levelID, points int) (State, Outcome, error) {
	var out Outcome
	st, err := e.Apply(func(s State) (State, error) {
		next, o, err := e.rules.CompleteLevel(s, levelID, points, e.now())
		out = o
		return next, err
	})
	return st, out, err
}

// UnlockNextLevel advances the level pointer and returns it.
func (e *Engine) UnlockNextLevel() int {
	st, _ := e.Apply(func(s State) (State, error) { return e.rules.UnlockNextLevel(s), nil })
	return st.CurrentLevel
}

// Reset restores defaults, keeping the display name.
func (e *Engine) Reset() State {
	st, _ := e.Apply(func(s State) (State, error) { return e.rules.Reset(s), nil })
	return st
}

// Load replaces the state wholesale.
func (e *Engine) Load(s State) {
	e.mu.Lock()
	e.state = e.rules.Normalize(s)
	e.mu.Unlock()
}

// Merge folds a server snapshot into the state.
func (e *Engine) Merge(snap model.Snapshot) State {
	st, _ := e.Apply(func(s State) (State, error) {
		return ApplySnapshot(s, snap, e.rules.Catalog.MaxLevel()), nil
	})
	return st
}

// SetIdentity updates server-owned profile fields.
func (e *Engine) SetIdentity(username string, streak int, lastLogin *time.Time) State {
	st, _ := e.Apply(func(s State) (State, error) {
		if username != "" {
			s.Profile.Username = username
		}
		s.Profile.LoginStreak = streak
		s.Profile.LastLogin = lastLogin
		return s, nil
	})
	return st
}

// LevelProgress derives the status of one level.
func (e *Engine) LevelProgress(levelID int) LevelProgress {
	return e.rules.LevelProgress(e.State(), levelID)
}

// Stats summarizes the current state.
func (e *Engine) Stats() Stats {
	return e.rules.Stats(e.State())
}

// Snapshot returns the synchronizable subset of the current state.
func (e *Engine) Snapshot() model.Snapshot {
	return e.State().Snapshot()
}
