package session

import (
	"sync"
	"time"

	"github.com/minhng/codequiz/internal/domain"
	"github.com/minhng/codequiz/internal/errors"
)

type Config struct {
	// MaxScorePerQuestion caps the score recorded for any single answer.
	MaxScorePerQuestion int

	// Clock is used for all timestamps. Defaults to time.Now.
	Clock func() time.Time
}

// Registry is the process-wide map from username to quiz session. All
// operations take the registry lock, so read-modify-write sequences such as
// Advance are atomic with respect to concurrent submissions and timer
// firings for the same user. Sessions are never deleted.
type Registry struct {
	maxScore int
	clock    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	session domain.Session
	timer   *time.Timer
}

func NewRegistry(c Config) *Registry {
	clock := c.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Registry{
		maxScore: c.MaxScorePerQuestion,
		clock:    clock,
		sessions: make(map[string]*entry),
	}
}

// GetOrCreate returns a snapshot of the session for username, creating a
// fresh one on first login. Re-login never resets existing state.
func (r *Registry) GetOrCreate(username string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[username]; ok {
		return snapshot(e), false
	}

	now := r.clock()
	e := &entry{
		session: domain.Session{
			Username:          username,
			StartTime:         now,
			Answers:           make(map[int]domain.Answer),
			CurrentQuestion:   0,
			QuestionStartTime: now,
			TotalScore:        0,
		},
	}
	r.sessions[username] = e

	return snapshot(e), true
}

// Get returns a snapshot of the session for username.
func (r *Registry) Get(username string) (domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		return domain.Session{}, false
	}
	return snapshot(e), true
}

// Exists reports whether username has ever logged in.
func (r *Registry) Exists(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.sessions[username]
	return ok
}

// UpdateCurrentCode overwrites the in-progress code snapshot and provisional
// score. Unknown usernames are a silent no-op.
func (r *Registry) UpdateCurrentCode(username, code string, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		return
	}

	e.session.CurrentCode = code
	e.session.CurrentScore = r.clamp(score)
}

// AdvanceResult reports the session state after an advance.
type AdvanceResult struct {
	CurrentQuestion int
	TotalScore      int
}

// Advance records the answer for questionIdx with the score clamped to
// [0, MaxScorePerQuestion], adds it to the running total, moves the session
// to the next question, resets the question clock and clears the code
// snapshot. Any outstanding auto-submit timer is stopped.
func (r *Registry) Advance(username string, questionIdx int, code string, score int) (AdvanceResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		return AdvanceResult{}, errors.NotLoggedIn(username)
	}

	return r.advanceLocked(e, questionIdx, code, score), nil
}

// AutoAdvance is the timer path: it applies the same transition as Advance,
// with the last saved code snapshot and a score of 0, but only if the
// session still sits on questionIdx. A stale firing reports applied=false
// and changes nothing.
func (r *Registry) AutoAdvance(username string, questionIdx int) (AdvanceResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok || e.session.Finished || e.session.CurrentQuestion != questionIdx {
		return AdvanceResult{}, false
	}

	return r.advanceLocked(e, questionIdx, e.session.CurrentCode, 0), true
}

func (r *Registry) advanceLocked(e *entry, questionIdx int, code string, score int) AdvanceResult {
	score = r.clamp(score)

	e.session.Answers[questionIdx] = domain.Answer{Code: code, Score: score}
	e.session.TotalScore += score
	e.session.CurrentQuestion++
	e.session.QuestionStartTime = r.clock()
	e.session.CurrentCode = ""
	e.session.CurrentScore = 0

	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}

	return AdvanceResult{
		CurrentQuestion: e.session.CurrentQuestion,
		TotalScore:      e.session.TotalScore,
	}
}

// AttachTimer stores the auto-submit timer handle for the session, stopping
// any previous one. The handle is stopped again when the session advances.
func (r *Registry) AttachTimer(username string, t *time.Timer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		t.Stop()
		return
	}

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = t
}

// Summary is the frozen outcome of a finished run.
type Summary struct {
	Username   string
	TotalScore int
	Duration   time.Duration

	// First is true only for the call that completed the run.
	First bool
}

// Complete marks the session finished and freezes its duration. The first
// call reports First=true; repeated calls return the same frozen summary.
func (r *Registry) Complete(username string) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[username]
	if !ok {
		return Summary{}, errors.NotLoggedIn(username)
	}

	first := !e.session.Finished
	if first {
		e.session.Finished = true
		e.session.Duration = r.clock().Sub(e.session.StartTime)

		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}

	return Summary{
		Username:   username,
		TotalScore: e.session.TotalScore,
		Duration:   e.session.Duration,
		First:      first,
	}, nil
}

func (r *Registry) clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > r.maxScore {
		return r.maxScore
	}
	return score
}

func snapshot(e *entry) domain.Session {
	s := e.session
	s.Answers = make(map[int]domain.Answer, len(e.session.Answers))
	for k, v := range e.session.Answers {
		s.Answers[k] = v
	}
	return s
}
