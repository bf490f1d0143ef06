package orchestrator

import (
	"sync"
	"time"

	"BloomPull/internal/domain/models"

	"github.com/google/uuid"
)

// JobState is the per-(source, scope) state machine:
// Idle → Running → {Succeeded, PartialFailure, Failed} → Idle.
type JobState string

const (
	StateIdle           JobState = "idle"
	StateRunning        JobState = "running"
	StateSucceeded      JobState = "succeeded"
	StatePartialFailure JobState = "partial_failure"
	StateFailed         JobState = "failed"
)

// Job is one ingestion unit of work. The same scope key maps to the same
// in-flight job, so concurrent refresh requests share a handle instead of
// duplicating work.
type Job struct {
	ID    string
	Scope models.Scope

	mu         sync.Mutex
	state      JobState
	attempts   int
	err        string
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
}

func newJob(scope models.Scope) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Scope:     scope,
		state:     StateIdle,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}
}

func (j *Job) setRunning() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateRunning
	if j.startedAt.IsZero() {
		j.startedAt = time.Now().UTC()
	}
	j.attempts++
}

func (j *Job) finish(state JobState, errDetail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	j.err = errDetail
	j.finishedAt = time.Now().UTC()
	close(j.done)
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// View is the externally visible job snapshot, returned as the refresh
// handle on the API surface.
type View struct {
	ID         string    `json:"id"`
	ScopeKey   string    `json:"scope_key"`
	Source     string    `json:"source"`
	State      JobState  `json:"state"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func (j *Job) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()
	return View{
		ID:         j.ID,
		ScopeKey:   j.Scope.Key(),
		Source:     string(j.Scope.Source),
		State:      j.state,
		Attempts:   j.attempts,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
		Error:      j.err,
	}
}
