package job

import (
	"fmt"
	"sync"
	"time"
)

// Update is a partial mutation of the Register. Message and Task always
// apply; the pointer fields and Log apply only when set.
type Update struct {
	Message  string
	Task     Task
	Progress *int
	Error    *bool
	Running  *bool
	Log      string
}

// Register holds the status of the single import job a process may run.
// All reads and writes go through its mutex; callers only ever see copies.
type Register struct {
	mu      sync.Mutex
	status  Status
	changed chan struct{}
	now     func() time.Time
}

func NewRegister() *Register {
	r := &Register{
		changed: make(chan struct{}),
		now:     time.Now,
	}
	r.status = Status{
		Message:     "No import has been run yet",
		CurrentTask: TaskIdle,
		Log:         []string{},
		LastUpdated: r.now(),
	}
	return r
}

// Snapshot returns a copy of the current status.
func (r *Register) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.clone()
}

// Changed returns a channel that is closed by the next mutation. Take it
// before reading a snapshot so no update falls between the two.
func (r *Register) Changed() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// TryStart resets the status for a new run unless one is already running.
// The check and the reset happen under a single lock acquisition.
func (r *Register) TryStart(req ImportRequest, jobID string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.Running {
		return r.status.clone(), false
	}

	now := r.touch()
	r.status = Status{
		JobID:       jobID,
		Ticker:      req.Ticker,
		Period:      req.Period,
		Running:     true,
		Message:     "Initializing import...",
		Progress:    0,
		CurrentTask: TaskStarting,
		Log:         []string{stamp(now, "New import request received")},
		LastUpdated: now,
	}
	return r.status.clone(), true
}

// Update applies u and returns the resulting status.
func (r *Register) Update(u Update) Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.touch()
	s := &r.status
	s.LastUpdated = now
	s.Message = u.Message
	s.CurrentTask = u.Task

	if u.Error != nil {
		s.Error = *u.Error
	}
	if u.Running != nil {
		s.Running = *u.Running
	}
	if u.Progress != nil {
		p := clampProgress(*u.Progress)
		// Progress never goes backwards within a run.
		if !s.Running || p >= s.Progress {
			s.Progress = p
		}
	}
	if u.Running != nil && !*u.Running {
		if s.Error {
			s.Progress = 0
		} else {
			s.Progress = 100
		}
	}
	if u.Log != "" {
		s.Log = append(s.Log, stamp(now, u.Log))
	}
	return s.clone()
}

// touch returns the timestamp for a mutation and wakes every waiter on
// Changed. Timestamps strictly increase at microsecond resolution.
func (r *Register) touch() time.Time {
	now := r.now().UTC().Truncate(time.Microsecond)
	if last := r.status.LastUpdated.UTC().Truncate(time.Microsecond); !now.After(last) {
		now = last.Add(time.Microsecond)
	}
	close(r.changed)
	r.changed = make(chan struct{})
	return now
}

func stamp(t time.Time, msg string) string {
	return fmt.Sprintf("[%s] %s", t.Local().Format("15:04:05"), msg)
}

func clampProgress(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
