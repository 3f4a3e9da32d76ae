package job

import (
	"encoding/json"
	"time"
)

// Task is the short phase label shown next to the progress bar.
type Task string

const (
	TaskIdle       Task = "Idle"
	TaskStarting   Task = "Starting"
	TaskFetching   Task = "Fetching"
	TaskProcessing Task = "Processing"
	TaskImporting  Task = "Importing"
	TaskCompleted  Task = "Completed"
	TaskError      Task = "Error"
)

// Period selects the window requested from the provider.
type Period string

const (
	PeriodRecent Period = "1y"
	PeriodLong   Period = "25y"
	PeriodLatest Period = "latest"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodRecent, PeriodLong, PeriodLatest:
		return true
	}
	return false
}

func (p Period) Label() string {
	switch p {
	case PeriodRecent:
		return "1 year"
	case PeriodLong:
		return "25 years"
	case PeriodLatest:
		return "latest quote"
	}
	return string(p)
}

// Status is the state of the current (or last) import run.
type Status struct {
	JobID       string    `json:"job_id"`
	Ticker      string    `json:"ticker"`
	Period      Period    `json:"period"`
	Running     bool      `json:"running"`
	Message     string    `json:"message"`
	Progress    int       `json:"progress"`
	CurrentTask Task      `json:"current_task"`
	Error       bool      `json:"error"`
	Log         []string  `json:"log"`
	LastUpdated time.Time `json:"-"`
}

type statusJSON struct {
	statusAlias
	LastUpdated float64 `json:"last_updated"`
}

type statusAlias Status

// MarshalJSON renders LastUpdated as fractional unix seconds.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(statusJSON{
		statusAlias: statusAlias(s),
		LastUpdated: float64(s.LastUpdated.UnixMicro()) / 1e6,
	})
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var v statusJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = Status(v.statusAlias)
	s.LastUpdated = time.UnixMicro(int64(v.LastUpdated*1e6 + 0.5)).UTC()
	return nil
}

func (s Status) clone() Status {
	cp := s
	cp.Log = make([]string, len(s.Log))
	copy(cp.Log, s.Log)
	return cp
}
