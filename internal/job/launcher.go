package job

import (
	"log/slog"
	"strings"

	"github.com/ahmethakanbesel/stockdash/internal/apperror"
	"github.com/google/uuid"
)

type submitter interface {
	Submit(run Run) bool
}

// Launcher validates import requests and starts them on the Worker.
type Launcher struct {
	register *Register
	worker   submitter
	newID    func() string
}

func NewLauncher(register *Register, worker *Worker) *Launcher {
	return &Launcher{
		register: register,
		worker:   worker,
		newID:    uuid.NewString,
	}
}

// Launch starts a run and returns the status right after the reset.
// It never waits for the run itself.
func (l *Launcher) Launch(req ImportRequest) (Status, error) {
	req.Ticker = strings.ToUpper(strings.TrimSpace(req.Ticker))
	req.Period = Period(strings.ToLower(strings.TrimSpace(string(req.Period))))

	id := l.newID()
	status, ok := l.register.TryStart(req, id)
	if !ok {
		return status, apperror.New(apperror.Conflict, "an import job is already running")
	}

	if appErr := req.Validate(); appErr != nil {
		return l.reject(appErr.Message()), appErr
	}

	if !l.worker.Submit(Run{ID: id, Request: req}) {
		return l.reject("Import worker is unavailable"), apperror.New(apperror.Unavailable, "import worker is unavailable")
	}

	slog.Info("import launched", "job", id, "ticker", req.Ticker, "period", req.Period)
	return status, nil
}

func (l *Launcher) reject(msg string) Status {
	return l.register.Update(Update{
		Message: msg,
		Task:    TaskError,
		Error:   ptr(true),
		Running: ptr(false),
		Log:     msg,
	})
}

func ptr[T any](v T) *T { return &v }
