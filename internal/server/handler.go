package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/ahmethakanbesel/stockdash/internal/apperror"
	"github.com/ahmethakanbesel/stockdash/internal/job"
	"github.com/ahmethakanbesel/stockdash/internal/price"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/tmaxmax/go-sse"
)

const (
	dateFormat    = "2006-01-02"
	healthTimeout = 2 * time.Second
	wsWriteWait   = 2 * time.Second
	wsPongWait    = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type handler struct {
	prices    *price.Service
	launcher  *job.Launcher
	publisher *job.Publisher
	redis     *redis.Client
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "true" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{"status": "ok", "database": "ok"}
	healthy := true
	if err := h.prices.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		healthy = false
	}
	if h.redis != nil {
		checks["redis"] = "ok"
		if err := h.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	if !healthy {
		checks["status"] = "degraded"
		writeEnvelope(w, http.StatusServiceUnavailable, "dependency check failed", checks)
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

func (h *handler) launchImport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeImportRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.launcher.Launch(req)
	if err != nil {
		if apperror.Is(err, apperror.Conflict) {
			slog.Debug("import already running", "job", status.JobID, "ticker", status.Ticker)
		} else {
			slog.Warn("import rejected", "ticker", req.Ticker, "period", req.Period, "error", err)
		}
		if ae, ok := apperror.As(err); ok {
			writeEnvelope(w, ae.HTTPStatus(), ae.Message(), status)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeEnvelope(w, http.StatusAccepted, "import started", status)
}

// decodeImportRequest accepts a JSON body or form values. An omitted period
// means the recent window.
func decodeImportRequest(r *http.Request) (job.ImportRequest, error) {
	var req job.ImportRequest

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			return req, fmt.Errorf("invalid JSON body: %w", err)
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("invalid form body: %w", err)
		}
		req.Ticker = r.FormValue("ticker")
		req.Period = job.Period(r.FormValue("period"))
	}

	if strings.TrimSpace(string(req.Period)) == "" {
		req.Period = job.PeriodRecent
	}
	return req, nil
}

func (h *handler) importStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.publisher.Snapshot())
}

// streamImport serves the status as server-sent events until the client
// goes away.
func (h *handler) streamImport(w http.ResponseWriter, r *http.Request) {
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("X-Accel-Buffering", "no")

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	emit := func(st job.Status) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		msg := &sse.Message{}
		msg.AppendData(string(data))
		if err := sess.Send(msg); err != nil {
			return err
		}
		return sess.Flush()
	}
	keepAlive := func() error {
		msg := &sse.Message{}
		msg.AppendComment("keep-alive")
		if err := sess.Send(msg); err != nil {
			return err
		}
		return sess.Flush()
	}

	if err := h.publisher.Stream(r.Context(), emit, keepAlive); err != nil {
		slog.Debug("status stream closed", "error", err, "requestID", r.Context().Value(requestIDKey))
	}
}

// watchImport is the websocket flavour of streamImport: one JSON text
// message per change and a ping when idle.
func (h *handler) watchImport(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients never send anything meaningful; reading only detects the close.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	emit := func(st job.Status) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(st)
	}
	ping := func() error {
		return conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
	}

	if err := h.publisher.Stream(ctx, emit, ping); err != nil {
		slog.Debug("status websocket closed", "error", err)
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(wsWriteWait))
}

func (h *handler) listSecurities(w http.ResponseWriter, r *http.Request) {
	secs, err := h.prices.ListSecurities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if secs == nil {
		secs = []price.Security{}
	}
	writeJSON(w, http.StatusOK, secs)
}

func (h *handler) getPrices(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(r.PathValue("ticker"))

	var startDate, endDate time.Time
	var err error
	if v := r.URL.Query().Get("startDate"); v != "" {
		startDate, err = time.Parse(dateFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate format, expected YYYY-MM-DD")
			return
		}
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		endDate, err = time.Parse(dateFormat, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate format, expected YYYY-MM-DD")
			return
		}
	}

	format := r.URL.Query().Get("format")

	req := price.GetPricesRequest{
		Ticker:    ticker,
		StartDate: startDate,
		EndDate:   endDate,
		Format:    format,
	}

	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	resp, err := h.prices.GetPrices(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if format == "csv" {
		writeCSV(w, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
