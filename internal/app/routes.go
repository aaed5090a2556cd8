package app

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/ioanna/internal/health"
	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/pkg/types"
)

// routes builds the HTTP handler shared by the UI, the probes and the MCP
// server.
func (a *App) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.readiness()...).Register(mux)

	mux.HandleFunc("GET /v1/frame", a.handleFrame)
	mux.HandleFunc("GET /v1/history", a.handleHistory)
	mux.HandleFunc("GET /v1/session", a.handleSession)
	mux.HandleFunc("POST /v1/session/stop", a.handleStop)
	mux.Handle("GET "+a.cfg.Events.WebSocketPath, a.hub)

	if a.memoryMCP != nil {
		mux.Handle(a.cfg.MCP.Path, a.memoryMCP.Handler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// handleFrame serves the latest camera frame as-is.
func (a *App) handleFrame(w http.ResponseWriter, _ *http.Request) {
	f, ok := a.frames.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no camera frame yet")
		return
	}
	ct := f.ContentType
	if ct == "" {
		ct = "image/jpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Image)))
	if _, err := w.Write(f.Image); err != nil {
		slog.Debug("app: writing frame failed", "err", err)
	}
}

// historyResponse is the body of GET /v1/history.
type historyResponse struct {
	SessionID string          `json:"session_id,omitempty"`
	Messages  []types.Message `json:"messages"`
}

func (a *App) handleHistory(w http.ResponseWriter, _ *http.Request) {
	res := historyResponse{Messages: a.sessions.History()}
	if info, ok := a.sessions.Info(); ok {
		res.SessionID = info.SessionID
	}
	if res.Messages == nil {
		res.Messages = []types.Message{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleSession(w http.ResponseWriter, _ *http.Request) {
	info, ok := a.sessions.Info()
	if !ok {
		writeError(w, http.StatusNotFound, ErrNoActiveSession.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := a.sessions.Stop(); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNoActiveSession) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
