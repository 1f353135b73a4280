// Package server exposes the engine over HTTP: a reverse proxy whose transport
// is the Worker, plus /_sw control endpoints that turn platform events into
// Worker calls.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	offline "github.com/PKTonmoy/cochin-sub004"
	"github.com/PKTonmoy/cochin-sub004/clients"
)

const maxControlBody = 1 << 20

type Config struct {
	Worker   *offline.Worker
	Hub      *clients.Hub
	Upstream *url.URL
	// Metrics is mounted at /metrics when set.
	Metrics  http.Handler
	Logger   *slog.Logger
}

type handler struct {
	worker *offline.Worker
	hub    *clients.Hub
	logger *slog.Logger
}

// New builds the proxy router.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	h := &handler{worker: cfg.Worker, hub: cfg.Hub, logger: logger}

	upstream := cfg.Upstream
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		Transport: cfg.Worker,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WarnContext(r.Context(), "upstream request failed", "method", r.Method, "path", r.URL.Path, "error", err)
			w.WriteHeader(http.StatusBadGateway)
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/_sw", func(sr chi.Router) {
		sr.Post("/install", h.install)
		sr.Post("/activate", h.activate)
		sr.Post("/sync", h.sync)
		sr.Post("/message", h.message)
		sr.Post("/push", h.push)
		sr.Post("/notificationclick", h.notificationClick)
		sr.Get("/status", h.status)
		sr.Get("/notifications", h.notifications)
		sr.Get("/clients/events", h.events)
		sr.Get("/clients/opens", h.pendingOpens)
		sr.Post("/clients/{id}/url", h.clientURL)
	})

	r.Handle("/*", proxy)
	return r
}

func (h *handler) install(w http.ResponseWriter, r *http.Request) {
	if err := h.worker.OnInstall(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "install failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) activate(w http.ResponseWriter, r *http.Request) {
	res, err := h.worker.OnActivate(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": res.Deleted,
		"stamp":   res.Stamp,
	})
}

func (h *handler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.worker.OnSync(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"count":  res.Attempted,
		"synced": res.Synced,
	})
}

func (h *handler) message(w http.ResponseWriter, r *http.Request) {
	var m offline.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxControlBody)).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var from offline.Client
	if id := r.URL.Query().Get("client"); id != "" {
		c, ok := h.hub.Get(id)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("unknown client"))
			return
		}
		from = c
	}

	if err := h.worker.OnMessage(r.Context(), from, m); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) push(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxControlBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	n, err := h.worker.OnPush(r.Context(), raw)
	if err != nil {
		h.logger.WarnContext(r.Context(), "push handling failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *handler) notificationClick(w http.ResponseWriter, r *http.Request) {
	var click offline.NotificationClick
	if err := json.NewDecoder(io.LimitReader(r.Body, maxControlBody)).Decode(&click); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	outcome, err := h.worker.OnNotificationClick(r.Context(), click)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	st, err := h.worker.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) notifications(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.Notifications())
}

func (h *handler) pendingOpens(w http.ResponseWriter, _ *http.Request) {
	opens := h.hub.PendingOpens()
	if opens == nil {
		opens = []string{}
	}
	writeJSON(w, http.StatusOK, opens)
}

func (h *handler) clientURL(w http.ResponseWriter, r *http.Request) {
	c, ok := h.hub.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown client"))
		return
	}
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxControlBody)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.SetURL(body.URL)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "message": err.Error()})
}
