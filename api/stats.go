package api

import (
	"net/http"
)

type statsResponse struct {
	Connections int   `json:"connections"`
	Sessions    int   `json:"sessions"`
	Pending     int64 `json:"pending"`
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		Connections: h.config.Registry.Len(),
	}
	if h.config.Hub != nil {
		resp.Sessions = h.config.Hub.Open()
	}

	if h.config.Tracker != nil {
		pending, err := h.config.Tracker.Pending(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Pending = pending
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.config.Store != nil {
		if err := h.config.Store.Ping(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
