package api

import (
	"net/http"
)

// serveSocket upgrades the request and runs the session protocol on it
// until the channel ends.
func (h *Handler) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.config.Upgrader.Upgrade(w, r)
	if err != nil {
		// The upgrader has already replied.
		h.logger.Warn("socket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	h.config.Hub.Serve(r.Context(), conn)
	conn.Wait()
}
