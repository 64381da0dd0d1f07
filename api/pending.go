package api

import (
	"errors"
	"net/http"

	"github.com/xraph/chatrelay/pending"
)

// getPending reports whether a submission is still awaiting its
// confirmation.
func (h *Handler) getPending(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if h.config.Tracker == nil {
		writeError(w, http.StatusNotFound, pending.ErrNotFound.Error())
		return
	}

	e, err := h.config.Tracker.Lookup(r.Context(), uid)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}
