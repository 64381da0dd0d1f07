package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/chatrelay/confirm"
	"github.com/xraph/chatrelay/envelope"
	"github.com/xraph/chatrelay/signature"
)

// errorResponse carries the acknowledgement shape plus the error reason.
type errorResponse struct {
	Status      int    `json:"status"`
	Description string `json:"description"`
	Error       string `json:"error"`
}

func (h *Handler) confirmMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "unreadable body", err)
		return
	}

	if err := h.config.Signer.VerifyRequest(r, body); err != nil {
		h.logger.WarnContext(r.Context(), "rejected unsigned confirmation", "remote", r.RemoteAddr, "error", err)
		writeFailure(w, http.StatusUnauthorized, "signature verification failed", err)
		return
	}

	t, err := h.config.Codec.DecodeTransport(body)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid transport envelope", err)
		return
	}

	ack, err := h.config.Confirm.Confirm(r.Context(), t)
	if err != nil {
		status, desc := confirmFailure(err)
		writeFailure(w, status, desc, err)
		return
	}

	writeJSON(w, ack.Status, ack)
}

// confirmFailure maps a confirmation error to a status and description.
func confirmFailure(err error) (int, string) {
	switch {
	case errors.Is(err, confirm.ErrInvalidIdentifier):
		return http.StatusBadRequest, "uid is not a valid identifier"
	case errors.Is(err, confirm.ErrUnknownRecipient):
		return http.StatusInternalServerError, "user not found in session"
	case errors.Is(err, envelope.ErrDecode):
		return http.StatusBadRequest, "invalid transport envelope"
	case errors.Is(err, signature.ErrInvalidSignature), errors.Is(err, signature.ErrSignatureExpired):
		return http.StatusUnauthorized, "signature verification failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeFailure(w http.ResponseWriter, status int, desc string, err error) {
	writeJSON(w, status, errorResponse{
		Status:      status,
		Description: desc,
		Error:       err.Error(),
	})
}
