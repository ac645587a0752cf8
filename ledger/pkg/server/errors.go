package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/malbeclabs/racevault/ledger/pkg/store/dberror"
	"github.com/malbeclabs/racevault/ledger/pkg/vault"
)

type errorResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusOf maps a ledger error onto an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrVaultNotFound), errors.Is(err, vault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, vault.ErrUnauthorized):
		return http.StatusForbidden
	case vault.KindOf(err) == vault.KindInternal && dberror.IsTransient(err):
		return http.StatusServiceUnavailable
	}
	switch vault.KindOf(err) {
	case vault.KindValidation:
		return http.StatusBadRequest
	case vault.KindState:
		return http.StatusConflict
	case vault.KindArithmetic:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	code := vault.Code(err)
	if errors.Is(err, errBadRequest) {
		code = "bad_request"
	}

	resp := errorResponse{Error: code, Message: err.Error()}
	if status == http.StatusServiceUnavailable {
		s.log.Warn("server: store unavailable", "method", r.Method, "path", r.URL.Path, "error", err, "class", dberror.Classify(err).String())
		w.Header().Set("Retry-After", "1")
		resp.Error = "store_unavailable"
		resp.Message = dberror.UserMessage(err)
		resp.RetryAfter = 1
		writeJSON(w, status, resp)
		return
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("server: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
		// Internal details stay in the logs.
		resp.Message = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
