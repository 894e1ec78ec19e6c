package web

// errors.go turns errors into HTTP responses.
//
// The technical error is logged with the request id; the client gets the
// mapped core.UserMessage, as JSON on /api routes and as a small HTML page
// elsewhere.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetjson/internal/core"
	"github.com/JonMunkholm/sheetjson/internal/logging"
	"github.com/JonMunkholm/sheetjson/internal/web/templates"
)

// ErrorResponse is the JSON body of an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

func newErrorResponse(msg core.UserMessage) ErrorResponse {
	return ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code}
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var pe *paramError
	switch {
	case errors.As(err, &pe), core.IsConfiguration(err):
		return http.StatusBadRequest
	case errors.Is(err, errHistoryDisabled), core.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyFetches):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	}

	var he *core.HookError
	if errors.As(err, &he) {
		return http.StatusUnprocessableEntity
	}
	if core.IsTransport(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes the mapped user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= 500 {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request failed", attrs...)
	}

	if errors.Is(err, core.ErrTooManyFetches) {
		w.Header().Set("Retry-After", "5")
	}

	if wantsJSON(r) {
		writeJSONStatus(w, status, newErrorResponse(msg))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := templates.ErrorPage(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		log.Error("render error page", "error", err)
	}
}

// wantsJSON reports whether the client should get a JSON body.
func wantsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v. Encoding errors are logged since headers are
// already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}
