package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dpatel76/SynapseDTE2-sub001/modules/scoping/domain/types"
	"github.com/dpatel76/SynapseDTE2-sub001/pkg/httperr"
)

type errorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    errorEnvelopeMeta `json:"meta"`
}

type errorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Code:    code,
		Message: message,
		TraceID: traceIDFromRequest(r),
		Meta: errorEnvelopeMeta{
			Path:   r.URL.Path,
			Method: r.Method,
		},
	})
}

// writeWorkflowError maps domain sentinels onto stable response codes.
// Rule violations answer 422 so clients can branch without parsing text,
// lost CAS races answer 409, missing entities 404.
func writeWorkflowError(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := stableWorkflowMessage(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrTransitionConflict):
		status = http.StatusConflict
	case errors.Is(err, types.ErrVersionNotFound),
		errors.Is(err, types.ErrItemNotFound),
		errors.Is(err, types.ErrScopeNotFound):
		status = http.StatusNotFound
	case isStableWorkflowCode(code):
		status = http.StatusUnprocessableEntity
	}
	if httperr.IsBadRequest(err) || isPgInvalidInput(err) {
		status = http.StatusBadRequest
	}
	if httperr.IsConflict(err) {
		status = http.StatusConflict
	}
	writeError(w, r, status, code, message)
}

func isStableWorkflowCode(code string) bool {
	return strings.HasPrefix(code, "SCOPING_")
}

func stableWorkflowMessage(err error) string {
	if err == nil {
		return "UNKNOWN"
	}
	if msg := err.Error(); isStableWorkflowCode(msg) {
		return msg
	}
	if msg := pgErrorMessage(err); isStableWorkflowCode(msg) {
		return msg
	}
	return err.Error()
}

func pgErrorMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		msg := strings.TrimSpace(pgErr.Message)
		if msg != "" {
			return msg
		}
	}
	return "UNKNOWN"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return strings.TrimSpace(pgErr.Code)
	}
	return ""
}

func isPgInvalidInput(err error) bool {
	switch pgErrorCode(err) {
	case "22P02", "22003", "22007", "22008":
		return true
	default:
		return false
	}
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
