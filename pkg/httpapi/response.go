package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"net/http"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantguard/pkg/requestid"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Data  any            `json:"data,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
	Error *ErrorDetail   `json:"error,omitempty"`
}

type ErrorDetail struct {
	Code      string              `json:"code"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id,omitempty"`
	Details   map[string][]string `json:"details,omitempty"`
}

// JSON writes v as the data of an Envelope.
func JSON(w http.ResponseWriter, status int, v any) {
	write(w, status, Envelope{Data: v})
}

// JSONWithMeta writes v with response metadata such as paging.
func JSONWithMeta(w http.ResponseWriter, status int, v any, meta map[string]any) {
	write(w, status, Envelope{Data: v, Meta: meta})
}

// Classify maps err to a status and detail. Unknown errors become a generic
// 500 so internal messages never reach the client. Rows hidden by tenant
// isolation are indistinguishable from rows that do not exist.
func Classify(err error) (int, *ErrorDetail) {
	var (
		httpErr HTTPError
		valErr  ValidationError
	)
	switch {
	case errors.As(err, &valErr):
		d := &ErrorDetail{Code: "validation_error", Message: "request validation failed"}
		if len(valErr) > 0 {
			d.Details = make(map[string][]string, len(valErr))
			maps.Copy(d.Details, valErr)
		}
		return http.StatusUnprocessableEntity, d
	case errors.As(err, &httpErr):
		return httpErr.Code, &ErrorDetail{Code: httpErr.Key, Message: http.StatusText(httpErr.Code)}
	case errors.Is(err, ErrInvalidJSON), errors.Is(err, ErrMissingContentType):
		return http.StatusBadRequest, &ErrorDetail{Code: "invalid_json", Message: "request body is not valid JSON"}
	case errors.Is(err, tenant.ErrUnauthenticated):
		return http.StatusUnauthorized, &ErrorDetail{Code: "unauthorized", Message: "missing or invalid credentials"}
	case errors.Is(err, tenant.ErrMissingContext), errors.Is(err, tenant.ErrContextMismatch):
		return http.StatusForbidden, &ErrorDetail{Code: "forbidden", Message: "operation not permitted for this tenant"}
	case errors.Is(err, tenant.ErrInvalidID):
		return http.StatusBadRequest, &ErrorDetail{Code: "invalid_tenant", Message: "tenant identifier is invalid"}
	case errors.Is(err, dbsession.ErrNotFound):
		return http.StatusNotFound, &ErrorDetail{Code: "not_found", Message: "resource not found"}
	case errors.Is(err, ratelimiter.ErrLimitExceeded):
		return http.StatusTooManyRequests, &ErrorDetail{Code: "rate_limited", Message: "request quota exceeded, retry later"}
	case errors.Is(err, dbsession.ErrSessionBinding), errors.Is(err, ratelimiter.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, &ErrorDetail{Code: "service_unavailable", Message: "storage is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, &ErrorDetail{Code: "internal_error", Message: "internal server error"}
	}
}

// Error writes the classified error. 5xx responses are logged with the cause.
func Error(log *slog.Logger) func(w http.ResponseWriter, r *http.Request, err error) {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request, err error) {
		status, detail := Classify(err)
		detail.RequestID = requestid.FromContext(r.Context())
		if status >= http.StatusInternalServerError {
			log.ErrorContext(r.Context(), "request failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				logger.Error(err))
		} else {
			log.DebugContext(r.Context(), "request rejected",
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				logger.Error(err))
		}
		write(w, status, Envelope{Error: detail})
	}
}

func write(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
