package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/target/mmk-reports-api/internal/errors"
	"github.com/target/mmk-reports-api/internal/service/workerpool"
)

// Error codes returned in the "error" field of JSON error bodies.
const (
	ErrCodeReportNotFound      = "report_not_found"
	ErrCodeInvalidRequest      = "invalid_request"
	ErrCodeInvalidID           = "invalid_id"
	ErrCodeNotDispatchable     = "report_not_dispatchable"
	ErrCodeStoreUnavailable    = "store_unavailable"
	ErrCodeDispatchUnavailable = "dispatch_unavailable"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternal            = "internal_error"
)

// writeServiceError maps a service error onto a status code and JSON error body.
// Internal details of unavailable or unexpected failures are logged, not returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logger.ErrorContext(r.Context(), "unhandled service error", "error", err, "path", r.URL.Path)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: ErrCodeInternal, Err: errors.New("internal server error")})
		return
	}

	msg := errors.New(appErr.Message)
	switch appErr.Code {
	case apperrors.ErrCodeNotFound:
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: ErrCodeReportNotFound, Err: msg})
	case apperrors.ErrCodeValidation:
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: ErrCodeInvalidRequest, Err: msg, Field: appErr.Field})
	case apperrors.ErrCodeConflict:
		WriteError(w, ErrorParams{Code: http.StatusConflict, ErrCode: ErrCodeNotDispatchable, Err: msg})
	case apperrors.ErrCodeUnavailable, apperrors.ErrCodeTimeout, apperrors.ErrCodeCanceled:
		code := ErrCodeStoreUnavailable
		if isCapacityError(err) {
			code = ErrCodeDispatchUnavailable
		}
		logger.WarnContext(r.Context(), "dependency unavailable", "error", err, "path", r.URL.Path)
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: code, Err: msg})
	default:
		logger.ErrorContext(r.Context(), "internal service error", "error", err, "path", r.URL.Path)
		WriteError(w, ErrorParams{Code: http.StatusInternalServerError, ErrCode: ErrCodeInternal, Err: errors.New("internal server error")})
	}
}

func isCapacityError(err error) bool {
	return errors.Is(err, workerpool.ErrQueueFull) ||
		errors.Is(err, workerpool.ErrPoolClosed) ||
		errors.Is(err, workerpool.ErrPoolNotStarted)
}
