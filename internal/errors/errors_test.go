package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "report 7 not found"},
			want: "report 7 not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeUnavailable,
				Message: "job store unavailable",
				Cause:   errors.New("dial tcp: connection refused"),
			},
			want: "job store unavailable: dial tcp: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Unavailable("status cache unreachable", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Unavailable(...), cause) = false, want true")
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		wantCode ErrorCode
		wantMsg  string
	}{
		{"NotFound", NotFound("missing"), ErrCodeNotFound, "missing"},
		{"NotFoundf", NotFoundf("report %d not found", 42), ErrCodeNotFound, "report 42 not found"},
		{"Conflict", Conflict("already dispatched"), ErrCodeConflict, "already dispatched"},
		{"Conflictf", Conflictf("job is %s", "COMPLETED"), ErrCodeConflict, "job is COMPLETED"},
		{"Validation", Validation("bad"), ErrCodeValidation, "bad"},
		{"Validationf", Validationf("limit %d too large", 5000), ErrCodeValidation, "limit 5000 too large"},
		{"Internal", Internal("boom"), ErrCodeInternal, "boom"},
		{"Internalf", Internalf("boom %s", "again"), ErrCodeInternal, "boom again"},
		{"literal percent", Validation("100% wrong"), ErrCodeValidation, "100% wrong"},
		{"verbs kept verbatim", NotFound("report %d gone"), ErrCodeNotFound, "report %d gone"},
		{"conflict verbatim", Conflict("status %s"), ErrCodeConflict, "status %s"},
		{"internal verbatim", Internal("50%"), ErrCodeInternal, "50%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
			}
			if tt.err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.wantMsg)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("name", "name is required")
	if err.Code != ErrCodeValidation {
		t.Errorf("ValidationField().Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if GetField(err) != "name" {
		t.Errorf("GetField() = %q, want %q", GetField(err), "name")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, ErrCodeInternal, "ignored") != nil {
		t.Errorf("Wrap(nil) should return nil")
	}
	if Wrapf(nil, ErrCodeInternal, "ignored %d", 1) != nil {
		t.Errorf("Wrapf(nil) should return nil")
	}

	cause := errors.New("boom")
	wrapped := Wrapf(cause, ErrCodeUnavailable, "load report %d", 9)
	if wrapped.Message != "load report 9" {
		t.Errorf("Wrapf().Message = %q", wrapped.Message)
	}
	if !errors.Is(wrapped, cause) {
		t.Errorf("Wrapf() should preserve cause")
	}
}

func TestPredicates_ThroughFmtWrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		pred func(error) bool
	}{
		{"not found", NotFound("x"), IsNotFound},
		{"conflict", Conflict("x"), IsConflict},
		{"validation", Validation("x"), IsValidation},
		{"unavailable", Unavailable("x", nil), IsUnavailable},
		{"internal", Internal("x"), IsInternal},
		{"timeout", &AppError{Code: ErrCodeTimeout}, IsTimeout},
		{"canceled", &AppError{Code: ErrCodeCanceled}, IsCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !tt.pred(wrapped) {
				t.Errorf("predicate should match wrapped %s error", tt.name)
			}
			if tt.pred(errors.New("plain")) {
				t.Errorf("predicate should not match a plain error")
			}
		})
	}
}

func TestGetCode_NonAppError(t *testing.T) {
	if code := GetCode(errors.New("plain")); code != "" {
		t.Errorf("GetCode(plain) = %q, want empty", code)
	}
	if field := GetField(errors.New("plain")); field != "" {
		t.Errorf("GetField(plain) = %q, want empty", field)
	}
}
