package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "error without underlying error",
			err:  New(ErrCodeInvalidInput, "test message", http.StatusBadRequest),
			want: "[VAL_3002] test message",
		},
		{
			name: "error with underlying error",
			err:  Wrap(ErrCodeInternal, "test message", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] test message: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}
}

func TestServiceError_WithDetails(t *testing.T) {
	err := New(ErrCodeInvalidInput, "test", http.StatusBadRequest)
	err.WithDetails("field", "method").WithDetails("reason", "missing")

	if len(err.Details) != 2 {
		t.Errorf("Details length = %d, want 2", len(err.Details))
	}

	if err.Details["field"] != "method" {
		t.Errorf("Details[field] = %v, want method", err.Details["field"])
	}

	if err.Details["reason"] != "missing" {
		t.Errorf("Details[reason] = %v, want missing", err.Details["reason"])
	}
}

func TestInvalidConfig(t *testing.T) {
	err := InvalidConfig("routes must not be empty")

	if err.Code != ErrCodeInvalidConfig {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
	}
	if err.Details["reason"] != "routes must not be empty" {
		t.Errorf("Details[reason] = %v, want routes must not be empty", err.Details["reason"])
	}
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("method", "invalid format")

	if err.Code != ErrCodeInvalidInput {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidInput)
	}

	if err.HTTPStatus != http.StatusBadRequest {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadRequest)
	}

	if err.Details["field"] != "method" {
		t.Errorf("Details[field] = %v, want method", err.Details["field"])
	}
}

func TestMissingParameter(t *testing.T) {
	err := MissingParameter("method")

	if err.Code != ErrCodeMissingParameter {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeMissingParameter)
	}

	if err.Details["parameter"] != "method" {
		t.Errorf("Details[parameter] = %v, want method", err.Details["parameter"])
	}
}

func TestNotFound(t *testing.T) {
	err := NotFound("route", "heavy")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusNotFound)
	}

	if err.Details["resource"] != "route" {
		t.Errorf("Details[resource] = %v, want route", err.Details["resource"])
	}

	if err.Details["id"] != "heavy" {
		t.Errorf("Details[id] = %v, want heavy", err.Details["id"])
	}
}

func TestConflict(t *testing.T) {
	err := Conflict("route already bound")

	if err.Code != ErrCodeConflict {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeConflict)
	}

	if err.HTTPStatus != http.StatusConflict {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusConflict)
	}

	if err.Message != "route already bound" {
		t.Errorf("Message = %v, want route already bound", err.Message)
	}
}

func TestInternal(t *testing.T) {
	underlying := errors.New("unexpected nil pool")
	err := Internal("internal error", underlying)

	if err.Code != ErrCodeInternal {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInternal)
	}

	if err.HTTPStatus != http.StatusInternalServerError {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusInternalServerError)
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestBadGateway(t *testing.T) {
	underlying := errors.New("dial tcp: connection refused")
	err := BadGateway("endpoint-0", underlying)

	if err.Code != ErrCodeBadGateway {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeBadGateway)
	}

	if err.HTTPStatus != http.StatusBadGateway {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusBadGateway)
	}

	if err.Details["endpoint"] != "endpoint-0" {
		t.Errorf("Details[endpoint] = %v, want endpoint-0", err.Details["endpoint"])
	}

	if err.Err != underlying {
		t.Errorf("Err = %v, want %v", err.Err, underlying)
	}
}

func TestTimeout(t *testing.T) {
	err := Timeout("upstream forward")

	if err.Code != ErrCodeTimeout {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeTimeout)
	}

	if err.HTTPStatus != http.StatusGatewayTimeout {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusGatewayTimeout)
	}

	if err.Details["operation"] != "upstream forward" {
		t.Errorf("Details[operation] = %v, want upstream forward", err.Details["operation"])
	}
}

func TestUnavailable(t *testing.T) {
	err := Unavailable("no route matched")

	if err.Code != ErrCodeUnavailable {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeUnavailable)
	}

	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("HTTPStatus = %d, want %d", err.HTTPStatus, http.StatusServiceUnavailable)
	}
}

func TestIsServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "service error",
			err:  New(ErrCodeInternal, "test", http.StatusInternalServerError),
			want: true,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsServiceError(tt.err); got != tt.want {
				t.Errorf("IsServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetServiceError(t *testing.T) {
	serviceErr := New(ErrCodeInternal, "test", http.StatusInternalServerError)
	standardErr := errors.New("standard error")

	tests := []struct {
		name string
		err  error
		want *ServiceError
	}{
		{
			name: "service error",
			err:  serviceErr,
			want: serviceErr,
		},
		{
			name: "standard error",
			err:  standardErr,
			want: nil,
		},
		{
			name: "nil error",
			err:  nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GetServiceError(tt.err)
			if got != tt.want {
				t.Errorf("GetServiceError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{
			name: "service error",
			err:  New(ErrCodeBadGateway, "test", http.StatusBadGateway),
			want: http.StatusBadGateway,
		},
		{
			name: "standard error",
			err:  errors.New("standard error"),
			want: http.StatusInternalServerError,
		},
		{
			name: "nil error",
			err:  nil,
			want: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetHTTPStatus(tt.err); got != tt.want {
				t.Errorf("GetHTTPStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
