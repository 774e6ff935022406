package errors_test

import (
	stderrors "errors"
	"net/http"
	"testing"

	"codequest/pkg/errors"
)

func TestErrorWrappingPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection refused")
	err := errors.Wrapf(cause, errors.DatabaseError, "get submission failed")

	if !stderrors.Is(err, cause) {
		t.Fatalf("wrapped error must match its cause with errors.Is")
	}
	if errors.GetCode(err) != errors.DatabaseError {
		t.Fatalf("expected DatabaseError, got %d", errors.GetCode(err))
	}
	if !errors.Is(err, errors.DatabaseError) {
		t.Fatalf("Is must match by code")
	}
	if errors.Is(err, errors.CacheError) {
		t.Fatalf("Is must not match a different code")
	}
}

func TestGetCodeFallsBackToInternal(t *testing.T) {
	t.Parallel()

	if errors.GetCode(stderrors.New("plain")) != errors.InternalServerError {
		t.Fatalf("plain errors must map to InternalServerError")
	}
	if errors.GetCode(nil) != errors.Success {
		t.Fatalf("nil error must map to Success")
	}
}

func TestValidationErrorDetails(t *testing.T) {
	t.Parallel()

	err := errors.ValidationError("code", "required")
	if errors.GetCode(err) != errors.ValidationFailed {
		t.Fatalf("expected ValidationFailed, got %d", errors.GetCode(err))
	}
	custom := errors.GetError(err)
	if custom.Details["field"] != "code" || custom.Details["reason"] != "required" {
		t.Fatalf("expected field/reason details, got %v", custom.Details)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.Success, http.StatusOK},
		{errors.InvalidParams, http.StatusBadRequest},
		{errors.ValidationFailed, http.StatusBadRequest},
		{errors.CodeTooLarge, http.StatusBadRequest},
		{errors.Unauthorized, http.StatusUnauthorized},
		{errors.ChallengeNotFound, http.StatusNotFound},
		{errors.SubmissionNotFound, http.StatusNotFound},
		{errors.ServiceUnavailable, http.StatusServiceUnavailable},
		{errors.SubmitInProgress, http.StatusTooManyRequests},
		{errors.DatabaseError, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %d: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
