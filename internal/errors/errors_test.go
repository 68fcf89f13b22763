package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeAlreadyExists, http.StatusConflict},
		{CodeConflict, http.StatusConflict},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeForbidden, http.StatusForbidden},
		{CodeValidation, http.StatusBadRequest},
		{CodeSubscriptionRejected, http.StatusBadRequest},
		{CodeUnsupported, http.StatusNotImplemented},
		{CodeTooManyRequests, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestError_IsMatchesByCode(t *testing.T) {
	err := SubscriptionRejected("room_id must be a string")

	assert.True(t, Is(err, ErrSubscriptionRejected))
	assert.False(t, Is(err, ErrValidation))

	wrapped := fmt.Errorf("subscribe: %w", err)
	assert.True(t, Is(wrapped, ErrSubscriptionRejected))
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := New("disk full")
	err := Wrap(cause, CodeInternal, "save room")

	assert.Equal(t, "save room: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestError_WithDetails(t *testing.T) {
	base := Validation("validation failed")
	detailed := base.WithDetails(map[string]string{"name": "is required"})

	assert.Nil(t, base.Details)
	assert.Equal(t, map[string]string{"name": "is required"}, detailed.Details)
	assert.Equal(t, CodeValidation, detailed.Code)
}
