package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrOutOfStock,
		ErrConflict, ErrInternal, ErrServiceUnavail,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "SERVICE_FAILURE", Message: "stock lookup failed", Err: fmt.Errorf("dial tcp: refused")}
	assert.Equal(t, "SERVICE_FAILURE: stock lookup failed: dial tcp: refused", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "cart item not found"}
	assert.Equal(t, "NOT_FOUND: cart item not found", bare.Error())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("cart item", "7"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("bad body"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"invalid quantity", InvalidQuantity(0), "INVALID_QUANTITY", http.StatusBadRequest, ErrInvalidInput},
		{"out of stock", OutOfStock("7", 3, 2), "OUT_OF_STOCK", http.StatusConflict, ErrOutOfStock},
		{"conflict", Conflict("busy"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"unavailable", ServiceUnavailable("breaker open"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestOutOfStock_Message(t *testing.T) {
	err := OutOfStock("42", 3, 2)
	assert.Equal(t, "requested 3 of 42 but only 2 in stock", err.Message)
}

func TestServiceFailure_KeepsCause(t *testing.T) {
	cause := errors.New("redis: connection refused")
	err := ServiceFailure("persist cart", cause)

	require.NotNil(t, err)
	assert.Equal(t, "SERVICE_FAILURE", err.Code)
	assert.Equal(t, http.StatusBadGateway, err.Status)
	assert.Equal(t, "persist cart failed", err.Message)
	assert.ErrorIs(t, err, ErrServiceUnavail)
	assert.ErrorIs(t, err, cause)
}

func TestInternal_WrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Internal(cause)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus_PlainErrors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("lookup: %w", ErrNotFound)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(fmt.Errorf("parse: %w", ErrInvalidInput)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("add: %w", ErrOutOfStock)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(fmt.Errorf("call: %w", ErrServiceUnavail)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}
