package errkind

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(Timeout, "court lookup exceeded %ds", 20)
	assert.Equal(t, Timeout, KindOf(err))

	wrapped := fmt.Errorf("collecting: %w", err)
	assert.Equal(t, Timeout, KindOf(wrapped))

	assert.Equal(t, InternalError, KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestWrap_NilCause(t *testing.T) {
	assert.Nil(t, Wrap(Transport, nil, "ignored"))
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Transport, cause, "registry unreachable")
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, Transport))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(InvalidInput))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatus(RateLimited))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(CircuitOpen))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(InsufficientData))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(InternalError))
}
