package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	cause := stderrors.New("boom")

	tests := []struct {
		err    *AppError
		status int
		msg    string
	}{
		{Unauthorized(cause), http.StatusUnauthorized, MsgUnauthorized},
		{Conflict(MsgMovieExists, nil), http.StatusConflict, MsgMovieExists},
		{StoreError(cause), http.StatusInternalServerError, MsgDatabaseError},
		{BlobError(cause), http.StatusInternalServerError, MsgStorageError},
		{NotFound(nil), http.StatusNotFound, MsgNotFound},
		{BadRequest(MsgInvalidBody), http.StatusBadRequest, MsgInvalidBody},
		{NewAppError("UNKNOWN", "x", nil), http.StatusInternalServerError, "x"},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Code), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatus())
			assert.Equal(t, tt.msg, tt.err.ToErrorResponse().Error)
		})
	}
}

func TestAsAndHasCode(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	wrapped := fmt.Errorf("find user: %w", StoreError(cause))

	appErr, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeStoreError, appErr.Code)
	assert.True(t, HasCode(wrapped, CodeStoreError))
	assert.False(t, HasCode(wrapped, CodeUnauthorized))
	assert.ErrorIs(t, wrapped, cause)

	_, ok = As(cause)
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, StoreError(nil).IsRetryable())
	assert.True(t, BlobError(nil).IsRetryable())
	assert.False(t, Unauthorized(nil).IsRetryable())
}

func TestRespond(t *testing.T) {
	app := fiber.New()
	app.Get("/unauthorized", func(c *fiber.Ctx) error {
		return Respond(c, Unauthorized(stderrors.New("token mismatch")))
	})
	app.Get("/plain", func(c *fiber.Ctx) error {
		return Respond(c, stderrors.New("boom"))
	})

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/unauthorized", http.StatusUnauthorized, MsgUnauthorized},
		{"/plain", http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.body, body.Error)
			assert.NotContains(t, string(raw), "token mismatch")
		})
	}
}
