package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-academy/backend/pkg/apperr"
)

func TestErrorMapsMarkers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err     error
		code    int
		message string
	}{
		{apperr.Invalid("create video", "title required"), http.StatusBadRequest, "invalid input: create video: title required"},
		{apperr.NotFound("get video", "no such video"), http.StatusNotFound, "not found: get video: no such video"},
		{apperr.Wrap(apperr.ErrConflict, "create video", "duplicate", nil), http.StatusConflict, "conflict: create video: duplicate"},
		{apperr.Wrap(apperr.ErrExternalService, "provider get", "timeout", nil), http.StatusBadGateway, "video provider unavailable"},
		{apperr.Wrap(apperr.ErrDatabase, "update video", "", errors.New("conn reset")), http.StatusInternalServerError, "internal error"},
		{errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		Error(c, tc.err)
		assert.Equal(t, tc.code, w.Code)
		var body Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.False(t, body.Success)
		assert.Equal(t, tc.message, body.Error)
	}
}
