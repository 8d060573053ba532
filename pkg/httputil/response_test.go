package httputil_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnomed/scheduling-api/pkg/errors"
	"github.com/turnomed/scheduling-api/pkg/httputil"
)

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err        error
		wantStatus int
		wantMsg    string
	}{
		{errors.NotFound("appointment", nil), http.StatusNotFound, "appointment not found"},
		{errors.BadRequest("invalid appointment status", nil), http.StatusBadRequest, "invalid appointment status"},
		{errors.Conflict("this availability already exists", nil), http.StatusConflict, "this availability already exists"},
		{errors.Unauthorized(nil), http.StatusUnauthorized, "unauthorized"},
		{errors.Internal(fmt.Errorf("connection refused")), http.StatusInternalServerError, "internal server error"},
		{fmt.Errorf("raw error"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		httputil.RespondWithError(c, tc.err)

		assert.Equal(t, tc.wantStatus, w.Code)

		var resp httputil.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, tc.wantStatus, resp.Error.Code)
		assert.Equal(t, tc.wantMsg, resp.Error.Message)
	}
}

func TestRespondWithSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	httputil.RespondWithCreated(c, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp httputil.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
}
