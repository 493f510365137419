package utils_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/hris-autoclock/internal/infrastructure/observability"
	appErrors "github.com/waqasmani/hris-autoclock/internal/shared/errors"
	"github.com/waqasmani/hris-autoclock/internal/shared/utils"
)

func TestResponse_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	data := map[string]string{"foo": "bar"}
	utils.Success(c, http.StatusOK, data)

	var response utils.Response
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.True(t, response.Success)
	assert.Equal(t, "v1", response.Version)

	respData := response.Data.(map[string]interface{})
	assert.Equal(t, "bar", respData["foo"])
}

func TestResponse_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"Transport", appErrors.ErrTransport, http.StatusBadGateway, "TRANSPORT_ERROR"},
		{"Unauthenticated", appErrors.ErrUnauthenticated, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"Validation", appErrors.New(appErrors.ErrCodeValidation, "bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"Config", appErrors.ErrConfig, http.StatusInternalServerError, "CONFIG_ERROR"},
		{"Plain error", errors.New("something crashed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			utils.Error(c, tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var response utils.Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.False(t, response.Success)
			assert.Equal(t, tt.wantCode, response.Error.Code)
		})
	}
}

func TestResponse_ErrorCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(string(observability.RequestIDKey), "req-123")

	base := appErrors.WithDetails(appErrors.ErrCodeValidation, "bad", map[string]string{"field": "x"})
	utils.Error(c, base)

	assert.Contains(t, w.Body.String(), `"request_id":"req-123"`)
	assert.Contains(t, w.Body.String(), `"field":"x"`)
	assert.NotContains(t, base.Details, "request_id", "shared error details are not mutated")
}
