package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"acquiring-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	return c, w
}

func TestOK_EnvelopeShape(t *testing.T) {
	c, w := testContext()
	c.Set(CtxCorrelationID, "corr-123")

	OK(c, "NEW", gin.H{"PaymentId": "123", "Amount": int64(15000)})

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["Success"])
	assert.Equal(t, "0", body["ErrorCode"])
	assert.Equal(t, "NEW", body["Status"])
	assert.Equal(t, "123", body["PaymentId"])
	assert.Equal(t, "corr-123", body["CorrelationId"])
}

func TestError_AppError(t *testing.T) {
	c, w := testContext()

	Error(c, apperror.ErrIllegalState("NEW"))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "1003", body.ErrorCode)
	assert.Equal(t, "NEW", body.Status)
	assert.NotEmpty(t, body.CorrelationID)
}

func TestError_UnknownErrorIs999(t *testing.T) {
	c, w := testContext()

	Error(c, errors.New("database exploded"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "999", body.ErrorCode)
	assert.NotContains(t, w.Body.String(), "exploded", "internal details never leak")
}

func TestError_WrappedAppErrorUnwraps(t *testing.T) {
	c, w := testContext()

	wrapped := apperror.Wrap(apperror.CodeValidation, "Amount invalid", http.StatusBadRequest, errors.New("cause"))
	Error(c, wrapped)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "cause")
}
