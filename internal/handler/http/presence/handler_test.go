package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"pulsechat-backend/internal/domain"
)

type MockStatusReader struct {
	mock.Mock
}

func (m *MockStatusReader) Status(ctx context.Context, userID uuid.UUID) domain.UserStatus {
	args := m.Called(ctx, userID)
	return args.Get(0).(domain.UserStatus)
}

func newRouter(reader StatusReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/presence/:user_id", NewHandler(reader).GetStatus)
	return router
}

func TestGetStatus(t *testing.T) {
	reader := new(MockStatusReader)
	userID := uuid.New()
	reader.On("Status", mock.Anything, userID).Return(domain.UserStatusOnline)

	w := httptest.NewRecorder()
	newRouter(reader).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/"+userID.String(), nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool               `json:"success"`
		Data    domain.StatusEvent `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, userID, body.Data.UserID)
	assert.Equal(t, domain.UserStatusOnline, body.Data.Status)
}

func TestGetStatus_InvalidUserID(t *testing.T) {
	reader := new(MockStatusReader)

	w := httptest.NewRecorder()
	newRouter(reader).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/presence/not-a-uuid", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
	reader.AssertNotCalled(t, "Status", mock.Anything, mock.Anything)
}
