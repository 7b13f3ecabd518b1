package call

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/response"
)

// ActiveCalls lists the live sessions of a user
type ActiveCalls interface {
	Active(userID uuid.UUID) []domain.ActiveCall
}

// Handler handles call HTTP requests
type Handler struct {
	calls ActiveCalls
}

// NewHandler creates a new call handler
func NewHandler(calls ActiveCalls) *Handler {
	return &Handler{
		calls: calls,
	}
}

// ListActive returns the calls the authenticated user is part of
// GET /v1/calls/active
func (h *Handler) ListActive(c *gin.Context) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return
	}

	calls := h.calls.Active(userID)
	if calls == nil {
		calls = []domain.ActiveCall{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"calls": calls,
	})
}
