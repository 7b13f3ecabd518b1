package presence

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pulsechat-backend/internal/domain"
	"pulsechat-backend/pkg/response"
)

// StatusReader reports whether a user is online
type StatusReader interface {
	Status(ctx context.Context, userID uuid.UUID) domain.UserStatus
}

// Handler handles presence HTTP requests
type Handler struct {
	presence StatusReader
}

// NewHandler creates a new presence handler
func NewHandler(presence StatusReader) *Handler {
	return &Handler{
		presence: presence,
	}
}

// GetStatus returns the presence of one user
// GET /v1/presence/:user_id
func (h *Handler) GetStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.ValidationError(c, "Invalid user ID")
		return
	}

	response.Success(c, http.StatusOK, domain.StatusEvent{
		UserID: userID,
		Status: h.presence.Status(c.Request.Context(), userID),
	})
}
