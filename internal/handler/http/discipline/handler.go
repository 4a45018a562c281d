package discipline

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bibleverse-backend/internal/service/discipline"
	appctx "bibleverse-backend/pkg/context"
	"bibleverse-backend/pkg/response"
)

// Handler exposes the discipline engine
type Handler struct {
	disciplineService *discipline.Service
}

// NewHandler creates a new discipline handler
func NewHandler(disciplineService *discipline.Service) *Handler {
	return &Handler{disciplineService: disciplineService}
}

// RegisterRoutes mounts the discipline routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/rooms/:roomId/discipline/:userId", h.Evaluate)
}

// Evaluate reports a participant's standing in a room.
// Participants may read their own standing; admins may read anyone's.
// GET /v1/rooms/:roomId/discipline/:userId?detail=true
func (h *Handler) Evaluate(c *gin.Context) {
	callerID := c.GetString("user_id")
	if callerID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	roomID := c.Param("roomId")
	userID := c.Param("userId")
	if userID != callerID && c.GetString("role") != appctx.RoleAdmin {
		response.Forbidden(c, "Cannot view another participant's discipline")
		return
	}

	if c.Query("detail") == "true" {
		rec, err := h.disciplineService.RecommendAction(c.Request.Context(), roomID, userID)
		if err != nil {
			response.FromError(c, err)
			return
		}
		response.Success(c, http.StatusOK, rec)
		return
	}

	eval, err := h.disciplineService.EvaluateDiscipline(c.Request.Context(), roomID, userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, eval)
}
