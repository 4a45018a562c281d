package governance

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bibleverse-backend/internal/service/governance"
	"bibleverse-backend/pkg/response"
)

// Handler handles governance log requests
type Handler struct {
	governanceService *governance.Service
}

// NewHandler creates a new governance handler
func NewHandler(governanceService *governance.Service) *Handler {
	return &Handler{governanceService: governanceService}
}

// RegisterRoutes mounts the governance routes; writes go through adminOnly
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, adminOnly gin.HandlerFunc) {
	g := rg.Group("/governance")
	g.POST("/logs", adminOnly, h.LogAction)
	g.GET("/logs/:scope/:refId", h.GetLogsByRef)
	g.GET("/users/:userId/logs", h.GetLogsByTargetUser)
}

// LogActionRequest represents a moderation action to record
type LogActionRequest struct {
	Scope        string  `json:"scope" binding:"required"`
	RefID        string  `json:"ref_id" binding:"required"`
	Action       string  `json:"action" binding:"required"`
	TargetUserID *string `json:"target_user_id"`
	ExecutedBy   string  `json:"executed_by"`
}

// LogAction records a moderation action
// POST /v1/governance/logs
func (h *Handler) LogAction(c *gin.Context) {
	var req LogActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	log, err := h.governanceService.LogAction(c.Request.Context(), &governance.LogActionInput{
		Scope:        req.Scope,
		RefID:        req.RefID,
		Action:       req.Action,
		TargetUserID: req.TargetUserID,
		ExecutedBy:   req.ExecutedBy,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, log)
}

// GetLogsByRef lists actions about a room, task or call
// GET /v1/governance/logs/:scope/:refId
func (h *Handler) GetLogsByRef(c *gin.Context) {
	logs, err := h.governanceService.GetLogsByRef(c.Request.Context(), c.Param("scope"), c.Param("refId"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// GetLogsByTargetUser lists actions targeting a user
// GET /v1/governance/users/:userId/logs
func (h *Handler) GetLogsByTargetUser(c *gin.Context) {
	logs, err := h.governanceService.GetLogsByTargetUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}
