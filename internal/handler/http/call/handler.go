package call

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bibleverse-backend/internal/domain"
	"bibleverse-backend/internal/service/call"
	"bibleverse-backend/pkg/response"
)

// Handler handles call and circle-talking HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{
		callService: callService,
	}
}

// RegisterRoutes mounts the call routes on an authenticated group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	calls := rg.Group("/calls")
	calls.POST("", h.CreateCall)
	calls.GET("/:id", h.GetCall)
	calls.GET("/:id/participants", h.ListParticipants)
	calls.POST("/:id/join", h.JoinCall)
	calls.POST("/:id/leave", h.LeaveCall)
	calls.POST("/:id/raise-hand", h.RaiseHand)
	calls.POST("/:id/circle-talking/start", h.StartCircleTalking)
	calls.POST("/:id/circle-talking/next", h.AdvanceSpeaker)
	calls.POST("/:id/end", h.EndCall)
	calls.GET("/:id/transcript", h.GetTranscript)
}

// CreateCallRequest represents call creation request
type CreateCallRequest struct {
	Scope                string `json:"scope" binding:"required,oneof=room event"`
	RefID                string `json:"ref_id" binding:"required"`
	Mode                 string `json:"mode" binding:"required,oneof=audio video"`
	CircleTalkingEnabled bool   `json:"circle_talking_enabled"`
}

func requester(c *gin.Context) (string, bool) {
	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return "", false
	}
	return userID, true
}

// CreateCall starts a new call owned by the caller
// POST /v1/calls
func (h *Handler) CreateCall(c *gin.Context) {
	var req CreateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := requester(c)
	if !ok {
		return
	}

	created, err := h.callService.CreateCall(c.Request.Context(), &call.CreateCallInput{
		Scope:                domain.CallScope(req.Scope),
		RefID:                req.RefID,
		Mode:                 domain.CallMode(req.Mode),
		StartedBy:            userID,
		CircleTalkingEnabled: req.CircleTalkingEnabled,
	})
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// GetCall retrieves a call
// GET /v1/calls/:id
func (h *Handler) GetCall(c *gin.Context) {
	found, err := h.callService.GetCall(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, found)
}

// ListParticipants returns the participants in rotation order
// GET /v1/calls/:id/participants
func (h *Handler) ListParticipants(c *gin.Context) {
	participants, err := h.callService.ListParticipants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"participants": participants,
		"count":        len(participants),
	})
}

// JoinCall adds the caller to a call
// POST /v1/calls/:id/join
func (h *Handler) JoinCall(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	participant, err := h.callService.JoinCall(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, participant)
}

// LeaveCall removes the caller from a call
// POST /v1/calls/:id/leave
func (h *Handler) LeaveCall(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	callID := c.Param("id")
	if err := h.callService.LeaveCall(c.Request.Context(), callID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message": "Left call",
		"call_id": callID,
	})
}

// RaiseHand raises the caller's hand
// POST /v1/calls/:id/raise-hand
func (h *Handler) RaiseHand(c *gin.Context) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	participant, err := h.callService.RaiseHand(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, participant)
}

// StartCircleTalking gives the floor to the first participant
// POST /v1/calls/:id/circle-talking/start
func (h *Handler) StartCircleTalking(c *gin.Context) {
	h.moderate(c, h.callService.StartCircleTalking)
}

// AdvanceSpeaker passes the floor to the next participant
// POST /v1/calls/:id/circle-talking/next
func (h *Handler) AdvanceSpeaker(c *gin.Context) {
	h.moderate(c, h.callService.AdvanceSpeaker)
}

// EndCall ends a call
// POST /v1/calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	h.moderate(c, h.callService.EndCall)
}

type moderation func(ctx context.Context, callID, requesterID string) (*domain.Call, error)

func (h *Handler) moderate(c *gin.Context, op moderation) {
	userID, ok := requester(c)
	if !ok {
		return
	}

	updated, err := op(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// GetTranscript returns the moderator transcript, oldest first
// GET /v1/calls/:id/transcript?limit=
func (h *Handler) GetTranscript(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		response.ValidationError(c, "limit must be a number")
		return
	}

	entries, err := h.callService.GetTranscript(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
