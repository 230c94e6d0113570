package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chatforge/chat-service/internal/api/dto"
	"github.com/chatforge/chat-service/internal/api/middleware"
	domainerrors "github.com/chatforge/chat-service/internal/domain/errors"
	"github.com/chatforge/chat-service/internal/services/orchestrator"
)

// ConversationsHandler handles conversation lifecycle endpoints.
type ConversationsHandler struct {
	orchestrator *orchestrator.Service
}

// NewConversationsHandler creates a new ConversationsHandler.
func NewConversationsHandler(orch *orchestrator.Service) *ConversationsHandler {
	return &ConversationsHandler{orchestrator: orch}
}

// CreateConversation handles POST /conversations
// @Summary Create a conversation
// @Tags Conversations
// @Accept json
// @Produce json
// @Param request body dto.CreateConversationRequest false "Conversation metadata"
// @Success 201 {object} models.Conversation
// @Failure 400 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations [post]
func (h *ConversationsHandler) CreateConversation(c *gin.Context) {
	var req dto.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	conversation, err := h.orchestrator.CreateConversation(c.Request.Context(), middleware.GetUserID(c), req.Title)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// GetConversation handles GET /conversations/{conversationId}
// @Summary Get a conversation
// @Tags Conversations
// @Produce json
// @Param conversationId path string true "Conversation ID"
// @Success 200 {object} models.Conversation
// @Failure 404 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations/{conversationId} [get]
func (h *ConversationsHandler) GetConversation(c *gin.Context) {
	conversation, err := h.orchestrator.GetConversation(c.Request.Context(), c.Param("conversationId"), middleware.GetUserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// DeleteConversation handles DELETE /conversations/{conversationId}
// @Summary Delete a conversation
// @Description Soft-deletes the conversation and drops its cached history
// @Tags Conversations
// @Produce json
// @Param conversationId path string true "Conversation ID"
// @Success 204 "Deleted"
// @Failure 404 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations/{conversationId} [delete]
func (h *ConversationsHandler) DeleteConversation(c *gin.Context) {
	err := h.orchestrator.DeleteConversation(c.Request.Context(), c.Param("conversationId"), middleware.GetUserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
