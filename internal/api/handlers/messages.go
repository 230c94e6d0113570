package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/api/dto"
	"github.com/chatforge/chat-service/internal/api/middleware"
	"github.com/chatforge/chat-service/internal/api/sse"
	domainerrors "github.com/chatforge/chat-service/internal/domain/errors"
	"github.com/chatforge/chat-service/internal/services/modelconfig"
	"github.com/chatforge/chat-service/internal/services/orchestrator"
)

// MessagesHandler handles message dispatch and listing endpoints.
type MessagesHandler struct {
	orchestrator *orchestrator.Service
}

// NewMessagesHandler creates a new MessagesHandler.
func NewMessagesHandler(orch *orchestrator.Service) *MessagesHandler {
	return &MessagesHandler{orchestrator: orch}
}

func sendRequest(c *gin.Context, req *dto.SendMessageRequest) *orchestrator.SendRequest {
	var override *modelconfig.Override
	if req.ModelProvider != "" || req.ModelName != "" || len(req.ModelParams) > 0 {
		override = &modelconfig.Override{
			Provider: req.ModelProvider,
			Model:    req.ModelName,
			Params:   req.ModelParams,
		}
	}

	return &orchestrator.SendRequest{
		ConversationID: c.Param("conversationId"),
		UserID:         middleware.GetUserID(c),
		Content:        req.Content,
		Override:       override,
		ApplicationID:  req.ApplicationID,
	}
}

// SendMessage handles POST /conversations/{conversationId}/messages
// @Summary Send a message
// @Description Dispatches a message to the conversation's model and returns the full reply
// @Tags Messages
// @Accept json
// @Produce json
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.SendMessageRequest true "Message to send"
// @Success 200 {object} dto.SendMessageResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Failure 429 {object} middleware.ErrorResponse
// @Failure 502 {object} middleware.ErrorResponse
// @Failure 503 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations/{conversationId}/messages [post]
func (h *MessagesHandler) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	result, err := h.orchestrator.Send(c.Request.Context(), sendRequest(c, &req))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.SendMessageResponse{
		UserMessage:      result.UserMessage,
		AssistantMessage: result.AssistantMessage,
	})
}

// StreamMessage handles POST /conversations/{conversationId}/messages/stream
// @Summary Send a message with a streamed reply
// @Description Dispatches a message and streams the reply as Server-Sent Events
// @Tags Messages
// @Accept json
// @Produce text/event-stream
// @Param conversationId path string true "Conversation ID"
// @Param request body dto.SendMessageRequest true "Message to send"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Failure 429 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations/{conversationId}/messages/stream [post]
func (h *MessagesHandler) StreamMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid request body", err.Error()))
		return
	}

	// Pre-stream failures surface as plain JSON errors; once the SSE
	// stream is open they become error events instead.
	events, err := h.orchestrator.SendStream(c.Request.Context(), sendRequest(c, &req))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	writer, err := sse.NewWriter(c.Writer)
	if err != nil {
		middleware.HandleError(c, domainerrors.NewInternalError("streaming not supported", err))
		return
	}

	for event := range events {
		switch {
		case event.Err != nil:
			code, message, details := "INTERNAL_ERROR", "internal server error", ""
			if domainErr, ok := domainerrors.GetDomainError(event.Err); ok {
				code, message, details = domainErr.Code, domainErr.Message, domainErr.Details
			}
			if err := writer.WriteError(code, message, details); err != nil {
				log.Debug().Err(err).Msg("Client disconnected during error event")
			}
			return
		case event.Done:
			completion := &sse.Completion{
				MessageID:     event.MessageID,
				ModelProvider: event.ModelProvider,
				ModelName:     event.ModelName,
			}
			if event.Usage != nil {
				completion.TotalTokens = event.Usage.TotalTokens
			}
			if err := writer.WriteCompletion(completion); err != nil {
				log.Debug().Err(err).Msg("Client disconnected before completion event")
			}
			return
		default:
			if err := writer.WriteChunk(event.Content); err != nil {
				// The exchange keeps running server-side; drain so the
				// orchestrator goroutine can finish persisting.
				log.Debug().Err(err).Msg("Client disconnected mid-stream")
				for range events {
				}
				return
			}
		}
	}
}

// ListMessages handles GET /conversations/{conversationId}/messages
// @Summary List messages
// @Description Returns a chronological page of the conversation's messages
// @Tags Messages
// @Produce json
// @Param conversationId path string true "Conversation ID"
// @Param limit query int false "Maximum number of messages" default(50) minimum(0) maximum(200)
// @Param offset query int false "Offset for pagination" default(0) minimum(0)
// @Success 200 {object} dto.ListMessagesResponse
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Security BearerAuth
// @Router /api/v1/conversations/{conversationId}/messages [get]
func (h *MessagesHandler) ListMessages(c *gin.Context) {
	var query dto.ListMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleError(c, domainerrors.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	messages, total, err := h.orchestrator.ListMessages(
		c.Request.Context(),
		c.Param("conversationId"),
		middleware.GetUserID(c),
		query.Limit,
		query.Offset,
	)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ListMessagesResponse{
		Messages: messages,
		Total:    total,
		Limit:    query.Limit,
		Offset:   query.Offset,
	})
}
