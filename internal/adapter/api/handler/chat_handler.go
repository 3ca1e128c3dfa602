package handler

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/middleware"
	"unitrade/internal/usecase"
	"unitrade/pkg/response"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *ChatHandler) GetMessages(c echo.Context) error {
	messages, err := h.chatUseCase.Messages(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, messages)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	message, err := h.chatUseCase.Send(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, message)
}

func (h *ChatHandler) MarkSeen(c echo.Context) error {
	if err := h.chatUseCase.MarkSeen(c.Request().Context(), middleware.SessionFrom(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}
