package router

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/handler"
	"unitrade/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the per-listing chat routes (excluding WebSocket).
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	chatHandler := handler.GetChatHandler()

	e.GET("/v1/listings/:id/messages", chatHandler.GetMessages, authMiddleware.Authenticate)
	e.POST("/v1/listings/:id/messages", chatHandler.SendMessage, authMiddleware.Authenticate)
	e.POST("/v1/listings/:id/seen", chatHandler.MarkSeen, authMiddleware.Authenticate)
}
