package router

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/handler"
	"unitrade/internal/adapter/api/middleware"
	"unitrade/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, wsHandler *handler.WebSocketHandler) {
	SetupHealthRouter(e)
	SetupAuthRouter(e, authMiddleware, limiter)
	SetupUserRouter(e, authMiddleware)
	SetupListingRouter(e, authMiddleware)
	SetupChatRouter(e, authMiddleware)
	SetupWebSocketRouter(e, authMiddleware, wsHandler)
}
