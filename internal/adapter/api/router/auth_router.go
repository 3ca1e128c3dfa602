package router

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/handler"
	"unitrade/internal/adapter/api/middleware"
	"unitrade/internal/infrastructure/ratelimit"
)

// SetupAuthRouter initializes auth routes. Sign-up and sign-in are throttled
// per client IP.
func SetupAuthRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	authHandler := handler.GetAuthHandler()

	public := e.Group("/v1/auth")
	if limiter != nil {
		public.Use(middleware.RateLimit(limiter, ratelimit.ActionAuth))
	}
	public.POST("/signup", authHandler.SignUp)
	public.POST("/signin", authHandler.SignIn)

	e.POST("/v1/auth/signout", authHandler.SignOut, authMiddleware.Authenticate)
}
