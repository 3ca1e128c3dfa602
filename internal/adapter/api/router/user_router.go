package router

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/handler"
	"unitrade/internal/adapter/api/middleware"
)

func SetupUserRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	userHandler := handler.GetUserHandler()

	me := e.Group("/v1/me")
	me.Use(authMiddleware.Authenticate)
	me.GET("", userHandler.GetProfile)
	me.PATCH("", userHandler.UpdateProfile)
	me.POST("/photo", userHandler.UploadPhoto)
}
