package router

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/handler"
	"unitrade/internal/adapter/api/middleware"
)

func SetupListingRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	listingHandler := handler.GetListingHandler()

	e.GET("/v1/categories", listingHandler.Categories)

	listings := e.Group("/v1/listings")
	listings.Use(authMiddleware.Authenticate)
	listings.GET("", listingHandler.ListListings)
	listings.POST("", listingHandler.CreateListing)
	listings.GET("/:id", listingHandler.GetListing)
	listings.POST("/:id/buy", listingHandler.BuyListing)
	listings.DELETE("/:id", listingHandler.DeleteListing)

	my := e.Group("/v1/my")
	my.Use(authMiddleware.Authenticate)
	my.GET("/listings", listingHandler.MyListings)
}
