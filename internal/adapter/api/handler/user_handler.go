package handler

import (
	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/middleware"
	"unitrade/internal/usecase"
	"unitrade/pkg/errors"
	"unitrade/pkg/response"
)

type UserHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewUserHandler(userUseCase *usecase.UserUseCase) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
	}
}

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=50"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	identity, err := h.userUseCase.GetProfile(c.Request().Context(), middleware.SessionFrom(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, identity)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	identity, err := h.userUseCase.UpdateProfile(c.Request().Context(), middleware.SessionFrom(c), usecase.UpdateProfileInput{
		DisplayName: req.DisplayName,
		PhotoURL:    req.PhotoURL,
	})
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, identity)
}

// UploadPhoto takes a multipart "photo" file.
func (h *UserHandler) UploadPhoto(c echo.Context) error {
	file, err := c.FormFile("photo")
	if err != nil {
		return response.Error(c, errors.Validation("photo file is required", err))
	}
	src, err := file.Open()
	if err != nil {
		return response.Error(c, errors.Internal("Failed to read upload", err))
	}
	defer src.Close()

	identity, err := h.userUseCase.UploadPhoto(c.Request().Context(), middleware.SessionFrom(c), src)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, identity)
}
