package handler

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"unitrade/internal/adapter/api/middleware"
	"unitrade/internal/domain/entity"
	"unitrade/internal/usecase"
	"unitrade/pkg/errors"
	"unitrade/pkg/response"
)

type ListingHandler struct {
	listingUseCase *usecase.ListingUseCase
	chatUseCase    *usecase.ChatUseCase
}

func NewListingHandler(listingUseCase *usecase.ListingUseCase, chatUseCase *usecase.ChatUseCase) *ListingHandler {
	return &ListingHandler{
		listingUseCase: listingUseCase,
		chatUseCase:    chatUseCase,
	}
}

type buyRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *ListingHandler) Categories(c echo.Context) error {
	return response.Success(c, entity.Categories)
}

// ListListings filters by ?category=, defaulting to every category.
func (h *ListingHandler) ListListings(c echo.Context) error {
	category := entity.Category(c.QueryParam("category"))
	if !category.IsAll() && !category.IsListable() {
		return response.Error(c, errors.Validation("unknown category", nil))
	}

	listings, err := h.listingUseCase.List(c.Request().Context(), category)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, listings)
}

// CreateListing reads a multipart form: name, price, category and either an
// "image" file or an "image_url" field.
func (h *ListingHandler) CreateListing(c echo.Context) error {
	input := usecase.CreateListingInput{
		Name:     c.FormValue("name"),
		Category: entity.Category(strings.TrimSpace(c.FormValue("category"))),
		Image:    strings.TrimSpace(c.FormValue("image_url")),
	}

	if raw := strings.TrimSpace(c.FormValue("price")); raw != "" {
		price, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return response.Error(c, errors.Validation("price must be a whole number", err))
		}
		input.Price = &price
	}

	if file, err := c.FormFile("image"); err == nil {
		src, err := file.Open()
		if err != nil {
			return response.Error(c, errors.Internal("Failed to read upload", err))
		}
		defer src.Close()
		input.ImageFile = src
	} else if !stderrors.Is(err, http.ErrMissingFile) && !stderrors.Is(err, http.ErrNotMultipart) {
		return response.Error(c, errors.Validation("invalid image upload", err))
	}

	listing, err := h.listingUseCase.Create(c.Request().Context(), middleware.SessionFrom(c), input)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, listing)
}

// GetListing is the detail view: listing, permissions and, when allowed, the
// chat. It marks the chat seen on the caller's device.
func (h *ListingHandler) GetListing(c echo.Context) error {
	view, err := h.chatUseCase.OpenChat(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, view)
}

func (h *ListingHandler) BuyListing(c echo.Context) error {
	var req buyRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	listing, err := h.listingUseCase.Buy(c.Request().Context(), middleware.SessionFrom(c), c.Param("id"), req.Confirm)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, listing)
}

func (h *ListingHandler) DeleteListing(c echo.Context) error {
	if err := h.listingUseCase.Delete(c.Request().Context(), middleware.SessionFrom(c), c.Param("id")); err != nil {
		return response.Error(c, err)
	}
	return response.NoContent(c)
}

// MyListings is the seller dashboard with unread flags.
func (h *ListingHandler) MyListings(c echo.Context) error {
	rows, err := h.chatUseCase.UnreadForSeller(c.Request().Context(), middleware.SessionFrom(c))
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, rows)
}
