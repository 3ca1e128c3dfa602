package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"unitrade/internal/domain/entity"
	"unitrade/internal/usecase"
	"unitrade/pkg/errors"
	"unitrade/pkg/response"
)

const (
	sessionKey = "session"

	// DeviceHeader identifies the client device for unread tracking.
	DeviceHeader = "X-Device-ID"
)

type AuthMiddleware struct {
	authUseCase *usecase.AuthUseCase
}

func NewAuthMiddleware(authUseCase *usecase.AuthUseCase) *AuthMiddleware {
	return &AuthMiddleware{
		authUseCase: authUseCase,
	}
}

// Authenticate requires a valid token and stores the resulting session on the
// context. Browsers cannot set headers on a WebSocket handshake, so the token
// and device id may also come from the query string.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := bearerToken(c)
		if err != nil {
			return response.Error(c, err)
		}

		session, err := m.authUseCase.Authenticate(c.Request().Context(), token, deviceID(c))
		if err != nil {
			return response.Error(c, err)
		}

		c.Set(sessionKey, session)
		c.Set("uid", session.UID())
		return next(c)
	}
}

// SessionFrom returns the session stored by Authenticate, or nil.
func SessionFrom(c echo.Context) *entity.Session {
	session, _ := c.Get(sessionKey).(*entity.Session)
	return session
}

func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", errors.Unauthorized("Authorization header is required", nil)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.Unauthorized("Invalid authorization format", nil)
	}
	return parts[1], nil
}

func deviceID(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(DeviceHeader)); id != "" {
		return id
	}
	if id := strings.TrimSpace(c.QueryParam("device_id")); id != "" {
		return id
	}
	return entity.DefaultDeviceID
}
