package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIKeyAuth guards routes with a single shared key. The key is read from
// the X-API-Key or api-key header, or the api_key query parameter.
func APIKeyAuth(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				zap.L().Error("API_KEY is not configured, rejecting request", zap.String("path", c.Path()))
				return c.JSON(http.StatusInternalServerError, map[string]interface{}{
					"success": false,
					"error":   "Server Configuration Error",
					"message": "API_KEY is not configured. Please set API_KEY in the .env file",
				})
			}

			provided := requestKey(c)
			if provided == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"success": false,
					"error":   "Unauthorized",
					"message": "API key is required. Provide it in header: X-API-Key or api-key, or as query parameter: api_key",
				})
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"success": false,
					"error":   "Forbidden",
					"message": "Invalid API key",
				})
			}

			return next(c)
		}
	}
}

func requestKey(c echo.Context) string {
	h := c.Request().Header
	if v := h.Get("X-API-Key"); v != "" {
		return v
	}
	if v := h.Get("api-key"); v != "" {
		return v
	}
	return c.QueryParam("api_key")
}
