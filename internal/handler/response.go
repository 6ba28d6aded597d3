package handler

import (
	"time"

	"github.com/labstack/echo/v4"
)

// ErrorResponse writes {success:false, error, message} merged with extra.
func ErrorResponse(c echo.Context, code int, errMsg, message string, extra echo.Map) error {
	body := echo.Map{
		"success": false,
		"error":   errMsg,
		"message": message,
	}
	for k, v := range extra {
		body[k] = v
	}
	return c.JSON(code, body)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// nullable maps "" to a JSON null.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
