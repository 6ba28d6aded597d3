package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GET /health
func (g *Gateway) Health(c echo.Context) error {
	snap := g.Tracker.Snapshot()
	return c.JSON(http.StatusOK, echo.Map{
		"status":             "ok",
		"whatsapp_connected": snap.IsConnected(),
		"timestamp":          timestamp(),
	})
}

// GET /api/status
func (g *Gateway) Status(c echo.Context) error {
	ctx := c.Request().Context()

	exists, err := g.Store.Exists(ctx)
	if err != nil {
		zap.L().Error("failed to get status", zap.Error(err))
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to get status", err.Error(), nil)
	}
	saved, err := g.Store.PersistedNumber(ctx)
	if err != nil {
		zap.L().Error("failed to get status", zap.Error(err))
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to get status", err.Error(), nil)
	}

	snap := g.Tracker.Snapshot()
	number := snap.PhoneNumber
	if number == "" {
		number = saved
	}

	return c.JSON(http.StatusOK, echo.Map{
		"connected":       snap.IsConnected(),
		"ready":           snap.IsReady && snap.SocketReady,
		"status":          snap.Status,
		"hasQR":           snap.HasQR(),
		"error":           nullable(snap.LastError),
		"sessionExists":   exists,
		"connectedNumber": nullable(number),
		"socketReady":     snap.SocketReady,
		"timestamp":       timestamp(),
	})
}
