package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gowa-gateway/internal/helper"
	"gowa-gateway/internal/model"
)

type connectRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

// startInBackground runs a connection attempt detached from the request.
func (g *Gateway) startInBackground() {
	go func() {
		// Failures are logged and recorded in the snapshot by the tracker.
		if err := g.Tracker.StartConnection(context.Background()); err != nil {
			zap.L().Debug("background connection attempt failed", zap.Error(err))
		}
	}()
}

// GET /api/qr
func (g *Gateway) QR(c echo.Context) error {
	snap := g.Tracker.Snapshot()

	if snap.IsConnected() {
		return c.JSON(http.StatusOK, echo.Map{
			"success":   true,
			"connected": true,
			"message":   "Already connected, no QR code needed",
			"qr":        nil,
		})
	}

	if !snap.HasQR() {
		if !snap.HasSession || snap.Status == model.StatusDisconnected {
			g.startInBackground()
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success":   false,
			"connected": false,
			"message":   "QR code not available yet, please wait...",
			"qr":        nil,
			"status":    snap.Status,
		})
	}

	dataURL, err := helper.QRDataURL(snap.CurrentQR)
	if err != nil {
		zap.L().Error("failed to generate qr code", zap.Error(err))
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to generate QR code", err.Error(), nil)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"connected": false,
		"qr":        dataURL,
		"qrRaw":     snap.CurrentQR,
		"status":    snap.Status,
		"timestamp": timestamp(),
	})
}

// POST /api/connect
func (g *Gateway) Connect(c echo.Context) error {
	ctx := c.Request().Context()

	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err.Error(), nil)
	}

	snap := g.Tracker.Snapshot()
	if snap.IsConnected() {
		return c.JSON(http.StatusOK, echo.Map{
			"success":         true,
			"message":         "Already connected",
			"connected":       true,
			"connectedNumber": nullable(snap.PhoneNumber),
		})
	}

	// 1. No number given: reconnect with the saved session.
	if req.PhoneNumber == "" {
		saved, err := g.Store.PersistedNumber(ctx)
		if err != nil {
			zap.L().Error("failed to start connection", zap.Error(err))
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to start connection", err.Error(), nil)
		}
		if saved == "" {
			return ErrorResponse(c, http.StatusBadRequest, "Phone number is required",
				"Please provide phoneNumber in the request body", nil)
		}

		g.Tracker.SetPhoneNumber(saved)
		zap.L().Info("reconnecting saved session", zap.String("number", saved))
		// The outcome is read from the snapshot after the grace period.
		if err := g.Tracker.StartConnection(context.Background()); err != nil {
			zap.L().Debug("reconnect attempt failed", zap.Error(err))
		}
		sleep(c, g.ReconnectGrace)

		connected := g.Tracker.Snapshot().IsConnected()
		message := "Reconnect in progress"
		if connected {
			message = "Reconnected successfully"
		}
		return c.JSON(http.StatusOK, echo.Map{
			"success":         true,
			"message":         message,
			"connected":       connected,
			"connectedNumber": saved,
		})
	}

	// 2. Only one device may be linked.
	clean := helper.ExtractNumber(helper.FormatPhoneNumber(req.PhoneNumber))
	exists, err := g.Store.Exists(ctx)
	if err != nil {
		zap.L().Error("failed to start connection", zap.Error(err))
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to start connection", err.Error(), nil)
	}
	if exists {
		saved, err := g.Store.PersistedNumber(ctx)
		if err != nil {
			zap.L().Error("failed to start connection", zap.Error(err))
			return ErrorResponse(c, http.StatusInternalServerError, "Failed to start connection", err.Error(), nil)
		}
		if saved != "" && !helper.SameNumber(saved, clean) {
			existing := helper.BaseNumber(saved)
			return ErrorResponse(c, http.StatusForbidden, "Session already exists for a different number",
				fmt.Sprintf("Session already exists for number %s. Only 1 device is allowed.", existing),
				echo.Map{"existingNumber": existing})
		}
		if saved != "" {
			g.Tracker.SetPhoneNumber(saved)
		}
	}

	// 3. An attempt is already running.
	if snap = g.Tracker.Snapshot(); snap.Status == model.StatusConnecting {
		return c.JSON(http.StatusOK, echo.Map{
			"success": true,
			"message": "Connection in progress",
			"status":  snap.Status,
			"hasQR":   snap.HasQR(),
		})
	}

	// 4. Start a fresh attempt.
	g.Tracker.SetPhoneNumber(clean)
	zap.L().Info("starting connection", zap.String("number", clean))
	g.startInBackground()

	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"message":     "Connection started. Check /api/qr for the QR code.",
		"status":      model.StatusConnecting,
		"phoneNumber": clean,
	})
}

// POST /api/disconnect
func (g *Gateway) Disconnect(c echo.Context) error {
	body := echo.Map{
		"success":   true,
		"message":   "Disconnected",
		"connected": false,
	}
	if err := g.Tracker.Disconnect(c.Request().Context()); err != nil {
		body["warning"] = err.Error()
	}
	return c.JSON(http.StatusOK, body)
}

// POST /api/logout
func (g *Gateway) Logout(c echo.Context) error {
	if err := g.Tracker.Logout(c.Request().Context()); err != nil {
		zap.L().Error("failed to logout", zap.Error(err))
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to logout", err.Error(), nil)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"message":   "Logged out, session removed",
		"connected": false,
	})
}
