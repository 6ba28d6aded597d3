package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gowa-gateway/internal/helper"
	"gowa-gateway/internal/metrics"
	"gowa-gateway/internal/service"
)

type sendMessageRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// POST /api/send-message
func (g *Gateway) SendMessage(c echo.Context) error {
	// 1. Connected with a live session.
	snap := g.Tracker.Snapshot()
	if !snap.IsConnected() || !snap.HasSession {
		return ErrorResponse(c, http.StatusServiceUnavailable, "WhatsApp not connected",
			"WhatsApp is not connected yet. Please connect first.",
			echo.Map{"connected": snap.IsConnected(), "ready": snap.IsReady})
	}

	// 2. Identity present, after one grace period.
	if !snap.SocketReady {
		sleep(c, g.SendGrace)
		snap = g.Tracker.Snapshot()
		if !snap.SocketReady {
			return ErrorResponse(c, http.StatusServiceUnavailable, "Connection not established",
				"WhatsApp connection is not fully established. Please reconnect.",
				echo.Map{"connected": snap.IsConnected(), "ready": snap.IsReady})
		}
	}

	// 3. A present identity is enough to send.
	if !snap.IsReady {
		g.Tracker.ForceReady("marked ready on send attempt")
	}

	// 4. Validate body.
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil || req.To == "" || req.Message == "" {
		return ErrorResponse(c, http.StatusBadRequest, "Required fields missing",
			`Fields "to" and "message" are required`, nil)
	}

	// 5. Send.
	jid := helper.FormatPhoneNumber(req.To)
	zap.L().Info("sending message", zap.String("to", jid))
	res, err := g.Tracker.SendText(c.Request().Context(), jid, req.Message+g.Footer)
	if err != nil {
		zap.L().Error("failed to send message", zap.String("to", jid), zap.Error(err))
		if errors.Is(err, service.ErrTransportDropped) || errors.Is(err, service.ErrNoSession) {
			metrics.RecordMessageSent("dropped")
			g.Tracker.MarkTransportDropped()
			return ErrorResponse(c, http.StatusServiceUnavailable, "Connection lost",
				"WhatsApp connection dropped. Wait for reconnect and try again.", nil)
		}
		metrics.RecordMessageSent("error")
		return ErrorResponse(c, http.StatusInternalServerError, "Failed to send message", err.Error(), nil)
	}

	metrics.RecordMessageSent("ok")
	zap.L().Info("message sent", zap.String("id", res.ID))
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"messageId": res.ID,
		"to":        jid,
		"timestamp": timestamp(),
	})
}
