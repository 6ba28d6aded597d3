package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"gowa-gateway/internal/service"
	"gowa-gateway/internal/ws"
)

const (
	DefaultSendGrace      = time.Second
	DefaultReconnectGrace = 2 * time.Second
)

// Gateway serves the HTTP API on top of a Tracker.
type Gateway struct {
	Tracker *service.Tracker
	Store   service.SessionStore
	Hub     *ws.Hub

	// Footer is appended to every outgoing text.
	Footer string
	// SendGrace is how long a send waits for the live identity to appear.
	SendGrace time.Duration
	// ReconnectGrace is how long POST /api/connect waits before reporting
	// the outcome of a reconnect with the saved number.
	ReconnectGrace time.Duration
}

func NewGateway(tracker *service.Tracker, store service.SessionStore, hub *ws.Hub, footer string) *Gateway {
	return &Gateway{
		Tracker:        tracker,
		Store:          store,
		Hub:            hub,
		Footer:         footer,
		SendGrace:      DefaultSendGrace,
		ReconnectGrace: DefaultReconnectGrace,
	}
}

// Register mounts the routes. guard protects everything under /api.
func (g *Gateway) Register(e *echo.Echo, guard echo.MiddlewareFunc) {
	e.GET("/health", g.Health)

	api := e.Group("/api", guard)
	api.GET("/status", g.Status)
	api.GET("/qr", g.QR)
	api.POST("/connect", g.Connect)
	api.POST("/disconnect", g.Disconnect)
	api.POST("/logout", g.Logout)
	api.POST("/send-message", g.SendMessage)
	if g.Hub != nil {
		api.GET("/listen", g.Listen)
	}
}

// sleep waits d or until the request is cancelled.
func sleep(c echo.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-c.Request().Context().Done():
	}
}

// HTTPErrorHandler renders echo and unexpected errors in the gateway's
// error shape.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	errMsg := "Internal Server Error"
	message := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errMsg = fmt.Sprintf("%v", he.Message)
		message = errMsg
	}

	switch code {
	case http.StatusMethodNotAllowed:
		message = "Method not allowed for this endpoint"
	case http.StatusNotFound:
		message = "Endpoint not found"
	case http.StatusTooManyRequests:
		message = "Too many requests, slow down"
	}

	_ = ErrorResponse(c, code, errMsg, message, nil)
}
