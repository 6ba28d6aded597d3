package handler

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"gowa-gateway/internal/service"
	"gowa-gateway/internal/ws"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Listeners authenticate with the API key, browsers may connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var notificationEvents = map[service.NotificationType]string{
	service.NotifyStatus:  ws.EventConnectionStatus,
	service.NotifyQR:      ws.EventQRGenerated,
	service.NotifyReady:   ws.EventSessionReady,
	service.NotifyMessage: ws.EventIncomingMessage,
}

// GET /api/listen streams gateway events over a websocket.
func (g *Gateway) Listen(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		zap.L().Warn("ws upgrade failed", zap.Error(err))
		return nil
	}

	client := ws.NewClient(g.Hub, conn)
	g.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
	return nil
}

// PublishTo returns a Tracker listener that forwards notifications to the hub.
func PublishTo(pub ws.RealtimePublisher) service.Listener {
	return func(n service.Notification) {
		pub.Publish(ws.WsEvent{
			Event: notificationEvents[n.Type],
			Data:  service.NotificationData(n),
		})
	}
}
