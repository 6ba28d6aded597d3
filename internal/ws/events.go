package ws

import "time"

const (
	EventConnectionStatus = "connection_status"
	EventQRGenerated      = "qr_generated"
	EventSessionReady     = "session_ready"
	EventIncomingMessage  = "incoming_message"
)

// WsEvent is the envelope pushed to every listener.
type WsEvent struct {
	Event     string      `json:"event"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
