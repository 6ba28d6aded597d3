package service

import (
	"context"
	"errors"
	"time"

	"gowa-gateway/internal/model"
)

var (
	// ErrNoSession is returned when an operation needs a live session and
	// none is held.
	ErrNoSession = errors.New("no whatsapp session")
	// ErrTransportDropped marks send failures caused by a lost connection.
	ErrTransportDropped = errors.New("whatsapp connection dropped")
	// ErrSessionClosed is returned by Connect on a session that was closed.
	ErrSessionClosed = errors.New("whatsapp session closed")
)

// Event is one of the signals a messaging session reports to the Tracker:
// ConnectionChanged, QRIssued, ConnectionFailed or MessageReceived.
type Event interface {
	isEvent()
}

type ConnectionChanged struct {
	Connected bool
}

type QRIssued struct {
	Code string
}

type ConnectionFailed struct {
	Reason string
}

// MessageReceived describes an inbound message after filtering; it carries
// no protocol types so listeners stay independent of whatsmeow.
type MessageReceived struct {
	ID        string    `json:"id"`
	Chat      string    `json:"chat"`
	Sender    string    `json:"sender"`
	PushName  string    `json:"pushName,omitempty"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	IsGroup   bool      `json:"isGroup"`
	Timestamp time.Time `json:"timestamp"`
}

func (ConnectionChanged) isEvent() {}
func (QRIssued) isEvent()          {}
func (ConnectionFailed) isEvent()  {}
func (MessageReceived) isEvent()   {}

// EventSink receives events from a session. Tracker is the production sink.
type EventSink interface {
	Handle(evt Event)
}

// Connector builds messaging sessions. Open must not connect yet: the
// Tracker stores the handle first so early events can see it.
type Connector interface {
	Open(ctx context.Context, sink EventSink) (Session, error)
}

// Session is one live messaging client.
type Session interface {
	// Connect resumes with stored credentials or starts QR pairing.
	Connect(ctx context.Context) error
	// Identity is the linked device JID, empty before pairing completes.
	Identity() string
	// IsLoggedIn reports that the server accepted the session.
	IsLoggedIn() bool
	SendText(ctx context.Context, to, text string) (SendResult, error)
	// Close drops the connection and keeps stored credentials.
	Close() error
	// Logout unlinks the device and deletes stored credentials.
	Logout(ctx context.Context) error
}

type SendResult struct {
	ID        string
	Timestamp time.Time
}

// SessionStore answers questions about persisted credentials.
type SessionStore interface {
	Exists(ctx context.Context) (bool, error)
	// PersistedNumber returns the linked number, possibly with a ":device"
	// suffix, or "" when nothing is stored.
	PersistedNumber(ctx context.Context) (string, error)
	// Clear deletes stored credentials.
	Clear(ctx context.Context) error
}

type NotificationType string

const (
	NotifyStatus  NotificationType = "connection_status"
	NotifyQR      NotificationType = "qr_generated"
	NotifyReady   NotificationType = "session_ready"
	NotifyMessage NotificationType = "incoming_message"
)

// Notification is what the Tracker hands to listeners after applying a
// change to the record.
type Notification struct {
	Type     NotificationType
	Snapshot model.Snapshot
	Message  *MessageReceived
}

type Listener func(n Notification)
