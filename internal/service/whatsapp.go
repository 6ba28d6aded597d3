package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/socket"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"gowa-gateway/internal/helper"
	"gowa-gateway/internal/logger"
)

const DefaultReconnectDelay = 5 * time.Second

// WhatsmeowConnector opens sessions on the first device of a sqlstore
// container. Only one linked device is ever used.
type WhatsmeowConnector struct {
	container      *sqlstore.Container
	reconnectDelay time.Duration
	// qrOut receives a terminal rendering of each pairing code, nil disables it.
	qrOut io.Writer
}

func NewWhatsmeowConnector(container *sqlstore.Container, deviceName string, qrOut io.Writer) *WhatsmeowConnector {
	// Shown in the phone's linked devices list.
	store.DeviceProps.Os = proto.String(deviceName)
	return &WhatsmeowConnector{
		container:      container,
		reconnectDelay: DefaultReconnectDelay,
		qrOut:          qrOut,
	}
}

func (c *WhatsmeowConnector) Open(ctx context.Context, sink EventSink) (Session, error) {
	device, err := c.container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("load device: %w", err)
	}

	client := whatsmeow.NewClient(device, logger.NewWhatsmeowLogger("Client"))
	// Reconnects are scheduled by the session so they go through the sink.
	client.EnableAutoReconnect = false

	s := &whatsmeowSession{
		client:         client,
		sink:           sink,
		reconnectDelay: c.reconnectDelay,
		qrOut:          c.qrOut,
	}
	client.AddEventHandler(s.handleEvent)
	return s, nil
}

type whatsmeowSession struct {
	client         *whatsmeow.Client
	sink           EventSink
	reconnectDelay time.Duration
	qrOut          io.Writer

	mu        sync.Mutex
	closed    bool
	cancelQR  context.CancelFunc
	reconnect *time.Timer
}

func (s *whatsmeowSession) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrSessionClosed
	}
	if s.client.Store.ID == nil {
		// The QR channel has to exist before Connect, it is what triggers pairing.
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := s.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get qr channel: %w", err)
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			cancel()
			return ErrSessionClosed
		}
		s.cancelQR = cancel
		s.mu.Unlock()
		go s.consumeQR(qrChan)
	}

	if err := s.client.Connect(); err != nil {
		return err
	}
	// Close may have run while the socket was coming up.
	if s.isClosed() {
		s.client.Disconnect()
		return ErrSessionClosed
	}
	return nil
}

func (s *whatsmeowSession) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if s.isClosed() {
			return
		}
		switch {
		case evt.Event == "code":
			zap.L().Info("new qr code available via GET /api/qr")
			if s.qrOut != nil {
				helper.PrintQR(evt.Code, s.qrOut)
			}
			s.sink.Handle(QRIssued{Code: evt.Code})
		case evt.Event == "success":
			zap.L().Info("qr code scanned, pairing succeeded")
		case evt.Event == "timeout":
			s.sink.Handle(ConnectionFailed{Reason: "qr code scan timed out"})
		case strings.HasPrefix(evt.Event, "err"):
			reason := evt.Event
			if evt.Error != nil {
				reason = evt.Error.Error()
			}
			s.sink.Handle(ConnectionFailed{Reason: "pairing failed: " + reason})
		}
	}
}

func (s *whatsmeowSession) handleEvent(evt interface{}) {
	if s.isClosed() {
		return
	}

	switch v := evt.(type) {
	case *events.Connected:
		if err := s.client.SendPresence(context.Background(), types.PresenceAvailable); err != nil {
			zap.L().Warn("failed to send presence", zap.Error(err))
		}
		s.sink.Handle(ConnectionChanged{Connected: true})

	case *events.PairSuccess:
		zap.L().Info("device paired", zap.String("jid", v.ID.String()), zap.String("platform", v.Platform))

	case *events.Disconnected:
		s.dropped("connection closed", true)

	case *events.StreamReplaced:
		s.dropped("stream replaced by another connection", true)

	case *events.ConnectFailure:
		s.dropped(fmt.Sprintf("connect failure: %s %s", v.Reason, v.Message), !v.Reason.IsLoggedOut())

	case *events.LoggedOut:
		s.dropped(fmt.Sprintf("logged out: %s", v.Reason), false)

	case *events.TemporaryBan:
		s.dropped(fmt.Sprintf("temporary ban: %s", v), false)

	case *events.Message:
		if msg, ok := describeMessage(v); ok {
			s.sink.Handle(msg)
		}

	case *events.Receipt:
		scope := "DM"
		if v.IsGroup {
			scope = "GROUP"
		}
		zap.L().Debug("message update",
			zap.String("status", receiptName(v.Type)),
			zap.String("scope", scope),
			zap.String("from", v.Chat.String()),
			zap.Strings("ids", v.MessageIDs),
		)

	case *events.Presence:
		state := "online"
		if v.Unavailable {
			state = "offline"
		}
		zap.L().Debug("presence update", zap.String("from", v.From.String()), zap.String("state", state))
	}
}

// dropped reports a lost connection and schedules a reconnect unless the
// device was logged out.
func (s *whatsmeowSession) dropped(reason string, reconnect bool) {
	zap.L().Warn("whatsapp connection closed", zap.String("reason", reason), zap.Bool("reconnect", reconnect))
	s.sink.Handle(ConnectionFailed{Reason: reason})
	s.sink.Handle(ConnectionChanged{Connected: false})
	if reconnect {
		s.scheduleReconnect()
	}
}

func (s *whatsmeowSession) scheduleReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = time.AfterFunc(s.reconnectDelay, func() {
		if s.isClosed() {
			return
		}
		zap.L().Info("reconnecting to whatsapp")
		err := s.client.Connect()
		if err == nil || errors.Is(err, whatsmeow.ErrAlreadyConnected) {
			return
		}
		zap.L().Error("reconnect failed", zap.Error(err))
		s.sink.Handle(ConnectionFailed{Reason: err.Error()})
		s.scheduleReconnect()
	})
}

func (s *whatsmeowSession) Identity() string {
	if id := s.client.Store.ID; id != nil {
		return id.String()
	}
	return ""
}

func (s *whatsmeowSession) IsLoggedIn() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

func (s *whatsmeowSession) SendText(ctx context.Context, to, text string) (SendResult, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return SendResult{}, fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	resp, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		if isTransportError(err) {
			return SendResult{}, fmt.Errorf("%w: %v", ErrTransportDropped, err)
		}
		return SendResult{}, err
	}
	return SendResult{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (s *whatsmeowSession) Close() error {
	s.shutdown()
	s.client.Disconnect()
	return nil
}

func (s *whatsmeowSession) Logout(ctx context.Context) error {
	s.shutdown()
	defer s.client.Disconnect()
	// whatsmeow deletes the device from the store on a successful logout.
	return s.client.Logout(ctx)
}

// shutdown stops QR pairing and pending reconnects and mutes further events.
func (s *whatsmeowSession) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	if s.cancelQR != nil {
		s.cancelQR()
		s.cancelQR = nil
	}
}

func (s *whatsmeowSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func isTransportError(err error) bool {
	return errors.Is(err, whatsmeow.ErrNotConnected) ||
		errors.Is(err, whatsmeow.ErrNotLoggedIn) ||
		errors.Is(err, socket.ErrSocketClosed)
}
