package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/socket"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"gowa-gateway/database"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Handle(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) got() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// openTestSession opens an unpaired whatsmeow session on a throwaway sqlite
// store. Nothing here touches the network.
func openTestSession(t *testing.T) (*whatsmeowSession, *recordingSink) {
	t.Helper()
	ctx := context.Background()
	container, err := database.OpenSessionStore(ctx, t.TempDir(), "")
	if err != nil {
		t.Fatalf("OpenSessionStore() error = %v", err)
	}
	t.Cleanup(func() { _ = container.Close() })

	conn := NewWhatsmeowConnector(container, "Gateway Test", nil)
	// Long enough that a scheduled reconnect never fires during a test.
	conn.reconnectDelay = time.Hour

	sink := &recordingSink{}
	sess, err := conn.Open(ctx, sink)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s := sess.(*whatsmeowSession)
	t.Cleanup(func() { _ = s.Close() })
	return s, sink
}

func (s *whatsmeowSession) reconnectArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnect != nil
}

func TestSessionEventMapping(t *testing.T) {
	ban := &events.TemporaryBan{Code: events.TempBanSentToTooManyPeople, Expire: time.Hour}
	chat := types.NewJID("6281234567890", types.DefaultUserServer)

	tests := []struct {
		name          string
		evt           interface{}
		want          []Event
		wantReconnect bool
	}{
		{
			name: "connected",
			evt:  &events.Connected{},
			want: []Event{ConnectionChanged{Connected: true}},
		},
		{
			name: "disconnected",
			evt:  &events.Disconnected{},
			want: []Event{
				ConnectionFailed{Reason: "connection closed"},
				ConnectionChanged{Connected: false},
			},
			wantReconnect: true,
		},
		{
			name: "stream replaced",
			evt:  &events.StreamReplaced{},
			want: []Event{
				ConnectionFailed{Reason: "stream replaced by another connection"},
				ConnectionChanged{Connected: false},
			},
			wantReconnect: true,
		},
		{
			name: "connect failure retried",
			evt:  &events.ConnectFailure{Reason: events.ConnectFailureServiceUnavailable, Message: "try later"},
			want: []Event{
				ConnectionFailed{Reason: fmt.Sprintf("connect failure: %s try later", events.ConnectFailureServiceUnavailable)},
				ConnectionChanged{Connected: false},
			},
			wantReconnect: true,
		},
		{
			name: "connect failure logged out",
			evt:  &events.ConnectFailure{Reason: events.ConnectFailureLoggedOut},
			want: []Event{
				ConnectionFailed{Reason: fmt.Sprintf("connect failure: %s ", events.ConnectFailureLoggedOut)},
				ConnectionChanged{Connected: false},
			},
		},
		{
			name: "logged out",
			evt:  &events.LoggedOut{Reason: events.ConnectFailureLoggedOut},
			want: []Event{
				ConnectionFailed{Reason: fmt.Sprintf("logged out: %s", events.ConnectFailureLoggedOut)},
				ConnectionChanged{Connected: false},
			},
		},
		{
			name: "temporary ban",
			evt:  ban,
			want: []Event{
				ConnectionFailed{Reason: "temporary ban: " + ban.String()},
				ConnectionChanged{Connected: false},
			},
		},
		{
			name: "text message",
			evt:  messageEvent(chat, false, &waE2E.Message{Conversation: proto.String("halo")}),
			want: []Event{MessageReceived{
				ID:        "3EB0C767D26A1D8F",
				Chat:      chat.String(),
				Sender:    chat.String(),
				PushName:  "Budi",
				Type:      "Text",
				Content:   "halo",
				Timestamp: time.Unix(1700000000, 0),
			}},
		},
		{
			name: "status broadcast ignored",
			evt:  messageEvent(types.StatusBroadcastJID, false, &waE2E.Message{Conversation: proto.String("story")}),
		},
		{
			name: "receipt only logged",
			evt:  &events.Receipt{MessageSource: types.MessageSource{Chat: chat}, Type: types.ReceiptTypeRead},
		},
		{
			name: "presence only logged",
			evt:  &events.Presence{From: chat, Unavailable: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, sink := openTestSession(t)

			sess.handleEvent(tt.evt)

			if got := sink.got(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %#v, want %#v", got, tt.want)
			}
			if got := sess.reconnectArmed(); got != tt.wantReconnect {
				t.Errorf("reconnect armed = %v, want %v", got, tt.wantReconnect)
			}
		})
	}
}

func TestClosedSessionIsMuted(t *testing.T) {
	sess, sink := openTestSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	sess.handleEvent(&events.Disconnected{})

	if got := sink.got(); len(got) != 0 {
		t.Errorf("closed session emitted %v", got)
	}
	if sess.reconnectArmed() {
		t.Error("closed session armed a reconnect")
	}
	if err := sess.Connect(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Connect() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestCloseStopsPendingReconnect(t *testing.T) {
	sess, _ := openTestSession(t)
	sess.handleEvent(&events.Disconnected{})
	if !sess.reconnectArmed() {
		t.Fatal("reconnect not armed after disconnect")
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if sess.reconnectArmed() {
		t.Error("reconnect still armed after Close")
	}
}

func TestConsumeQR(t *testing.T) {
	pairErr := errors.New("unexpected pair-device stanza")

	tests := []struct {
		name      string
		items     []whatsmeow.QRChannelItem
		want      []Event
		wantPrint bool
	}{
		{
			name:      "code",
			items:     []whatsmeow.QRChannelItem{{Event: whatsmeow.QRChannelEventCode, Code: "2@abc,def,ghi"}},
			want:      []Event{QRIssued{Code: "2@abc,def,ghi"}},
			wantPrint: true,
		},
		{
			name:  "success",
			items: []whatsmeow.QRChannelItem{whatsmeow.QRChannelSuccess},
		},
		{
			name:  "timeout",
			items: []whatsmeow.QRChannelItem{whatsmeow.QRChannelTimeout},
			want:  []Event{ConnectionFailed{Reason: "qr code scan timed out"}},
		},
		{
			name:  "pair error with detail",
			items: []whatsmeow.QRChannelItem{{Event: whatsmeow.QRChannelEventError, Error: pairErr}},
			want:  []Event{ConnectionFailed{Reason: "pairing failed: " + pairErr.Error()}},
		},
		{
			name:  "unexpected state",
			items: []whatsmeow.QRChannelItem{whatsmeow.QRChannelErrUnexpectedEvent},
			want:  []Event{ConnectionFailed{Reason: "pairing failed: " + whatsmeow.QRChannelErrUnexpectedEvent.Event}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, sink := openTestSession(t)
			var out bytes.Buffer
			sess.qrOut = &out

			ch := make(chan whatsmeow.QRChannelItem, len(tt.items))
			for _, item := range tt.items {
				ch <- item
			}
			close(ch)
			sess.consumeQR(ch)

			if got := sink.got(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %#v, want %#v", got, tt.want)
			}
			if printed := out.Len() > 0; printed != tt.wantPrint {
				t.Errorf("qr printed = %v, want %v", printed, tt.wantPrint)
			}
		})
	}
}

func TestIsTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "not connected", err: whatsmeow.ErrNotConnected, want: true},
		{name: "not logged in", err: whatsmeow.ErrNotLoggedIn, want: true},
		{name: "socket closed wrapped", err: fmt.Errorf("send node: %w", socket.ErrSocketClosed), want: true},
		{name: "server error", err: errors.New("server returned error 479"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransportError(tt.err); got != tt.want {
				t.Errorf("isTransportError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSendTextWithoutConnection(t *testing.T) {
	sess, _ := openTestSession(t)

	_, err := sess.SendText(context.Background(), "6281234567890@s.whatsapp.net", "halo")
	if !errors.Is(err, ErrTransportDropped) {
		t.Errorf("SendText() error = %v, want ErrTransportDropped", err)
	}

	if _, err := sess.SendText(context.Background(), "62.81.234@s.whatsapp.net", "halo"); err == nil || errors.Is(err, ErrTransportDropped) {
		t.Errorf("SendText(bad jid) error = %v, want parse error", err)
	}
}
