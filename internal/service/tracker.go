package service

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"gowa-gateway/internal/helper"
	"gowa-gateway/internal/metrics"
	"gowa-gateway/internal/model"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultReadyTimeout = 10 * time.Second

	logContentLimit = 100
)

type TrackerOptions struct {
	// PollInterval is how often the live session is probed for readiness
	// after a connect.
	PollInterval time.Duration
	// ReadyTimeout forces readiness when the probe never succeeds but the
	// session already has an identity.
	ReadyTimeout time.Duration
}

func (o TrackerOptions) withDefaults() TrackerOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = DefaultReadyTimeout
	}
	return o
}

// Tracker owns the ConnectionRecord and the live Session handle. Every
// mutation goes through its methods; the mutex is never held across calls
// into the session.
type Tracker struct {
	connector Connector
	store     SessionStore
	opts      TrackerOptions

	mu          sync.Mutex
	record      model.ConnectionRecord
	session     Session
	cancelReady context.CancelFunc
	listeners   []Listener
}

func NewTracker(connector Connector, store SessionStore, opts TrackerOptions) *Tracker {
	t := &Tracker{
		connector: connector,
		store:     store,
		opts:      opts.withDefaults(),
		record:    model.NewConnectionRecord(),
	}
	metrics.SetConnectionStatus(string(t.record.Status), false)
	return t
}

// Subscribe registers a listener. Listeners run synchronously after each
// change, outside the lock, so they must not block.
func (t *Tracker) Subscribe(l Listener) {
	t.mu.Lock()
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() model.Snapshot {
	t.mu.Lock()
	rec := t.record
	sess := t.session
	t.mu.Unlock()

	snap := model.Snapshot{ConnectionRecord: rec, HasSession: sess != nil}
	if sess != nil {
		snap.SocketReady = sess.Identity() != ""
	}
	return snap
}

// StartConnection opens a session with stored credentials, or starts QR
// pairing when none exist. It is a no-op while an attempt is in flight.
func (t *Tracker) StartConnection(ctx context.Context) error {
	t.mu.Lock()
	if t.record.Status == model.StatusConnecting {
		t.mu.Unlock()
		zap.L().Debug("connection attempt already in progress")
		return nil
	}
	t.record.Status = model.StatusConnecting
	t.record.IsReady = false
	t.record.CurrentQR = ""
	t.record.LastError = ""
	t.stopReadyLocked()
	prev := t.session
	t.session = nil
	t.mu.Unlock()
	t.notify(Notification{Type: NotifyStatus})

	if prev != nil {
		if err := prev.Close(); err != nil {
			zap.L().Warn("failed to close previous session", zap.Error(err))
		}
	}

	zap.L().Info("initializing whatsapp connection")
	sess, err := t.connector.Open(ctx, t)
	if err != nil {
		t.connectFailed(fmt.Errorf("open session: %w", err))
		return err
	}

	t.mu.Lock()
	t.session = sess
	t.mu.Unlock()

	if err := sess.Connect(ctx); err != nil {
		t.mu.Lock()
		owned := t.session == sess
		if owned {
			t.session = nil
		}
		t.mu.Unlock()
		if cerr := sess.Close(); cerr != nil {
			zap.L().Debug("close after failed connect", zap.Error(cerr))
		}
		if !owned {
			// The record already belongs to whoever released the handle.
			return nil
		}
		t.connectFailed(fmt.Errorf("connect: %w", err))
		return err
	}

	// The handle was released while Connect was in flight.
	t.mu.Lock()
	orphaned := t.session != sess
	t.mu.Unlock()
	if orphaned {
		zap.L().Info("connection attempt superseded, closing its session")
		if err := sess.Close(); err != nil {
			zap.L().Debug("close superseded session", zap.Error(err))
		}
	}
	return nil
}

func (t *Tracker) connectFailed(err error) {
	zap.L().Error("failed to initialize whatsapp", zap.Error(err))
	t.mu.Lock()
	t.record.Status = model.StatusDisconnected
	t.record.IsReady = false
	t.record.LastError = err.Error()
	t.mu.Unlock()
	t.notify(Notification{Type: NotifyStatus})
}

// Handle applies a session event to the record.
func (t *Tracker) Handle(evt Event) {
	switch e := evt.(type) {
	case ConnectionChanged:
		t.connectionChanged(e.Connected)
	case QRIssued:
		t.mu.Lock()
		t.stopReadyLocked()
		t.record.Status = model.StatusConnecting
		t.record.IsReady = false
		t.record.CurrentQR = e.Code
		t.mu.Unlock()
		metrics.RecordQRIssued()
		zap.L().Info("qr code received, scan it with whatsapp")
		t.notify(Notification{Type: NotifyQR})
	case ConnectionFailed:
		t.mu.Lock()
		t.stopReadyLocked()
		t.record.Status = model.StatusDisconnected
		t.record.IsReady = false
		t.record.LastError = e.Reason
		t.mu.Unlock()
		zap.L().Warn("whatsapp connection error", zap.String("reason", e.Reason))
		t.notify(Notification{Type: NotifyStatus})
	case MessageReceived:
		logInbound(e)
		metrics.RecordMessageReceived(e.Type)
		msg := e
		t.notify(Notification{Type: NotifyMessage, Message: &msg})
	default:
		zap.L().Warn("unhandled session event", zap.String("type", fmt.Sprintf("%T", evt)))
	}
}

func (t *Tracker) connectionChanged(connected bool) {
	sess := t.currentSession()
	identity := ""
	if sess != nil {
		identity = sess.Identity()
	}

	var raceCtx context.Context
	t.mu.Lock()
	t.stopReadyLocked()
	t.record.IsReady = false
	if connected {
		t.record.Status = model.StatusConnected
	} else {
		t.record.Status = model.StatusDisconnected
	}
	if connected && identity != "" {
		t.record.CurrentQR = ""
		t.record.PhoneNumber = helper.ExtractNumber(identity)
		var cancel context.CancelFunc
		raceCtx, cancel = context.WithCancel(context.Background())
		t.cancelReady = cancel
	}
	t.mu.Unlock()

	if connected {
		zap.L().Info("whatsapp connected", zap.String("identity", identity))
	} else {
		zap.L().Info("whatsapp disconnected")
	}
	t.notify(Notification{Type: NotifyStatus})

	if raceCtx != nil {
		go t.awaitReady(raceCtx, sess)
	}
}

// awaitReady polls the session until it reports logged in. If that never
// happens before ReadyTimeout but the identity is present, readiness is
// forced anyway.
func (t *Tracker) awaitReady(ctx context.Context, sess Session) {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(t.opts.ReadyTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sess.IsLoggedIn() && t.Snapshot().IsConnected() {
				t.setReady(ctx, false, "")
				return
			}
		case <-deadline.C:
			if sess.Identity() != "" {
				t.setReady(ctx, true, "timeout check")
			}
			return
		}
	}
}

// MarkReady flags the session as safe to send on.
func (t *Tracker) MarkReady() {
	t.setReady(context.Background(), false, "")
}

// ForceReady sets readiness without the reconnect bookkeeping of MarkReady.
func (t *Tracker) ForceReady(reason string) {
	t.setReady(context.Background(), true, reason)
}

func (t *Tracker) setReady(race context.Context, forced bool, reason string) {
	t.mu.Lock()
	if race.Err() != nil {
		t.mu.Unlock()
		return
	}
	if t.record.Status != model.StatusConnected || (forced && t.record.IsReady) {
		t.mu.Unlock()
		return
	}
	t.stopReadyLocked()
	t.record.IsReady = true
	t.record.CurrentQR = ""
	reconnected := t.record.HasReconnected
	if !forced {
		t.record.HasReconnected = true
	}
	t.mu.Unlock()

	switch {
	case forced:
		zap.L().Info("whatsapp connection ready", zap.String("reason", reason))
	case reconnected:
		zap.L().Info("whatsapp reconnected and ready")
	default:
		zap.L().Info("whatsapp connected and ready")
	}
	t.notify(Notification{Type: NotifyReady})
}

// Disconnect closes the live session and resets the record. The reset
// happens even when closing fails; the close error is returned for logging.
func (t *Tracker) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	sess := t.session
	t.session = nil
	t.stopReadyLocked()
	t.mu.Unlock()

	var closeErr error
	if sess != nil {
		if closeErr = sess.Close(); closeErr != nil {
			zap.L().Warn("failed to close whatsapp session", zap.Error(closeErr))
		}
	}

	t.mu.Lock()
	t.record = model.NewConnectionRecord()
	t.mu.Unlock()
	zap.L().Info("whatsapp disconnected by request")
	t.notify(Notification{Type: NotifyStatus})
	return closeErr
}

// Logout unlinks the device. Without a logged in session the stored
// credentials are deleted directly.
func (t *Tracker) Logout(ctx context.Context) error {
	t.mu.Lock()
	sess := t.session
	t.session = nil
	t.stopReadyLocked()
	t.mu.Unlock()

	var err error
	if sess != nil && sess.IsLoggedIn() {
		err = sess.Logout(ctx)
	} else {
		if sess != nil {
			if cerr := sess.Close(); cerr != nil {
				zap.L().Debug("close before clearing session", zap.Error(cerr))
			}
		}
		err = t.store.Clear(ctx)
	}

	t.mu.Lock()
	t.record = model.NewConnectionRecord()
	t.mu.Unlock()
	t.notify(Notification{Type: NotifyStatus})
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	zap.L().Info("whatsapp session logged out")
	return nil
}

// MarkTransportDropped records a connection loss detected while sending.
func (t *Tracker) MarkTransportDropped() {
	t.mu.Lock()
	t.stopReadyLocked()
	t.record.Status = model.StatusDisconnected
	t.record.IsReady = false
	t.mu.Unlock()
	zap.L().Warn("whatsapp connection dropped while sending")
	t.notify(Notification{Type: NotifyStatus})
}

// SetPhoneNumber records the number a connection attempt is made for. It is
// ignored while connected, the live identity wins then.
func (t *Tracker) SetPhoneNumber(number string) {
	t.mu.Lock()
	if t.record.Status != model.StatusConnected {
		t.record.PhoneNumber = number
	}
	t.mu.Unlock()
}

func (t *Tracker) SendText(ctx context.Context, jid, text string) (SendResult, error) {
	sess := t.currentSession()
	if sess == nil {
		return SendResult{}, ErrNoSession
	}
	return sess.SendText(ctx, jid, text)
}

// AutoConnect reconnects at startup when credentials are stored, then waits
// and logs how the attempt went.
func (t *Tracker) AutoConnect(ctx context.Context, wait time.Duration) {
	number, err := t.store.PersistedNumber(ctx)
	if err != nil {
		zap.L().Error("auto-connect: failed to read session store", zap.Error(err))
		return
	}
	if number == "" {
		zap.L().Info("no saved session, connect via POST /api/connect")
		return
	}

	zap.L().Info("saved session found, auto-connecting", zap.String("number", number))
	t.SetPhoneNumber(number)
	if err := t.StartConnection(ctx); err != nil {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(wait):
	}

	snap := t.Snapshot()
	switch {
	case snap.IsConnected() && snap.IsReady:
		zap.L().Info("auto-connect succeeded, whatsapp ready", zap.String("number", snap.PhoneNumber))
	case snap.IsConnected():
		zap.L().Info("auto-connect: connected, waiting for session to stabilize")
	default:
		zap.L().Warn("auto-connect: not connected yet", zap.String("status", string(snap.Status)))
	}
}

func (t *Tracker) currentSession() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

func (t *Tracker) stopReadyLocked() {
	if t.cancelReady != nil {
		t.cancelReady()
		t.cancelReady = nil
	}
}

func (t *Tracker) notify(n Notification) {
	n.Snapshot = t.Snapshot()
	metrics.SetConnectionStatus(string(n.Snapshot.Status), n.Snapshot.IsReady)

	t.mu.Lock()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()
	for _, l := range listeners {
		l(n)
	}
}

func logInbound(m MessageReceived) {
	scope := "DM"
	if m.IsGroup {
		scope = "GROUP"
	}
	zap.L().Info("incoming message",
		zap.String("type", m.Type),
		zap.String("scope", scope),
		zap.String("from", m.Chat),
	)
	if m.Content != "" {
		zap.L().Info("message content", zap.String("content", truncate(m.Content, logContentLimit)))
	}
	zap.L().Debug("incoming message id", zap.String("id", m.ID))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
