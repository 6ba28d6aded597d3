package model

type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ConnectionRecord is the observable state of the single linked session.
// It is owned and mutated by service.Tracker only.
type ConnectionRecord struct {
	Status ConnectionStatus
	// IsReady is narrower than Status == StatusConnected: the live identity
	// has been confirmed and sending is safe.
	IsReady bool
	// CurrentQR holds the pairing payload while no credentials exist yet.
	CurrentQR string
	LastError string
	// PhoneNumber may carry a ":device" suffix, see helper.BaseNumber.
	PhoneNumber    string
	HasReconnected bool
}

// NewConnectionRecord returns the empty record used at startup and after
// an explicit disconnect.
func NewConnectionRecord() ConnectionRecord {
	return ConnectionRecord{Status: StatusDisconnected}
}

func (r ConnectionRecord) IsConnected() bool {
	return r.Status == StatusConnected
}

func (r ConnectionRecord) HasQR() bool {
	return r.CurrentQR != ""
}

// Snapshot is a point-in-time copy of the record plus the live session
// probe, handed to HTTP handlers.
type Snapshot struct {
	ConnectionRecord
	// SocketReady is true when the live session reports an identity.
	SocketReady bool
	// HasSession is true when a session handle is held, connected or not.
	HasSession bool
}
