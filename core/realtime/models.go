package realtime

import (
	"time"
)

type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// State is the channel's connection state. It is owned exclusively by the
// Channel; consumers only ever see copies.
type State struct {
	Status            Status    `json:"status"`
	Reason            string    `json:"reason,omitempty"`
	LastHeartbeat     time.Time `json:"last_heartbeat"` // UTC
	ReconnectAttempts int       `json:"reconnect_attempts"`
}

// Normalized inbound event kinds, as delivered by a Transport.
const (
	KindParticipantJoined = "participant_joined"
	KindParticipantLeft   = "participant_left"
	KindParticipantUpdate = "participant_update"
	KindBulkUpdate        = "bulk_participant_update"
)

// Transport is the wire-level collaborator behind a Channel: it performs the
// handshake, delivers raw inbound events to recv, and publishes heartbeats.
// Implementations must not retry on their own; reconnection policy belongs to
// the Channel.
type Transport interface {
	Connect(recv func(kind string, payload []byte)) error
	PublishHeartbeat(at time.Time) error
	Close() error
}
