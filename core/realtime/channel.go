package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/session"
)

var nowFunc = time.Now // mockable

// Channel maintains the logical realtime connection: a state machine over
// disconnected/connecting/connected/error with heartbeating while connected
// and bounded linear-backoff reconnection on failure. Exceeding the attempt
// cap is terminal until Connect is invoked again.
//
// TODO: detect stale heartbeats; a transport that silently stops delivering
// is currently never noticed.
type Channel struct {
	conf   core.RealtimeConfig
	log    core.Logger
	tr     Transport
	events *Events

	mu             sync.Mutex
	state          State
	hbDone         chan struct{}
	reconnectTimer *time.Timer
}

func NewChannel(conf core.RealtimeConfig, log core.Logger, tr Transport) *Channel {
	return &Channel{
		conf:   conf,
		log:    log,
		tr:     tr,
		events: &Events{},
		state:  State{Status: StatusDisconnected},
	}
}

func (c *Channel) Events() *Events {
	return c.events
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts a connection attempt from the disconnected or error state.
// It returns immediately; progress surfaces through OnStateChanged.
func (c *Channel) Connect() {
	c.mu.Lock()
	switch c.state.Status {
	case StatusConnected, StatusConnecting:
		c.mu.Unlock()
		return
	}
	c.cancelReconnectLocked()
	c.state.Status = StatusConnecting
	c.state.Reason = ""
	state := c.state
	c.mu.Unlock()

	c.events.stateDidChange(state)
	go c.attempt()
}

func (c *Channel) attempt() {
	err := c.tr.Connect(c.receive)

	c.mu.Lock()
	if c.state.Status != StatusConnecting {
		// torn down while handshaking; a dial that won the race must not
		// leak a live transport
		c.mu.Unlock()
		if err == nil {
			if cerr := c.tr.Close(); cerr != nil && c.log != nil {
				c.log.Warn(fmt.Sprintf("closing abandoned realtime transport: %v", cerr))
			}
		}
		return
	}

	if err != nil {
		c.state.ReconnectAttempts++
		attempts := c.state.ReconnectAttempts
		c.state.Status = StatusError
		c.state.Reason = err.Error()
		if attempts < c.conf.MaxReconnectAttempts {
			delay := c.conf.ReconnectBaseDelay * time.Duration(attempts)
			c.reconnectTimer = time.AfterFunc(delay, c.reconnect)
		}
		state := c.state
		c.mu.Unlock()

		if c.log != nil {
			c.log.Warn(fmt.Sprintf("realtime connect attempt %d failed: %v", attempts, err))
		}
		c.events.stateDidChange(state)
		return
	}

	c.state.Status = StatusConnected
	c.state.Reason = ""
	c.state.ReconnectAttempts = 0
	c.state.LastHeartbeat = nowFunc().UTC()
	done := make(chan struct{})
	c.hbDone = done
	state := c.state
	c.mu.Unlock()

	c.events.stateDidChange(state)
	go c.heartbeatLoop(done)
}

// reconnect is the backoff-timer callback.
func (c *Channel) reconnect() {
	c.mu.Lock()
	switch c.state.Status {
	case StatusConnected, StatusConnecting, StatusDisconnected:
		c.mu.Unlock()
		return
	}
	c.state.Status = StatusConnecting
	c.state.Reason = ""
	state := c.state
	c.mu.Unlock()

	c.events.stateDidChange(state)
	go c.attempt()
}

// Disconnect cancels the heartbeat and any pending reconnect, closes the
// transport and resets the attempt counter. Idempotent.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()
	wasDisconnected := c.state.Status == StatusDisconnected
	c.state = State{Status: StatusDisconnected}
	state := c.state
	c.mu.Unlock()

	if err := c.tr.Close(); err != nil && c.log != nil {
		c.log.Warn(fmt.Sprintf("closing realtime transport: %v", err))
	}
	if !wasDisconnected {
		c.events.stateDidChange(state)
	}
}

// HandleVisible reconnects when the host regains visibility while not connected.
func (c *Channel) HandleVisible() {
	if c.State().Status != StatusConnected {
		c.Connect()
	}
}

// HandleOnline reconnects when the network comes back.
func (c *Channel) HandleOnline() {
	if c.State().Status != StatusConnected {
		c.Connect()
	}
}

// HandleOffline forces the error state when the network goes away.
func (c *Channel) HandleOffline() {
	c.mu.Lock()
	c.cancelReconnectLocked()
	c.stopHeartbeatLocked()
	c.state.Status = StatusError
	c.state.Reason = "network offline"
	state := c.state
	c.mu.Unlock()

	c.events.stateDidChange(state)
}

func (c *Channel) cancelReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Channel) stopHeartbeatLocked() {
	if c.hbDone != nil {
		close(c.hbDone)
		c.hbDone = nil
	}
}

func (c *Channel) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(c.conf.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.state.Status != StatusConnected {
				c.mu.Unlock()
				return
			}
			at := nowFunc().UTC()
			c.state.LastHeartbeat = at
			c.mu.Unlock()

			if err := c.tr.PublishHeartbeat(at); err != nil && c.log != nil {
				c.log.Warn(fmt.Sprintf("publishing heartbeat: %v", err))
			}
			c.events.heartbeatDidFire(at)
		case <-done:
			return
		}
	}
}

// receive normalizes a raw transport event and republishes it. Malformed
// payloads are dropped with a warning; they must never fault the channel or
// the ledger behind it. Deliveries from a torn-down transport are dropped
// too, so nothing reaches the ledger while the channel reports error or
// disconnected.
func (c *Channel) receive(kind string, payload []byte) {
	c.mu.Lock()
	status := c.state.Status
	c.mu.Unlock()
	switch status {
	case StatusDisconnected, StatusError:
		return
	}

	warn := func(err error) {
		if c.log != nil {
			c.log.Warn(fmt.Sprintf("dropping malformed %s payload: %v", kind, err))
		}
	}

	switch kind {
	case KindParticipantJoined:
		var j session.Join
		if err := json.Unmarshal(payload, &j); err != nil {
			warn(err)
			return
		}
		c.events.participantDidJoin(j)
	case KindParticipantLeft:
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			warn(fmt.Errorf("missing id: %v", err))
			return
		}
		c.events.participantDidLeave(p.ID)
	case KindParticipantUpdate:
		var p struct {
			ID string `json:"id"`
			session.Patch
		}
		if err := json.Unmarshal(payload, &p); err != nil || p.ID == "" {
			warn(fmt.Errorf("missing id: %v", err))
			return
		}
		c.events.participantDidUpdate(p.ID, p.Patch)
	case KindBulkUpdate:
		var p struct {
			Participants []session.Join `json:"participants"`
		}
		if err := json.Unmarshal(payload, &p); err != nil {
			warn(err)
			return
		}
		c.events.bulkDidUpdate(p.Participants)
	default:
		if c.log != nil {
			c.log.Warn(fmt.Sprintf("dropping unknown realtime event %q", kind))
		}
	}
}
