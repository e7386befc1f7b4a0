package realtime

import (
	"sync"
	"time"

	"github.com/trezcool/mahudhurio/core/session"
)

// Events is a typed observer registry for channel activity. Callbacks run
// synchronously on the goroutine that produced the event.
type Events struct {
	mu           sync.RWMutex
	stateChanged []func(State)
	heartbeat    []func(at time.Time)
	joined       []func(session.Join)
	left         []func(id string)
	updated      []func(id string, patch session.Patch)
	bulk         []func([]session.Join)
}

func (e *Events) OnStateChanged(fn func(State)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateChanged = append(e.stateChanged, fn)
}

func (e *Events) OnHeartbeat(fn func(at time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.heartbeat = append(e.heartbeat, fn)
}

func (e *Events) OnParticipantJoined(fn func(session.Join)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, fn)
}

func (e *Events) OnParticipantLeft(fn func(id string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.left = append(e.left, fn)
}

func (e *Events) OnParticipantUpdated(fn func(id string, patch session.Patch)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated = append(e.updated, fn)
}

func (e *Events) OnBulkUpdate(fn func([]session.Join)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bulk = append(e.bulk, fn)
}

func (e *Events) stateDidChange(state State) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.stateChanged {
		fn(state)
	}
}

func (e *Events) heartbeatDidFire(at time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.heartbeat {
		fn(at)
	}
}

func (e *Events) participantDidJoin(j session.Join) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.joined {
		fn(j)
	}
}

func (e *Events) participantDidLeave(id string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.left {
		fn(id)
	}
}

func (e *Events) participantDidUpdate(id string, patch session.Patch) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.updated {
		fn(id, patch)
	}
}

func (e *Events) bulkDidUpdate(joins []session.Join) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.bulk {
		fn(joins)
	}
}
