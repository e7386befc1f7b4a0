package session

import (
	"sync"
	"time"
)

// Events is a typed observer registry for ledger mutations; UI/integration
// code subscribes here instead of coupling to the Service internals.
// Callbacks run synchronously on the mutating goroutine, after the ledger
// mutation committed.
type Events struct {
	mu      sync.RWMutex
	joined  []func(Record)
	removed []func(Record)
	updated []func(Record)
	started []func(meetingID string, at time.Time)
	ended   []func(meetingID string, stats Stats)
}

func (e *Events) OnParticipantJoined(fn func(Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, fn)
}

func (e *Events) OnParticipantRemoved(fn func(Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = append(e.removed, fn)
}

func (e *Events) OnParticipantUpdated(fn func(Record)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated = append(e.updated, fn)
}

func (e *Events) OnSessionStarted(fn func(meetingID string, at time.Time)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started = append(e.started, fn)
}

func (e *Events) OnSessionEnded(fn func(meetingID string, stats Stats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ended = append(e.ended, fn)
}

func (e *Events) participantJoined(rec Record) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.joined {
		fn(rec)
	}
}

func (e *Events) participantRemoved(rec Record) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.removed {
		fn(rec)
	}
}

func (e *Events) participantUpdated(rec Record) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.updated {
		fn(rec)
	}
}

func (e *Events) sessionStarted(meetingID string, at time.Time) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.started {
		fn(meetingID, at)
	}
}

func (e *Events) sessionEnded(meetingID string, stats Stats) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.ended {
		fn(meetingID, stats)
	}
}
