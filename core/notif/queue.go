package notif

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
)

// Queue holds the notifications that passed filtering. Auto-hide entries are
// expired by a timer; the rest stay until dismissed. Timers are cancelled on
// Dismiss/Close so a torn-down queue leaks nothing.
type Queue struct {
	conf   core.NotifConfig
	filter *Filter

	mu      sync.Mutex
	entries map[string]*entry
	order   []string

	dismissed []func(id string)
	pushed    []func(Notification)
}

type entry struct {
	n     Notification
	timer *time.Timer
}

func NewQueue(conf core.NotifConfig, filter *Filter) *Queue {
	return &Queue{
		conf:    conf,
		filter:  filter,
		entries: make(map[string]*entry),
	}
}

func (q *Queue) OnPushed(fn func(Notification)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushed = append(q.pushed, fn)
}

func (q *Queue) OnDismissed(fn func(id string)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dismissed = append(q.dismissed, fn)
}

// Push runs the candidate through the filter and enqueues it if accepted.
func (q *Queue) Push(category string, sev Severity, message string) (Notification, bool) {
	if !q.filter.ShouldShow(message, sev, category) {
		return Notification{}, false
	}
	return q.add(category, sev, message), true
}

// PushConnection surfaces a connection-status change, subject to the
// connection-specific rules only.
func (q *Queue) PushConnection(event ConnEvent, attempts int, message string) (Notification, bool) {
	if !q.filter.ShouldShowConnection(event, attempts) {
		return Notification{}, false
	}
	var sev Severity
	switch event {
	case ConnEventConnected:
		sev = SeveritySuccess
	case ConnEventError:
		sev = SeverityError
	default:
		sev = SeverityInfo
	}
	return q.add("connection", sev, message), true
}

func (q *Queue) add(category string, sev Severity, message string) Notification {
	n := Notification{
		ID:        uuid.New().String(),
		Category:  category,
		Severity:  sev,
		Message:   message,
		CreatedAt: nowFunc().UTC(),
		AutoHide:  sev != SeverityError,
		Duration:  q.conf.AutoHide,
	}

	q.mu.Lock()
	if q.conf.MaxVisible > 0 {
		for len(q.order) >= q.conf.MaxVisible {
			q.dismissLocked(q.order[0])
		}
	}
	e := &entry{n: n}
	if n.AutoHide && n.Duration > 0 {
		e.timer = time.AfterFunc(n.Duration, func() { q.Dismiss(n.ID) })
	}
	q.entries[n.ID] = e
	q.order = append(q.order, n.ID)
	pushed := q.pushed
	q.mu.Unlock()

	for _, fn := range pushed {
		fn(n)
	}
	return n
}

// Dismiss removes an entry and cancels its expiry timer. Unknown ids are
// silent no-ops.
func (q *Queue) Dismiss(id string) {
	q.mu.Lock()
	ok := q.dismissLocked(id)
	dismissed := q.dismissed
	q.mu.Unlock()

	if ok {
		for _, fn := range dismissed {
			fn(id)
		}
	}
}

func (q *Queue) dismissLocked(id string) bool {
	e, ok := q.entries[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(q.entries, id)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// Active returns the visible notifications in push order.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Notification, 0, len(q.order))
	for _, id := range q.order {
		out = append(out, q.entries[id].n)
	}
	return out
}

// Close cancels all pending expiry timers and empties the queue.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = make(map[string]*entry)
	q.order = nil
}

// String implements fmt.Stringer for debug logs.
func (n Notification) String() string {
	return fmt.Sprintf("[%s/%s] %s", n.Category, n.Severity, n.Message)
}
