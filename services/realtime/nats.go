package realtimesvc

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/realtime"
)

// subject suffix -> normalized event kind
var subjectKinds = map[string]string{
	"participant.joined":  realtime.KindParticipantJoined,
	"participant.left":    realtime.KindParticipantLeft,
	"participant.updated": realtime.KindParticipantUpdate,
	"participant.bulk":    realtime.KindBulkUpdate,
}

// NatsTransport is a realtime.Transport backed by a NATS connection. Each
// Connect dials once and fails fast; the owning Channel drives retries, so
// the client's own reconnect machinery is disabled.
type NatsTransport struct {
	conf core.RealtimeConfig

	mu   sync.Mutex
	conn *nats.Conn
	subs []*nats.Subscription
}

var _ realtime.Transport = (*NatsTransport)(nil)

func NewNatsTransport(conf core.RealtimeConfig) *NatsTransport {
	return &NatsTransport{conf: conf}
}

func (t *NatsTransport) Connect(recv func(kind string, payload []byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil && !t.conn.IsClosed() {
		return nil
	}

	conn, err := nats.Connect(t.conf.NatsURL,
		nats.Name(t.conf.SubjectPrefix+"-tracker"),
		nats.NoReconnect(),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", t.conf.NatsURL)
	}

	subs := make([]*nats.Subscription, 0, len(subjectKinds))
	for suffix, kind := range subjectKinds {
		kind := kind
		sub, err := conn.Subscribe(t.conf.SubjectPrefix+"."+suffix, func(m *nats.Msg) {
			recv(kind, m.Data)
		})
		if err != nil {
			conn.Close()
			return errors.Wrapf(err, "subscribing to %s", suffix)
		}
		subs = append(subs, sub)
	}

	t.conn = conn
	t.subs = subs
	return nil
}

func (t *NatsTransport) PublishHeartbeat(at time.Time) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn == nil || conn.IsClosed() {
		return errors.New("not connected")
	}
	data, err := json.Marshal(struct {
		At time.Time `json:"at"`
	}{At: at.UTC()})
	if err != nil {
		return errors.Wrap(err, "marshalling heartbeat")
	}
	return conn.Publish(t.conf.SubjectPrefix+".heartbeat", data)
}

func (t *NatsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return nil
	}
	for _, sub := range t.subs {
		_ = sub.Unsubscribe()
	}
	t.subs = nil
	err := t.conn.Drain()
	t.conn = nil
	return err
}
