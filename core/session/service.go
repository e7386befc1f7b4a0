package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// errors
	ErrSessionEnded = errors.New("session has ended")
	ErrNameRequired = errors.New("participant name is required")

	nowFunc = time.Now // mockable
)

// Service is the authoritative participant ledger for one meeting session.
// It is the sole mutator of its records; all operations are atomic from the
// caller's perspective. Unknown-id updates/removes are silent no-ops so that
// out-of-order or duplicate channel events never fault the ledger.
type Service struct {
	conf    core.SessionConfig
	log     core.Logger
	writers []*storeWriter
	events  *Events

	mu        sync.Mutex
	meetingID string
	state     State
	startedAt time.Time
	endedAt   *time.Time
	seq       int
	records   map[string]*Record
	order     []string // insertion order

	refreshDone chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
}

func NewService(conf core.SessionConfig, log core.Logger, stores ...Store) *Service {
	svc := &Service{
		conf:        conf,
		log:         log,
		events:      &Events{},
		records:     make(map[string]*Record),
		refreshDone: make(chan struct{}),
	}
	for _, store := range stores {
		w := &storeWriter{store: store, kick: make(chan struct{}, 1)}
		svc.writers = append(svc.writers, w)
		svc.wg.Add(1)
		go w.run(log, svc.refreshDone, &svc.wg)
	}
	return svc
}

func (svc *Service) Events() *Events {
	return svc.events
}

// StartRefresh launches the background duration refresh. Call Close to stop it.
func (svc *Service) StartRefresh() {
	if svc.conf.RefreshInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(svc.conf.RefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				svc.RefreshDurations()
			case <-svc.refreshDone:
				return
			}
		}
	}()
}

// Close stops the refresh tick and the store writers, flushing any pending
// snapshot before returning.
func (svc *Service) Close() {
	svc.closeOnce.Do(func() { close(svc.refreshDone) })
	svc.wg.Wait()
}

// Start transitions the session idle → active. Starting an active session is
// a no-op, except that an auto-activated session without a meeting id adopts
// the given one; an ended session must be cleared first.
func (svc *Service) Start(meetingID string) error {
	svc.mu.Lock()
	switch svc.state {
	case StateActive:
		if svc.meetingID == "" && meetingID != "" {
			svc.meetingID = meetingID
			at := svc.startedAt
			svc.mu.Unlock()

			svc.events.sessionStarted(meetingID, at)
			svc.persist()
			return nil
		}
		svc.mu.Unlock()
		return nil
	case StateEnded:
		svc.mu.Unlock()
		return ErrSessionEnded
	}
	svc.meetingID = meetingID
	svc.state = StateActive
	svc.startedAt = nowFunc().UTC()
	at := svc.startedAt
	svc.mu.Unlock()

	svc.events.sessionStarted(meetingID, at)
	svc.persist()
	return nil
}

func (svc *Service) State() State {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.state
}

func (svc *Service) MeetingID() string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.meetingID
}

// AddOrUpdateParticipant registers a join signal. A duplicate join for a known
// id merges the supplied fields and forces the record active again; a join for
// a departed record is treated as a correction of an out-of-order leave.
func (svc *Service) AddOrUpdateParticipant(j Join) (Record, error) {
	if err := j.clean(); err != nil {
		return Record{}, err
	}

	svc.mu.Lock()
	if svc.state == StateEnded {
		svc.mu.Unlock()
		return Record{}, ErrSessionEnded
	}

	if svc.state == StateIdle {
		// tolerate joins arriving before the explicit start signal; the
		// started event waits until a meeting id is known (see Start)
		svc.state = StateActive
		svc.startedAt = nowFunc().UTC()
	}

	now := nowFunc().UTC()
	rec, known := svc.records[j.ID]
	if j.ID != "" && known {
		if j.Name != "" {
			rec.Name = j.Name
		}
		if j.Email != "" {
			rec.Email = j.Email
		}
		if j.ParticipantID != "" {
			rec.ParticipantID = j.ParticipantID
		}
		rec.IsActive = true
		rec.LeaveTime = nil
		rec.ConnectionStatus = ConnConnected
		rec.AttendanceStatus = StatusInProgress
		rec.LastActivity = now
		out := *rec
		svc.mu.Unlock()

		svc.events.participantUpdated(out)
		svc.persist()
		return out, nil
	}

	if j.ID == "" {
		svc.seq++
		j.ID = fmt.Sprintf("p%d", svc.seq)
	}
	newRec := &Record{
		ID:               j.ID,
		Name:             j.Name,
		Email:            j.Email,
		ParticipantID:    j.ParticipantID,
		JoinTime:         now,
		IsActive:         true,
		AttendanceStatus: StatusInProgress,
		ConnectionStatus: ConnConnected,
		LastActivity:     now,
	}
	svc.records[j.ID] = newRec
	svc.order = append(svc.order, j.ID)
	out := *newRec
	svc.mu.Unlock()

	svc.events.participantJoined(out)
	svc.persist()
	return out, nil
}

// RemoveParticipant applies a leave signal. Unknown ids and already-departed
// records are silent no-ops.
func (svc *Service) RemoveParticipant(id string) {
	svc.mu.Lock()
	rec, ok := svc.records[id]
	if !ok || !rec.IsActive {
		svc.mu.Unlock()
		return
	}
	svc.leaveLocked(rec, nowFunc().UTC())
	out := *rec
	svc.mu.Unlock()

	svc.events.participantRemoved(out)
	svc.persist()
}

// leaveLocked freezes an active record at `leave`. svc.mu must be held.
func (svc *Service) leaveLocked(rec *Record, leave time.Time) {
	rec.LeaveTime = &leave
	rec.Duration = roundMinutes(leave.Sub(rec.JoinTime))
	rec.IsActive = false
	rec.ConnectionStatus = ConnDisconnected
	rec.LastActivity = leave
	rec.AttendanceStatus = svc.classifyLocked(rec)
}

// UpdateParticipant shallow-merges the allow-listed patch fields into the
// record and refreshes its last-activity timestamp. Unknown ids are silent
// no-ops.
func (svc *Service) UpdateParticipant(id string, patch Patch) {
	svc.mu.Lock()
	rec, ok := svc.records[id]
	if !ok {
		svc.mu.Unlock()
		return
	}
	if patch.Name != nil {
		rec.Name = core.CleanString(*patch.Name)
	}
	if patch.Email != nil {
		rec.Email = core.CleanEmail(*patch.Email)
	}
	if patch.ParticipantID != nil {
		rec.ParticipantID = core.CleanString(*patch.ParticipantID)
	}
	rec.LastActivity = nowFunc().UTC()
	out := *rec
	svc.mu.Unlock()

	svc.events.participantUpdated(out)
	svc.persist()
}

// ApplyBulk registers a batch of join signals, dropping invalid entries.
func (svc *Service) ApplyBulk(joins []Join) {
	for _, j := range joins {
		if _, err := svc.AddOrUpdateParticipant(j); err != nil {
			if svc.log != nil {
				svc.log.Warn(fmt.Sprintf("bulk update: dropping participant: %v", err))
			}
		}
	}
}

// EndSession freezes every still-active participant as of now and flips the
// session to ended. Already-departed records are unaffected.
func (svc *Service) EndSession() {
	svc.mu.Lock()
	if svc.state == StateEnded {
		svc.mu.Unlock()
		return
	}
	now := nowFunc().UTC()
	frozen := make([]Record, 0, len(svc.order))
	for _, id := range svc.order {
		if rec := svc.records[id]; rec.IsActive {
			svc.leaveLocked(rec, now)
			frozen = append(frozen, *rec)
		}
	}
	svc.state = StateEnded
	svc.endedAt = &now
	meetingID := svc.meetingID
	stats := svc.statsLocked()
	svc.mu.Unlock()

	for _, rec := range frozen {
		svc.events.participantRemoved(rec)
	}
	svc.events.sessionEnded(meetingID, stats)
	svc.persist()
}

// ClearSession destroys all records and resets the session to idle.
func (svc *Service) ClearSession() {
	svc.mu.Lock()
	svc.meetingID = ""
	svc.state = StateIdle
	svc.startedAt = time.Time{}
	svc.endedAt = nil
	svc.seq = 0
	svc.records = make(map[string]*Record)
	svc.order = nil
	svc.mu.Unlock()

	svc.persist()
}

// RefreshDurations recomputes every active record's duration from wall-clock
// elapsed time. It is a display-freshness tick, not a stopwatch.
func (svc *Service) RefreshDurations() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	now := nowFunc().UTC()
	for _, rec := range svc.records {
		if rec.IsActive {
			rec.Duration = roundMinutes(now.Sub(rec.JoinTime))
		}
	}
}

func (svc *Service) Participants() []Record {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	out := make([]Record, 0, len(svc.order))
	for _, id := range svc.order {
		out = append(out, *svc.records[id])
	}
	return out
}

func (svc *Service) Participant(id string) (Record, bool) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if rec, ok := svc.records[id]; ok {
		return *rec, true
	}
	return Record{}, false
}

func (svc *Service) Stats() Stats {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.statsLocked()
}

func (svc *Service) statsLocked() Stats {
	stats := Stats{Total: len(svc.order)}
	if stats.Total == 0 {
		return stats
	}
	var totalDuration int
	for _, id := range svc.order {
		rec := svc.records[id]
		totalDuration += rec.Duration
		if rec.IsActive {
			stats.Active++
		}
		switch rec.AttendanceStatus {
		case StatusInProgress:
			stats.InProgress++
		case StatusLeftEarly:
			stats.LeftEarly++
		case StatusCompleted, StatusPresent, StatusLate:
			stats.Completed++
		}
	}
	stats.PresentPercentage = int(math.Round(float64(stats.Active) / float64(stats.Total) * 100))
	stats.CompletionRate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	stats.AverageDuration = int(math.Round(float64(totalDuration) / float64(stats.Total)))
	return stats
}

// classifyLocked derives the attendance status of a finished record.
// With no planned meeting duration configured, only the minimum-stay rule
// applies; otherwise the record is graded against the planned duration.
// svc.mu must be held.
func (svc *Service) classifyLocked(rec *Record) AttendanceStatus {
	if rec.IsActive {
		return StatusInProgress
	}
	if svc.conf.PlannedDuration <= 0 {
		if rec.Duration < roundMinutes(svc.conf.MinStay) {
			return StatusLeftEarly
		}
		return StatusCompleted
	}

	pct := rec.Duration * 100 / svc.conf.PlannedDuration
	switch {
	case pct >= svc.conf.PresentThreshold:
		if !svc.startedAt.IsZero() && rec.JoinTime.Sub(svc.startedAt) >= svc.conf.LateJoinDelay {
			return StatusLate
		}
		return StatusPresent
	case pct >= svc.conf.PartialThreshold:
		return StatusPartial
	default:
		return StatusAbsent
	}
}

func (svc *Service) Snapshot() Snapshot {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.snapshotLocked()
}

func (svc *Service) snapshotLocked() Snapshot {
	snap := Snapshot{
		MeetingID: svc.meetingID,
		State:     svc.state,
		EndedAt:   svc.endedAt,
		Records:   make([]Record, 0, len(svc.order)),
		Stats:     svc.statsLocked(),
		SavedAt:   nowFunc().UTC(),
	}
	if !svc.startedAt.IsZero() {
		startedAt := svc.startedAt
		snap.StartedAt = &startedAt
	}
	for _, id := range svc.order {
		snap.Records = append(snap.Records, *svc.records[id])
	}
	return snap
}

// persist hands the current snapshot to every store writer, fire-and-forget:
// a failing store is logged and never rolls back or blocks the ledger.
func (svc *Service) persist() {
	if len(svc.writers) == 0 {
		return
	}
	svc.mu.Lock()
	snap := svc.snapshotLocked()
	svc.mu.Unlock()

	for _, w := range svc.writers {
		w.enqueue(snap)
	}
}

// storeWriter serializes snapshot writes to a single store. Only the newest
// pending snapshot is kept, so a slow store may skip intermediate states but
// can never write a stale snapshot over a newer one.
type storeWriter struct {
	store Store
	kick  chan struct{} // buffered(1)

	mu   sync.Mutex
	next *Snapshot
}

func (w *storeWriter) enqueue(snap Snapshot) {
	w.mu.Lock()
	w.next = &snap
	w.mu.Unlock()
	select {
	case w.kick <- struct{}{}:
	default: // a wake-up is already pending
	}
}

func (w *storeWriter) run(log core.Logger, quit <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		select {
		case <-w.kick:
			w.flush(log)
		case <-quit:
			w.flush(log)
			return
		}
	}
}

func (w *storeWriter) flush(log core.Logger) {
	w.mu.Lock()
	snap := w.next
	w.next = nil
	w.mu.Unlock()
	if snap == nil {
		return
	}
	if err := w.store.SaveSnapshot(*snap); err != nil && log != nil {
		log.Warn(fmt.Sprintf("persisting snapshot: %v", err))
	}
}

func roundMinutes(d time.Duration) int {
	return int(math.Round(d.Minutes()))
}
