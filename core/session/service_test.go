package session

import (
	"sync"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

func testConf(plannedMins int) core.SessionConfig {
	return core.SessionConfig{
		PlannedDuration:  plannedMins,
		PresentThreshold: 75,
		PartialThreshold: 25,
		LateJoinDelay:    10 * time.Minute,
		MinStay:          5 * time.Minute,
	}
}

func frozenClock(start time.Time) (advance func(d time.Duration)) {
	now := start
	nowFunc = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func checkInvariant(t *testing.T, svc *Service) {
	t.Helper()
	for _, rec := range svc.Participants() {
		if rec.IsActive != (rec.LeaveTime == nil) {
			t.Errorf("record %q: isActive=%v but leaveTime=%v", rec.ID, rec.IsActive, rec.LeaveTime)
		}
	}
}

func TestService_activeLeaveTimeInvariant(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")

	ops := []func(){
		func() { _, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"}) },
		func() { _, _ = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Bintou"}) },
		func() { _, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa K"}) }, // duplicate join
		func() { svc.RemoveParticipant("a") },
		func() { svc.RemoveParticipant("a") },       // idempotent
		func() { svc.RemoveParticipant("unknown") }, // no-op
		func() { _, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"}) }, // rejoin
		func() { svc.RemoveParticipant("b") },
	}
	for _, op := range ops {
		op()
		advance(time.Minute)
		checkInvariant(t, svc)
	}
}

func TestService_RemoveParticipantIdempotent(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})

	advance(7 * time.Minute)
	svc.RemoveParticipant("a")
	first, _ := svc.Participant("a")

	advance(30 * time.Minute)
	svc.RemoveParticipant("a")
	second, _ := svc.Participant("a")

	if first.Duration != second.Duration || first.AttendanceStatus != second.AttendanceStatus {
		t.Errorf("second remove changed record: %+v != %+v", second, first)
	}
	if !second.LeaveTime.Equal(*first.LeaveTime) {
		t.Errorf("second remove changed leaveTime: %v != %v", second.LeaveTime, first.LeaveTime)
	}
}

func TestService_StatsEmptyLedger(t *testing.T) {
	svc := NewService(testConf(0), nil)
	if stats := svc.Stats(); stats != (Stats{}) {
		t.Errorf("Stats() on empty ledger = %+v, want all zeros", stats)
	}
}

func TestService_leaveClassification(t *testing.T) {
	tests := []struct {
		name       string
		stay       time.Duration
		wantStatus AttendanceStatus
	}{
		{name: "4 minutes is left early", stay: 4 * time.Minute, wantStatus: StatusLeftEarly},
		{name: "5 minutes is completed", stay: 5 * time.Minute, wantStatus: StatusCompleted},
		{name: "just under a minute is left early", stay: 20 * time.Second, wantStatus: StatusLeftEarly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advance := frozenClock(time.Now())
			defer func() { nowFunc = time.Now }()

			svc := NewService(testConf(0), nil)
			_ = svc.Start("m1")
			_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})

			advance(tt.stay)
			svc.RemoveParticipant("a")

			rec, _ := svc.Participant("a")
			if rec.AttendanceStatus != tt.wantStatus {
				t.Errorf("AttendanceStatus = %q, want %q", rec.AttendanceStatus, tt.wantStatus)
			}
			if want := roundMinutes(tt.stay); rec.Duration != want {
				t.Errorf("Duration = %d, want %d", rec.Duration, want)
			}
		})
	}
}

func TestService_plannedDurationClassification(t *testing.T) {
	tests := []struct {
		name       string
		joinAfter  time.Duration
		stay       time.Duration
		wantStatus AttendanceStatus
	}{
		{name: "83% is present", stay: 50 * time.Minute, wantStatus: StatusPresent},
		{name: "33% is partial", stay: 20 * time.Minute, wantStatus: StatusPartial},
		{name: "8% is absent", stay: 5 * time.Minute, wantStatus: StatusAbsent},
		{name: "late join but present", joinAfter: 10 * time.Minute, stay: 46 * time.Minute, wantStatus: StatusLate},
		{name: "late join partial stays partial", joinAfter: 15 * time.Minute, stay: 20 * time.Minute, wantStatus: StatusPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advance := frozenClock(time.Now())
			defer func() { nowFunc = time.Now }()

			svc := NewService(testConf(60), nil)
			_ = svc.Start("m1")
			advance(tt.joinAfter)
			_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})

			advance(tt.stay)
			svc.RemoveParticipant("a")

			rec, _ := svc.Participant("a")
			if rec.AttendanceStatus != tt.wantStatus {
				t.Errorf("AttendanceStatus = %q, want %q", rec.AttendanceStatus, tt.wantStatus)
			}
		})
	}
}

func TestService_endToEnd(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	if svc.State() != StateIdle {
		t.Fatalf("initial state = %v, want idle", svc.State())
	}
	if err := svc.Start("m1"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if svc.State() != StateActive {
		t.Fatalf("state after Start = %v, want active", svc.State())
	}

	rec, err := svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa", Email: "Awa@Test.cd "})
	if err != nil {
		t.Fatalf("AddOrUpdateParticipant() failed: %v", err)
	}
	if !rec.IsActive || rec.AttendanceStatus != StatusInProgress {
		t.Errorf("joined record = %+v, want active/in_progress", rec)
	}
	if rec.Email != "awa@test.cd" {
		t.Errorf("Email not cleaned: %q", rec.Email)
	}

	advance(10 * time.Minute)
	svc.RemoveParticipant("a")
	rec, _ = svc.Participant("a")
	if rec.Duration != 10 {
		t.Errorf("Duration = %d, want 10", rec.Duration)
	}
	if rec.AttendanceStatus != StatusCompleted {
		t.Errorf("AttendanceStatus = %q, want %q", rec.AttendanceStatus, StatusCompleted)
	}

	svc.EndSession()
	if svc.State() != StateEnded {
		t.Errorf("state after EndSession = %v, want ended", svc.State())
	}
	after, _ := svc.Participant("a")
	if after.Duration != rec.Duration || after.AttendanceStatus != rec.AttendanceStatus {
		t.Errorf("EndSession touched inactive record: %+v != %+v", after, rec)
	}

	if _, err = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Late"}); err != ErrSessionEnded {
		t.Errorf("join after end error = %v, want %v", err, ErrSessionEnded)
	}

	svc.ClearSession()
	if svc.State() != StateIdle {
		t.Errorf("state after ClearSession = %v, want idle", svc.State())
	}
	if got := len(svc.Participants()); got != 0 {
		t.Errorf("participants after clear = %d, want 0", got)
	}
}

func TestService_EndSessionFreezesActiveParticipants(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Bintou"})

	advance(3 * time.Minute)
	svc.EndSession()

	for _, id := range []string{"a", "b"} {
		rec, _ := svc.Participant(id)
		if rec.IsActive || rec.LeaveTime == nil {
			t.Errorf("record %q not frozen: %+v", id, rec)
		}
		if rec.AttendanceStatus != StatusLeftEarly {
			t.Errorf("record %q status = %q, want %q", id, rec.AttendanceStatus, StatusLeftEarly)
		}
	}
}

func TestService_UpdateParticipant(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")
	before, _ := svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa", Email: "awa@test.cd"})

	advance(time.Minute)
	name := " Awa Kalenga "
	svc.UpdateParticipant("a", Patch{Name: &name})

	rec, _ := svc.Participant("a")
	if rec.Name != "Awa Kalenga" {
		t.Errorf("Name = %q, want %q", rec.Name, "Awa Kalenga")
	}
	if rec.Email != before.Email {
		t.Errorf("Email changed by partial patch: %q", rec.Email)
	}
	if !rec.LastActivity.After(before.LastActivity) {
		t.Errorf("LastActivity not refreshed: %v", rec.LastActivity)
	}

	// unknown id: silent no-op
	svc.UpdateParticipant("nope", Patch{Name: &name})
}

func TestService_AddOrUpdateParticipantValidation(t *testing.T) {
	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")

	_, err := svc.AddOrUpdateParticipant(Join{ID: "a", Name: "   "})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("error = %v, want *core.ValidationError", err)
	}
	if len(vErr.Fields) != 1 || vErr.Fields[0].Field != "name" {
		t.Errorf("fields = %+v, want name error", vErr.Fields)
	}
}

func TestService_generatedIDs(t *testing.T) {
	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")

	r1, _ := svc.AddOrUpdateParticipant(Join{Name: "Awa"})
	r2, _ := svc.AddOrUpdateParticipant(Join{Name: "Bintou"})
	if r1.ID == "" || r2.ID == "" || r1.ID == r2.ID {
		t.Errorf("generated ids not unique: %q, %q", r1.ID, r2.ID)
	}
}

func TestService_RefreshDurations(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})

	advance(12 * time.Minute)
	svc.RefreshDurations()
	rec, _ := svc.Participant("a")
	if rec.Duration != 12 {
		t.Errorf("Duration = %d, want 12", rec.Duration)
	}
	if rec.AttendanceStatus != StatusInProgress {
		t.Errorf("AttendanceStatus = %q, want %q", rec.AttendanceStatus, StatusInProgress)
	}
}

func TestService_Stats(t *testing.T) {
	advance := frozenClock(time.Now())
	defer func() { nowFunc = time.Now }()

	svc := NewService(testConf(0), nil)
	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Bintou"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "c", Name: "Cheik"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "d", Name: "Dada"})

	advance(2 * time.Minute)
	svc.RemoveParticipant("a") // left early

	advance(8 * time.Minute)
	svc.RemoveParticipant("b") // completed
	svc.RefreshDurations()

	stats := svc.Stats()
	want := Stats{
		Total:             4,
		Active:            2,
		Completed:         1,
		LeftEarly:         1,
		InProgress:        2,
		PresentPercentage: 50,
		CompletionRate:    25,
		AverageDuration:   8, // (2 + 10 + 10 + 10) / 4
	}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}
}

// slowStore records every snapshot it is handed, simulating a store whose
// writes take a while to land.
type slowStore struct {
	delay time.Duration

	mu    sync.Mutex
	snaps []Snapshot
}

func (s *slowStore) SaveSnapshot(snap Snapshot) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	return nil
}

func (s *slowStore) saved() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}

func TestService_persistenceNeverRegresses(t *testing.T) {
	store := &slowStore{delay: 10 * time.Millisecond}
	svc := NewService(testConf(0), nil, store)

	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Bintou"})
	svc.RemoveParticipant("a")
	svc.EndSession()
	svc.Close() // must flush the pending snapshot

	snaps := store.saved()
	if len(snaps) == 0 {
		t.Fatal("no snapshot persisted")
	}
	last := snaps[len(snaps)-1]
	if last.State != StateEnded {
		t.Errorf("final persisted state = %q, want %q", last.State, StateEnded)
	}
	if got := len(last.Records); got != 2 {
		t.Errorf("final persisted records = %d, want 2", got)
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].SavedAt.Before(snaps[i-1].SavedAt) {
			t.Errorf("snapshot %d persisted out of order: %v before %v",
				i, snaps[i].SavedAt, snaps[i-1].SavedAt)
		}
	}
}

func TestService_CloseWithoutStores(t *testing.T) {
	svc := NewService(testConf(0), nil)
	svc.Close()
	svc.Close() // idempotent
}

func TestService_autoActivationDefersStartedEvent(t *testing.T) {
	svc := NewService(testConf(0), nil)

	var started []string
	svc.Events().OnSessionStarted(func(meetingID string, _ time.Time) {
		started = append(started, meetingID)
	})

	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})
	if svc.State() != StateActive {
		t.Fatalf("state after early join = %v, want active", svc.State())
	}
	if len(started) != 0 {
		t.Fatalf("started fired before a meeting id was known: %v", started)
	}

	if err := svc.Start("m1"); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if len(started) != 1 || started[0] != "m1" {
		t.Fatalf("started events = %v, want [m1]", started)
	}
	if svc.MeetingID() != "m1" {
		t.Errorf("MeetingID() = %q, want m1", svc.MeetingID())
	}

	_ = svc.Start("m2") // active with an id: no-op
	if len(started) != 1 || svc.MeetingID() != "m1" {
		t.Errorf("second Start changed session: events=%v meetingID=%q", started, svc.MeetingID())
	}
}

func TestService_events(t *testing.T) {
	defer func() { nowFunc = time.Now }()
	_ = frozenClock(time.Now())

	svc := NewService(testConf(0), nil)

	var gotStarted, gotJoined, gotRemoved, gotUpdated, gotEnded int
	svc.Events().OnSessionStarted(func(meetingID string, _ time.Time) {
		if meetingID != "m1" {
			t.Errorf("started meetingID = %q, want m1", meetingID)
		}
		gotStarted++
	})
	svc.Events().OnParticipantJoined(func(Record) { gotJoined++ })
	svc.Events().OnParticipantRemoved(func(Record) { gotRemoved++ })
	svc.Events().OnParticipantUpdated(func(Record) { gotUpdated++ })
	svc.Events().OnSessionEnded(func(string, Stats) { gotEnded++ })

	_ = svc.Start("m1")
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa"})
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "a", Name: "Awa K"}) // duplicate join -> updated
	_, _ = svc.AddOrUpdateParticipant(Join{ID: "b", Name: "Bintou"})
	svc.RemoveParticipant("a")
	svc.EndSession() // freezes b -> removed

	if gotStarted != 1 || gotJoined != 2 || gotUpdated != 1 || gotRemoved != 2 || gotEnded != 1 {
		t.Errorf("events = started:%d joined:%d updated:%d removed:%d ended:%d, want 1/2/1/2/1",
			gotStarted, gotJoined, gotUpdated, gotRemoved, gotEnded)
	}
}
