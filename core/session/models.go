package session

import (
	"time"

	"github.com/trezcool/mahudhurio/core"
)

// State is the lifecycle state of a tracked meeting session.
type State int

const (
	StateIdle State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	return [...]string{"idle", "active", "ended"}[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "active":
		*s = StateActive
	case "ended":
		*s = StateEnded
	default:
		*s = StateIdle
	}
	return nil
}

// AttendanceStatus is derived from a record's activity and duration; it is never
// set directly by callers.
type AttendanceStatus string

const (
	StatusInProgress AttendanceStatus = "in_progress"
	StatusCompleted  AttendanceStatus = "completed"
	StatusLeftEarly  AttendanceStatus = "left_early"
	StatusPresent    AttendanceStatus = "present"
	StatusAbsent     AttendanceStatus = "absent"
	StatusPartial    AttendanceStatus = "partial"
	StatusLate       AttendanceStatus = "late"
)

type ConnectionStatus string

const (
	ConnConnected    ConnectionStatus = "connected"
	ConnDisconnected ConnectionStatus = "disconnected"
)

// Record is one participant's attendance lifecycle entry within a session.
// Invariant: IsActive ⟺ LeaveTime == nil.
type Record struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Email            string           `json:"email"`
	ParticipantID    string           `json:"participant_id"`
	JoinTime         time.Time        `json:"join_time"` // UTC, immutable once set
	LeaveTime        *time.Time       `json:"leave_time,omitempty"`
	Duration         int              `json:"duration"` // minutes
	IsActive         bool             `json:"is_active"`
	AttendanceStatus AttendanceStatus `json:"attendance_status"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastActivity     time.Time        `json:"last_activity"` // UTC
}

// Join is an inbound join signal. ID may be empty, in which case one is
// assigned sequentially.
type Join struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	ParticipantID string `json:"participant_id"`
}

func (j *Join) clean() error {
	j.ID = core.CleanString(j.ID)
	j.Name = core.CleanString(j.Name)
	j.Email = core.CleanEmail(j.Email)
	j.ParticipantID = core.CleanString(j.ParticipantID)
	if j.Name == "" {
		return core.NewValidationError(ErrNameRequired, core.FieldError{Field: "name", Error: ErrNameRequired.Error()})
	}
	return nil
}

// Patch updates a record field by field; only the fields listed here may be
// patched, anything else inbound is dropped.
type Patch struct {
	Name          *string `json:"name"`
	Email         *string `json:"email"`
	ParticipantID *string `json:"participant_id"`
}

type Stats struct {
	Total             int `json:"total"`
	Active            int `json:"active"`
	Completed         int `json:"completed"`
	LeftEarly         int `json:"left_early"`
	InProgress        int `json:"in_progress"`
	PresentPercentage int `json:"present_percentage"`
	CompletionRate    int `json:"completion_rate"`
	AverageDuration   int `json:"average_duration"` // minutes
}

// Snapshot is the durable view of a session, written out on every mutation.
type Snapshot struct {
	MeetingID string     `json:"meeting_id"`
	State     State      `json:"state"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Records   []Record   `json:"records"`
	Stats     Stats      `json:"stats"`
	SavedAt   time.Time  `json:"saved_at"`
}

// Store persists session snapshots. Implementations are best-effort
// collaborators: a failing Store never affects ledger state.
type Store interface {
	SaveSnapshot(snap Snapshot) error
}
