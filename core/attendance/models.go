package attendance

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/mahudhurio/core"
)

// Record is a stored attendance entry, one per participant per meeting.
type Record struct {
	ID            int        `json:"id" db:"id"`
	MeetingID     string     `json:"meeting_id" db:"meeting_id"`
	ParticipantID string     `json:"participant_id" db:"participant_id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	JoinTime      time.Time  `json:"join_time" db:"join_time"` // UTC
	LeaveTime     *time.Time `json:"leave_time,omitempty" db:"leave_time"`
	Duration      int        `json:"duration" db:"duration"` // minutes
	Status        string     `json:"status" db:"status"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"` // UTC
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"` // UTC
}

type NewRecord struct {
	ParticipantID string     `json:"participant_id"`
	Name          string     `json:"name" validate:"required"`
	Email         string     `json:"email" validate:"omitempty,email"`
	JoinTime      time.Time  `json:"join_time" validate:"required"`
	LeaveTime     *time.Time `json:"leave_time"`
	Duration      int        `json:"duration" validate:"gte=0"`
	Status        string     `json:"status" validate:"required"`
}

// Submission is one session's worth of records, as posted by a tracker.
type Submission struct {
	MeetingID string      `json:"meeting_id" validate:"required"`
	Records   []NewRecord `json:"records" validate:"dive"`
}

func (s *Submission) Validate(validate *validator.Validate) error {
	s.MeetingID = core.CleanString(s.MeetingID)
	for i := range s.Records {
		s.Records[i].Name = core.CleanString(s.Records[i].Name)
		s.Records[i].Email = core.CleanEmail(s.Records[i].Email)
	}
	return validate.Struct(s)
}

type UpdateRecord struct {
	Name      *string    `json:"name"`
	Email     *string    `json:"email" validate:"omitempty,email"`
	LeaveTime *time.Time `json:"leave_time"`
	Duration  *int       `json:"duration" validate:"omitempty,gte=0"`
	Status    *string    `json:"status"`
}

func (u *UpdateRecord) Validate(validate *validator.Validate) error {
	if u.Name != nil {
		name := core.CleanString(*u.Name)
		u.Name = &name
	}
	if u.Email != nil {
		email := core.CleanEmail(*u.Email)
		u.Email = &email
	}
	return validate.Struct(u)
}

// SessionSummary is one tracked meeting as seen by the reporting endpoints.
type SessionSummary struct {
	MeetingID    string     `json:"meeting_id" db:"meeting_id"`
	Participants int        `json:"participants" db:"participants"`
	FirstJoin    time.Time  `json:"first_join" db:"first_join"`
	LastLeave    *time.Time `json:"last_leave,omitempty" db:"last_leave"`
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
