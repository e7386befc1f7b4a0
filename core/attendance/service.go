package attendance

import (
	"errors"
	"math"
	"time"

	"github.com/trezcool/mahudhurio/core"
)

var (
	// errors
	ErrNotFound        = errors.New("attendance record not found")
	ErrSessionNotFound = errors.New("session not found")

	nowFunc = time.Now // mockable
)

type (
	Repository interface {
		// StoreSession replaces the stored records of a meeting with recs.
		StoreSession(meetingID string, recs []Record) ([]Record, error)
		GetSessionRecords(meetingID string) ([]Record, error)
		GetRecordByID(id int) (Record, error)
		UpdateRecord(rec Record) (Record, error)
		// QuerySessions returns one summary per stored meeting.
		QuerySessions(ord ...core.DBOrdering) ([]SessionSummary, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Store(sub Submission) ([]Record, error) {
	now := nowFunc().UTC()
	recs := make([]Record, 0, len(sub.Records))
	for _, nr := range sub.Records {
		recs = append(recs, Record{
			MeetingID:     sub.MeetingID,
			ParticipantID: nr.ParticipantID,
			Name:          nr.Name,
			Email:         nr.Email,
			JoinTime:      nr.JoinTime.UTC(),
			LeaveTime:     nr.LeaveTime,
			Duration:      nr.Duration,
			Status:        nr.Status,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return svc.repo.StoreSession(sub.MeetingID, recs)
}

func (svc *Service) SessionRecords(meetingID string) ([]Record, error) {
	recs, err := svc.repo.GetSessionRecords(core.CleanString(meetingID))
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrSessionNotFound
	}
	return recs, nil
}

func (svc *Service) Sessions(ord ...core.DBOrdering) ([]SessionSummary, error) {
	return svc.repo.QuerySessions(ord...)
}

func (svc *Service) UpdateParticipant(id int, up UpdateRecord) (Record, error) {
	rec, err := svc.repo.GetRecordByID(id)
	if err != nil {
		return Record{}, err
	}
	if up.Name != nil {
		rec.Name = *up.Name
	}
	if up.Email != nil {
		rec.Email = *up.Email
	}
	if up.LeaveTime != nil {
		rec.LeaveTime = up.LeaveTime
	}
	if up.Duration != nil {
		rec.Duration = *up.Duration
	}
	if up.Status != nil {
		rec.Status = *up.Status
	}
	rec.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateRecord(rec)
}

func (svc *Service) SessionStats(meetingID string) (Stats, error) {
	recs, err := svc.SessionRecords(meetingID)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Total: len(recs)}
	var totalDuration int
	for _, rec := range recs {
		totalDuration += rec.Duration
		if rec.LeaveTime == nil {
			stats.Active++
		}
		switch rec.Status {
		case "in_progress":
			stats.InProgress++
		case "left_early":
			stats.LeftEarly++
		case "completed", "present", "late":
			stats.Completed++
		}
	}
	stats.PresentPercentage = int(math.Round(float64(stats.Active) / float64(stats.Total) * 100))
	stats.CompletionRate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	stats.AverageDuration = int(math.Round(float64(totalDuration) / float64(stats.Total)))
	return stats, nil
}
