package inmemdb

import (
	"sort"
	"sync"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

// attendanceRepository is a lock-guarded in-memory attendance.Repository,
// used in tests and when running the API without Postgres.
type attendanceRepository struct {
	mutex   sync.RWMutex
	pkCount int
	table   map[int]*attendance.Record
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository() *attendanceRepository {
	return &attendanceRepository{table: make(map[int]*attendance.Record)}
}

func (repo *attendanceRepository) query() []attendance.Record {
	recs := make([]attendance.Record, 0, len(repo.table))
	for _, rec := range repo.table {
		recs = append(recs, *rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	return recs
}

func (repo *attendanceRepository) StoreSession(meetingID string, recs []attendance.Record) ([]attendance.Record, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	for id, rec := range repo.table {
		if rec.MeetingID == meetingID {
			delete(repo.table, id)
		}
	}
	out := make([]attendance.Record, 0, len(recs))
	for _, rec := range recs {
		rec := rec
		repo.pkCount++
		rec.ID = repo.pkCount
		rec.MeetingID = meetingID
		repo.table[rec.ID] = &rec
		out = append(out, rec)
	}
	return out, nil
}

func (repo *attendanceRepository) GetSessionRecords(meetingID string) ([]attendance.Record, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	recs := make([]attendance.Record, 0)
	for _, rec := range repo.query() {
		if rec.MeetingID == meetingID {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (repo *attendanceRepository) GetRecordByID(id int) (attendance.Record, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	if rec, ok := repo.table[id]; ok {
		return *rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateRecord(rec attendance.Record) (attendance.Record, error) {
	repo.mutex.Lock()
	defer repo.mutex.Unlock()

	if _, ok := repo.table[rec.ID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	repo.table[rec.ID] = &rec
	return rec, nil
}

func (repo *attendanceRepository) QuerySessions(ord ...core.DBOrdering) ([]attendance.SessionSummary, error) {
	repo.mutex.RLock()
	defer repo.mutex.RUnlock()

	byMeeting := make(map[string]*attendance.SessionSummary)
	var order []string
	for _, rec := range repo.query() {
		sum, ok := byMeeting[rec.MeetingID]
		if !ok {
			sum = &attendance.SessionSummary{MeetingID: rec.MeetingID, FirstJoin: rec.JoinTime}
			byMeeting[rec.MeetingID] = sum
			order = append(order, rec.MeetingID)
		}
		sum.Participants++
		if rec.JoinTime.Before(sum.FirstJoin) {
			sum.FirstJoin = rec.JoinTime
		}
		if rec.LeaveTime != nil && (sum.LastLeave == nil || rec.LeaveTime.After(*sum.LastLeave)) {
			sum.LastLeave = rec.LeaveTime
		}
	}

	out := make([]attendance.SessionSummary, 0, len(order))
	for _, id := range order {
		out = append(out, *byMeeting[id])
	}
	for i := len(ord) - 1; i >= 0; i-- {
		o := ord[i]
		sort.SliceStable(out, func(a, b int) bool {
			var less bool
			switch o.Field {
			case "first_join":
				less = out[a].FirstJoin.Before(out[b].FirstJoin)
			default: // meeting_id
				less = out[a].MeetingID < out[b].MeetingID
			}
			if o.Ascending {
				return less
			}
			return !less
		})
	}
	return out, nil
}
