package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceRepository struct {
	db *sqlx.DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) StoreSession(meetingID string, recs []attendance.Record) ([]attendance.Record, error) {
	tx, err := repo.db.Beginx()
	if err != nil {
		return nil, errors.Wrap(err, "beginning tx")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.Exec("DELETE FROM attendance_record WHERE meeting_id = $1", meetingID); err != nil {
		return nil, errors.Wrap(err, "clearing previous session records")
	}

	out := make([]attendance.Record, 0, len(recs))
	stmt, err := tx.PrepareNamed(`
		INSERT INTO attendance_record
			(meeting_id, participant_id, name, email, join_time, leave_time, duration, status, created_at, updated_at)
		VALUES
			(:meeting_id, :participant_id, :name, :email, :join_time, :leave_time, :duration, :status, :created_at, :updated_at)
		RETURNING id`)
	if err != nil {
		return nil, errors.Wrap(err, "preparing insert")
	}
	defer func() { _ = stmt.Close() }()

	for _, rec := range recs {
		rec.MeetingID = meetingID
		if err = stmt.Get(&rec.ID, rec); err != nil {
			return nil, errors.Wrap(err, "inserting record")
		}
		out = append(out, rec)
	}

	if err = tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "committing tx")
	}
	return out, nil
}

func (repo *attendanceRepository) GetSessionRecords(meetingID string) ([]attendance.Record, error) {
	recs := make([]attendance.Record, 0)
	err := repo.db.Select(&recs,
		"SELECT * FROM attendance_record WHERE meeting_id = $1 ORDER BY id", meetingID)
	if err != nil {
		return nil, errors.Wrap(err, "querying session records")
	}
	return recs, nil
}

func (repo *attendanceRepository) GetRecordByID(id int) (attendance.Record, error) {
	var rec attendance.Record
	err := repo.db.Get(&rec, "SELECT * FROM attendance_record WHERE id = $1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "querying record")
	}
	return rec, nil
}

func (repo *attendanceRepository) UpdateRecord(rec attendance.Record) (attendance.Record, error) {
	res, err := repo.db.NamedExec(`
		UPDATE attendance_record SET
			participant_id = :participant_id,
			name = :name,
			email = :email,
			join_time = :join_time,
			leave_time = :leave_time,
			duration = :duration,
			status = :status,
			updated_at = :updated_at
		WHERE id = :id`, rec)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating record")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

func (repo *attendanceRepository) QuerySessions(ord ...core.DBOrdering) ([]attendance.SessionSummary, error) {
	q := `
		SELECT
			meeting_id,
			COUNT(*) AS participants,
			MIN(join_time) AS first_join,
			MAX(leave_time) AS last_leave
		FROM attendance_record
		GROUP BY meeting_id`

	orderings := make([]string, 0, len(ord))
	for _, o := range ord {
		switch o.Field { // only the summary columns may be ordered on
		case "meeting_id", "first_join":
			orderings = append(orderings, o.String())
		}
	}
	if len(orderings) == 0 {
		orderings = append(orderings, "meeting_id ASC")
	}
	q += " ORDER BY " + strings.Join(orderings, ", ")

	sums := make([]attendance.SessionSummary, 0)
	if err := repo.db.Select(&sums, q); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return sums, nil
}
