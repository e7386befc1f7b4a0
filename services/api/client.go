package apisvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/session"
)

// Client is the tracker's HTTP client for the attendance API. It doubles as a
// session.Store: every snapshot is pushed upstream as a full session
// submission, best effort.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ session.Store = (*Client)(nil)

func NewClient(conf *core.Config) *Client {
	return &Client{
		baseURL: conf.Server.APIBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// SaveSnapshot implements session.Store by submitting the snapshot's records.
// Idle sessions have nothing worth pushing.
func (c *Client) SaveSnapshot(snap session.Snapshot) error {
	if snap.MeetingID == "" || len(snap.Records) == 0 {
		return nil
	}
	sub := attendance.Submission{MeetingID: snap.MeetingID}
	for _, rec := range snap.Records {
		sub.Records = append(sub.Records, attendance.NewRecord{
			ParticipantID: rec.ParticipantID,
			Name:          rec.Name,
			Email:         rec.Email,
			JoinTime:      rec.JoinTime,
			LeaveTime:     rec.LeaveTime,
			Duration:      rec.Duration,
			Status:        string(rec.AttendanceStatus),
		})
	}
	return c.do(http.MethodPost, "/api/attendance", sub, nil)
}

func (c *Client) UpdateParticipant(id int, up attendance.UpdateRecord) (attendance.Record, error) {
	var rec attendance.Record
	err := c.do(http.MethodPut, fmt.Sprintf("/api/participants/%d", id), up, &rec)
	return rec, err
}

func (c *Client) Health() error {
	return c.do(http.MethodGet, "/api/health", nil, nil)
}

func (c *Client) do(method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errors.Wrapf(err, "encoding %s %s body", method, path)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return errors.Wrapf(err, "building %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("%s %s: status %d", method, path, res.StatusCode)
	}
	if out != nil {
		if err = json.NewDecoder(res.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decoding %s %s response", method, path)
		}
	}
	return nil
}
