package testutil

import (
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

// NewTestConfig returns a Config suitable for tests without touching the
// environment or any .env file.
func NewTestConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		Debug:    false,
		TestMode: true,
		AppName:  "Mahudhurio",
		Build:    "test",
		Server: core.ServerConfig{
			Host:            "127.0.0.1:0",
			ShutdownTimeout: time.Second,
			APIBaseURL:      "http://127.0.0.1:0",
		},
		Realtime: core.RealtimeConfig{
			SubjectPrefix:        "mahudhurio-test",
			HeartbeatInterval:    30 * time.Second,
			ReconnectBaseDelay:   2 * time.Second,
			MaxReconnectAttempts: 5,
		},
		Session: core.SessionConfig{
			PresentThreshold: 75,
			PartialThreshold: 25,
			LateJoinDelay:    10 * time.Minute,
			MinStay:          5 * time.Minute,
			RefreshInterval:  time.Minute,
		},
		Notif: core.NotifConfig{
			DedupWindow: 30 * time.Second,
			RateWindow:  60 * time.Second,
			RateMax:     5,
			AutoHide:    6 * time.Second,
			MaxVisible:  50,
		},
		Snapshots: core.SnapshotsConfig{MaxRecords: 100},
	}
}

func StoreSession(
	t *testing.T,
	svc *attendance.Service,
	meetingID string,
	recs ...attendance.NewRecord,
) []attendance.Record {
	stored, err := svc.Store(attendance.Submission{MeetingID: meetingID, Records: recs})
	if err != nil {
		t.Fatalf("StoreSession() failed: %v", err)
	}
	return stored
}
