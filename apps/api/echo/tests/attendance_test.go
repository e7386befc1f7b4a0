package tests

import (
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/trezcool/mahudhurio/core/attendance"
	testutil "github.com/trezcool/mahudhurio/tests"
)

var baseJoin = time.Date(2021, 5, 10, 9, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time { return &t }
func ptrStr(s string) *string        { return &s }

func Test_attendanceApi_health(t *testing.T) {
	tt := httpTest{
		name:     "health check",
		method:   http.MethodGet,
		path:     "/api/health",
		wantCode: http.StatusOK,
		wantData: []byte(`{"status":"ok"}`),
	}
	req, rec := newRequest(tt.method, tt.path)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_attendanceApi_store(t *testing.T) {
	t.Run("valid submission", func(t *testing.T) {
		sub := attendance.Submission{
			MeetingID: "api-store-1",
			Records: []attendance.NewRecord{
				{Name: "Amani", JoinTime: baseJoin, Status: "in_progress"},
				{Name: "Baraka", Email: "baraka@lycee.ac.tz", JoinTime: baseJoin, LeaveTime: ptrTime(baseJoin.Add(40 * time.Minute)), Duration: 40, Status: "completed"},
			},
		}
		req, rec := newRequest(http.MethodPost, "/api/attendance", marchallObj(t, sub))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var recs []attendance.Record
		if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
			t.Fatal(err)
		}
		if len(recs) != 2 {
			t.Fatalf("got %d records; want 2", len(recs))
		}
		for _, r := range recs {
			if r.ID == 0 || r.MeetingID != "api-store-1" {
				t.Errorf("got %+v", r)
			}
		}
	})

	t.Run("missing meeting_id", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPost,
			path:     "/api/attendance",
			body:     []byte(`{"records":[{"name":"Amani","join_time":"2021-05-10T09:00:00Z","status":"in_progress"}]}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"meeting_id":"this field is required"}`),
		}
		req, rec := newRequest(tt.method, tt.path, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("invalid record", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPost,
			path:     "/api/attendance",
			body:     []byte(`{"meeting_id":"api-store-2","records":[{"name":"","join_time":"2021-05-10T09:00:00Z","status":"in_progress"}]}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		}
		req, rec := newRequest(tt.method, tt.path, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_attendanceApi_retrieveSession(t *testing.T) {
	stored := testutil.StoreSession(t, attSvc, "api-session-1",
		attendance.NewRecord{Name: "Amani", JoinTime: baseJoin, Status: "in_progress"},
	)

	tests := []httpTest{
		{
			name:     "existing session",
			method:   http.MethodGet,
			path:     "/api/sessions/api-session-1",
			wantCode: http.StatusOK,
			wantData: marchallList(t, stored[0]),
		},
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     "/api/sessions/nope",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_attendanceApi_sessionStats(t *testing.T) {
	leave := baseJoin.Add(30 * time.Minute)
	testutil.StoreSession(t, attSvc, "api-stats-1",
		attendance.NewRecord{Name: "a", JoinTime: baseJoin, Duration: 10, Status: "in_progress"},
		attendance.NewRecord{Name: "b", JoinTime: baseJoin, LeaveTime: ptrTime(leave), Duration: 30, Status: "completed"},
	)

	tests := []httpTest{
		{
			name:     "existing session",
			method:   http.MethodGet,
			path:     "/api/sessions/api-stats-1/stats",
			wantCode: http.StatusOK,
			wantData: marchallObj(t, attendance.Stats{
				Total:             2,
				Active:            1,
				Completed:         1,
				InProgress:        1,
				PresentPercentage: 50,
				CompletionRate:    50,
				AverageDuration:   20,
			}),
		},
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     "/api/sessions/nope/stats",
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_attendanceApi_updateParticipant(t *testing.T) {
	stored := testutil.StoreSession(t, attSvc, "api-update-1",
		attendance.NewRecord{Name: "Amani", JoinTime: baseJoin, Status: "in_progress"},
	)
	id := stored[0].ID

	t.Run("valid update", func(t *testing.T) {
		up := attendance.UpdateRecord{
			Email:  ptrStr("amani@lycee.ac.tz"),
			Status: ptrStr("completed"),
		}
		req, rec := newRequest(http.MethodPut, "/api/participants/"+strconv.Itoa(id), marchallObj(t, up))
		app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var got attendance.Record
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatal(err)
		}
		if got.Email != "amani@lycee.ac.tz" || got.Status != "completed" || got.Name != "Amani" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPut,
			path:     "/api/participants/" + strconv.Itoa(id),
			body:     []byte(`{"email":"not-an-email"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"email":"email must be a valid email address"}`),
		}
		req, rec := newRequest(tt.method, tt.path, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("unknown participant", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPut,
			path:     "/api/participants/999999",
			body:     []byte(`{"status":"late"}`),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		}
		req, rec := newRequest(tt.method, tt.path, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("non-numeric id", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodPut,
			path:     "/api/participants/abc",
			body:     []byte(`{"status":"late"}`),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		}
		req, rec := newRequest(tt.method, tt.path, tt.body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}

func Test_attendanceApi_querySessions(t *testing.T) {
	testutil.StoreSession(t, attSvc, "api-query-b",
		attendance.NewRecord{Name: "a", JoinTime: baseJoin.Add(time.Hour), Status: "in_progress"},
	)
	testutil.StoreSession(t, attSvc, "api-query-a",
		attendance.NewRecord{Name: "b", JoinTime: baseJoin, Status: "in_progress"},
	)

	req, rec := newRequest(http.MethodGet, "/api/sessions?ordering=-first_join")
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v; body %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var sums []attendance.SessionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sums); err != nil {
		t.Fatal(err)
	}
	if len(sums) < 2 {
		t.Fatalf("got %d summaries; want at least 2", len(sums))
	}
	for i := 1; i < len(sums); i++ {
		if sums[i].FirstJoin.After(sums[i-1].FirstJoin) {
			t.Errorf("summaries not in descending first_join order: %v after %v", sums[i].FirstJoin, sums[i-1].FirstJoin)
		}
	}
}

