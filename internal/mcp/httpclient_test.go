package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
	"github.com/claude/flexion/internal/storage"
)

// newTestServer creates an httptest server that routes requests to handler
// functions keyed by path. Verifies the HTTP client sends correct paths and
// query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestQuerySessions verifies the HTTP client sends the right query params and
// correctly parses the JSON array response.
func TestQuerySessions(t *testing.T) {
	sid := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("user_id"); got != "3" {
				t.Errorf("user_id=%q, want 3", got)
			}
			if got := r.URL.Query().Get("start"); got == "" {
				t.Error("start param missing")
			}

			writeTestJSON(t, w, []models.SessionRow{
				{ID: sid, UserID: 3, Exercise: "squat", Source: "live", RepCount: 12},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	sessions, err := client.QuerySessions(context.Background(), 3, start, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].ID != sid {
		t.Errorf("id=%s, want %s", sessions[0].ID, sid)
	}
	if sessions[0].RepCount != 12 {
		t.Errorf("rep_count=%d, want 12", sessions[0].RepCount)
	}
}

// TestGetSession verifies single-session fetch by ID.
func TestGetSession(t *testing.T) {
	sid := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/" + sid.String(): func(w http.ResponseWriter, _ *http.Request) {
			writeTestJSON(t, w, models.SessionRow{ID: sid, Exercise: "hip_hinge"})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	sess, err := client.GetSession(context.Background(), sid)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Exercise != "hip_hinge" {
		t.Errorf("exercise=%q, want hip_hinge", sess.Exercise)
	}
}

// TestQuerySessionReps verifies the reps sub-resource path and decoding.
func TestQuerySessionReps(t *testing.T) {
	sid := uuid.New()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions/" + sid.String() + "/reps": func(w http.ResponseWriter, _ *http.Request) {
			writeTestJSON(t, w, []models.RepRow{
				{SessionID: sid, RepIndex: 1, AchievedExtremum: 92.5, MinimumThresholdMet: true},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	reps, err := client.QuerySessionReps(context.Background(), sid)
	if err != nil {
		t.Fatal(err)
	}
	if len(reps) != 1 {
		t.Fatalf("got %d reps, want 1", len(reps))
	}
	if reps[0].AchievedExtremum != 92.5 {
		t.Errorf("achieved_extremum=%f, want 92.5", reps[0].AchievedExtremum)
	}
	if !reps[0].MinimumThresholdMet {
		t.Error("minimum_threshold_met=false, want true")
	}
}

// TestGetProgressSummary verifies the progress endpoint path, the exercise
// filter, and the bucket-to-agg mapping.
func TestGetProgressSummary(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/users/2/progress": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise"); got != "squat" {
				t.Errorf("exercise=%q, want squat", got)
			}
			if got := r.URL.Query().Get("agg"); got != "monthly" {
				t.Errorf("agg=%q, want monthly", got)
			}

			writeTestJSON(t, w, []storage.ProgressPeriod{
				{Period: "2026-01-01", Sessions: 8, Reps: 96},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	periods, err := client.GetProgressSummary(context.Background(), 2, "squat", start, end, "1 month")
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 {
		t.Fatalf("got %d periods, want 1", len(periods))
	}
	if periods[0].Reps != 96 {
		t.Errorf("reps=%d, want 96", periods[0].Reps)
	}
}

// TestGetRepQuality verifies the quality endpoint path, the optional exercise
// filter, and decoding of the band breakdown.
func TestGetRepQuality(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/users/4/quality": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("exercise"); got != "leg_raise" {
				t.Errorf("exercise=%q, want leg_raise", got)
			}
			if got := r.URL.Query().Get("start"); got == "" {
				t.Error("start param missing")
			}

			writeTestJSON(t, w, storage.RepQualityResult{
				Bands: []storage.QualityBand{
					{Band: "at_push", Reps: 30, Pct: 75},
					{Band: "below_minimum", Reps: 10, Pct: 25},
				},
				TotalReps:   40,
				MissRatePct: 25,
				PushRatePct: 75,
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	result, err := client.GetRepQuality(context.Background(), 4, "leg_raise", start, end)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalReps != 40 {
		t.Errorf("total_reps=%d, want 40", result.TotalReps)
	}
	if len(result.Bands) != 2 {
		t.Fatalf("got %d bands, want 2", len(result.Bands))
	}
	if result.Bands[0].Band != "at_push" {
		t.Errorf("bands[0]=%q, want at_push", result.Bands[0].Band)
	}
	if result.MissRatePct != 25 {
		t.Errorf("miss_rate_pct=%f, want 25", result.MissRatePct)
	}
}

// TestLatestSession verifies the latest session is taken from the head of the
// range query, and that an empty history yields nil without an error.
func TestLatestSession(t *testing.T) {
	newest := uuid.New()
	var rows []models.SessionRow
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, _ *http.Request) {
			writeTestJSON(t, w, rows)
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)

	sess, err := client.LatestSession(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess != nil {
		t.Errorf("latest of empty history = %v, want nil", sess)
	}

	rows = []models.SessionRow{{ID: newest}, {ID: uuid.New()}}
	sess, err = client.LatestSession(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if sess == nil || sess.ID != newest {
		t.Errorf("latest session = %v, want %s", sess, newest)
	}
}

// TestListExercises verifies the exercise catalog endpoint.
func TestListExercises(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises": func(w http.ResponseWriter, _ *http.Request) {
			writeTestJSON(t, w, []models.ExerciseRow{
				{Kind: "squat", Polarity: "lower_is_harder", RestAngle: 170, Enabled: true},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	exercises, err := client.ListExercises(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(exercises) != 1 {
		t.Fatalf("got %d exercises, want 1", len(exercises))
	}
	if exercises[0].Polarity != "lower_is_harder" {
		t.Errorf("polarity=%q, want lower_is_harder", exercises[0].Polarity)
	}
}

// TestGetUserStats verifies the stats endpoint and user scoping.
func TestGetUserStats(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/stats": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("user_id"); got != "7" {
				t.Errorf("user_id=%q, want 7", got)
			}
			writeTestJSON(t, w, storage.UserStats{TotalSessions: 40, TotalReps: 512})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	stats, err := client.GetUserStats(context.Background(), 7)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalReps != 512 {
		t.Errorf("total_reps=%d, want 512", stats.TotalReps)
	}
}

// TestBucketToAgg verifies the bucket-to-agg mapping used for progress requests.
func TestBucketToAgg(t *testing.T) {
	cases := []struct {
		bucket string
		want   string
	}{
		{"1 day", "daily"},
		{"1 week", "weekly"},
		{"1 month", "monthly"},
		{"", "weekly"},
	}
	for _, tc := range cases {
		if got := bucketToAgg(tc.bucket); got != tc.want {
			t.Errorf("bucketToAgg(%q) = %q, want %q", tc.bucket, got, tc.want)
		}
	}
}

// TestHTTPClientServerError verifies the client returns an error on non-200 responses.
func TestHTTPClientServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/exercises": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"database down"}`))
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	_, err := client.ListExercises(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
