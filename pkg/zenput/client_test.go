package zenput

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/supervision-reconciler/internal/model"
	"github.com/sells-group/supervision-reconciler/internal/resilience"
)

const pageJSON = `{"data":[
 {"id":"5f1a","submitted_at":"2025-03-12T16:05:00Z",
  "smetadata":{"date_submitted":"2025-03-12T16:04:10Z","lat":25.6694,"lon":"-100.3098",
   "location":{"id":2247,"name":"15 - Centro"},
   "created_by":{"display_name":"Ana Salinas"}},
  "responses":[
   {"question":{"name":"Sucursal"},"answer":" Centro "},
   {"question":{"name":"Location Map"},"answer":"https://maps.google.com/@25.6694,-100.3098,17z"}]},
 {"id":9912,"smetadata":{"date_submitted":"2025-03-13T10:00:00Z","lat":null,"lon":null},
  "submitted_by":{"name":"Luis"}}
]}`

func fastBackoff() resilience.Backoff {
	return resilience.Backoff{MaxAttempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []Option{WithBaseURL(srv.URL), WithRateLimit(1000), WithBackoff(fastBackoff())}
	return NewClient("test-token", append(base, opts...)...)
}

func TestSubmissions_MapsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/submissions", r.URL.Path)
		assert.Equal(t, "test-token", r.Header.Get("X-API-TOKEN"))
		assert.Equal(t, "877138", r.URL.Query().Get("form_template_id"))
		assert.Equal(t, "2025-03-01", r.URL.Query().Get("date_submitted_start"))
		assert.Equal(t, "2025-03-31", r.URL.Query().Get("date_submitted_end"))
		w.Write([]byte(pageJSON))
	})

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	got, err := c.Submissions(context.Background(), 877138, model.InspectionOperational, from, to)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, model.RawSubmission{
		ID:                   "5f1a",
		Type:                 "OPERATIONAL",
		Timestamp:            "2025-03-12T16:04:10Z",
		Submitter:            "Ana Salinas",
		ReportedLat:          "25.6694",
		ReportedLon:          "-100.3098",
		ReportedLocationKey:  "15 - Centro",
		ReportedLocationName: "15 - Centro",
		ManualLocationText:   "Centro",
		LocationMap:          "https://maps.google.com/@25.6694,-100.3098,17z",
	}, got[0])

	assert.Equal(t, "9912", got[1].ID)
	assert.Equal(t, "Luis", got[1].Submitter)
	assert.Empty(t, got[1].ReportedLat)
	assert.Empty(t, got[1].ReportedLocationKey)
}

func TestSubmissions_Paginates(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		var data []map[string]any
		switch r.URL.Query().Get("start") {
		case "0":
			data = []map[string]any{{"id": "a"}, {"id": "b"}}
		case "2":
			// b repeats when new submissions shift the window.
			data = []map[string]any{{"id": "b"}, {"id": "c"}}
		case "4":
			data = []map[string]any{{"id": "d"}}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}, WithPageSize(2))

	got, err := c.Submissions(context.Background(), 877139, model.InspectionSafety, time.Time{}, time.Time{})
	require.NoError(t, err)
	var ids []string
	for _, r := range got {
		ids = append(ids, r.ID)
		assert.Equal(t, "SAFETY", r.Type)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmissions_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"id":"x"}]}`))
	})

	got, err := c.Submissions(context.Background(), 1, model.InspectionSafety, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmissions_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad token"}`))
	})

	_, err := c.Submissions(context.Background(), 1, model.InspectionSafety, time.Time{}, time.Time{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubmissions_ReturnsPartialOnFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "0" {
			fmt.Fprint(w, `{"data":[{"id":"a"},{"id":"b"}]}`)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithPageSize(2))

	got, err := c.Submissions(context.Background(), 1, model.InspectionOperational, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Len(t, got, 2)
}

func TestSubmissions_BreakerOpen(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreaker(resilience.NewBreaker("zenput", 2, time.Hour)))

	_, err := c.Submissions(context.Background(), 1, model.InspectionOperational, time.Time{}, time.Time{})
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":-100.25,"c":null}`), &v))
	assert.Equal(t, flexString("x"), v.A)
	assert.Equal(t, flexString("-100.25"), v.B)
	assert.Equal(t, flexString(""), v.C)
}
