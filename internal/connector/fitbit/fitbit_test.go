package fitbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/fetch"
)

func TestTransformSleep(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	var s fetch.Typed[SleepLog]
	if err := json.Unmarshal([]byte(`{"logId":12345,"dateOfSleep":"2025-06-02","endTime":"2025-06-02T07:10:30.000","levels":{"data":[]}}`), &s); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	row, err := transformSleep(s, jst)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := time.Date(2025, 6, 2, 7, 10, 30, 0, jst)
	if row.SourceID != "12345" || row.RecordAt == nil || !row.RecordAt.Equal(want) {
		t.Fatalf("row=%+v want record_at=%v", row, want)
	}
	if _, err := transformSleep(fetch.Typed[SleepLog]{}, jst); err == nil {
		t.Fatalf("expected validation error for missing logId")
	}
}

func TestTransformDay(t *testing.T) {
	cases := []struct {
		date    string
		wantID  string
		wantErr bool
	}{
		{date: "2025-06-01", wantID: "2025-06-01"},
		{date: "2025-06-01T00:00:00", wantID: "2025-06-01"},
		{date: "", wantErr: true},
		{date: "June 1st", wantErr: true},
	}
	for _, tc := range cases {
		row, err := transformDay(tc.date, []byte(`{}`), time.UTC)
		if (err != nil) != tc.wantErr {
			t.Fatalf("date=%q err=%v wantErr=%v", tc.date, err, tc.wantErr)
		}
		if err == nil && row.SourceID != tc.wantID {
			t.Fatalf("date=%q id=%s want=%s", tc.date, row.SourceID, tc.wantID)
		}
	}
}

type staticStore struct{ secret *credential.Secret }

func (s staticStore) Get(context.Context, string) (*credential.Secret, error) { return s.secret, nil }
func (s staticStore) Update(context.Context, string, map[string]any, *time.Time) error {
	return nil
}

func TestSeriesChunksAtThirtyDays(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		parts := strings.Split(strings.TrimSuffix(r.URL.Path, ".json"), "/")
		start := parts[len(parts)-2]
		_, _ = w.Write([]byte(`{"hrv":[{"dateTime":"` + start + `","value":{"dailyRmssd":40.1}}]}`))
	}))
	defer srv.Close()

	exp := time.Now().Add(time.Hour)
	c := NewConnector(connector.Deps{
		Cache: credential.NewCache(staticStore{secret: &credential.Secret{
			Service: Service, Credentials: map[string]any{"access_token": "at"}, ExpiresAt: &exp,
		}}, 0, nil),
		HTTP:   srv.Client(),
		Config: config.ConnectorConfig{BaseURL: srv.URL},
	})
	w := fetch.Window{Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)}
	points, err := fetch.Collect(c.Series(DailySeries[1])(context.Background(), w))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := []string{
		"/1/user/-/hrv/date/2025-01-01/2025-01-30.json",
		"/1/user/-/hrv/date/2025-01-31/2025-02-28.json",
	}
	if strings.Join(paths, " ") != strings.Join(want, " ") {
		t.Fatalf("paths=%v want=%v", paths, want)
	}
	if len(points) != 2 || points[1].Value.DateTime != "2025-01-31" {
		t.Fatalf("points=%+v", points)
	}
}
