package toggl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/fetch"
)

func typedEntry(t *testing.T, raw string) fetch.Typed[TimeEntry] {
	t.Helper()
	var e fetch.Typed[TimeEntry]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	return e
}

func TestTransformTimeEntry(t *testing.T) {
	cases := []struct {
		name        string
		raw         string
		wantSkip    bool
		wantDeleted bool
	}{
		{name: "stopped", raw: `{"id":11,"duration":3600,"start":"2025-06-01T09:00:00Z","stop":"2025-06-01T10:00:00Z","at":"2025-06-01T10:00:05Z"}`},
		{name: "running", raw: `{"id":12,"duration":-1748768400,"start":"2025-06-01T09:00:00Z"}`, wantSkip: true},
		{name: "deleted", raw: `{"id":13,"duration":60,"start":"2025-06-01T09:00:00Z","server_deleted_at":"2025-06-02T00:00:00Z"}`, wantDeleted: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row, err := TransformTimeEntry(typedEntry(t, tc.raw))
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if (row == nil) != tc.wantSkip {
				t.Fatalf("row=%+v wantSkip=%v", row, tc.wantSkip)
			}
			if row != nil && row.Deleted != tc.wantDeleted {
				t.Fatalf("deleted=%v want=%v", row.Deleted, tc.wantDeleted)
			}
		})
	}
}

func TestTransformTimeEntryUsesUpdateTime(t *testing.T) {
	row, err := TransformTimeEntry(typedEntry(t, `{"id":11,"duration":60,"start":"2025-06-01T09:00:00Z","at":"2025-06-03T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)
	if row.SourceID != "11" || row.RecordAt == nil || !row.RecordAt.Equal(want) {
		t.Fatalf("row=%+v want record_at=%v", row, want)
	}
}

func TestTransformReportRow(t *testing.T) {
	var r fetch.Typed[ReportRow]
	_ = json.Unmarshal([]byte(`{"user_id":1,"time_entries":[{"id":99,"seconds":60,"start":"2025-06-01T09:00:00Z","at":"2025-06-01T09:01:00Z"}]}`), &r)
	row, err := TransformReportRow(r)
	if err != nil || row.SourceID != "99" {
		t.Fatalf("row=%+v err=%v", row, err)
	}
	var empty fetch.Typed[ReportRow]
	_ = json.Unmarshal([]byte(`{"user_id":1,"time_entries":[]}`), &empty)
	if row, err := TransformReportRow(empty); row != nil || err != nil {
		t.Fatalf("empty row=%+v err=%v", row, err)
	}
}

type staticStore struct{ creds map[string]any }

func (s staticStore) Get(_ context.Context, service string) (*credential.Secret, error) {
	return &credential.Secret{Service: service, Credentials: s.creds}, nil
}
func (s staticStore) Update(context.Context, string, map[string]any, *time.Time) error { return nil }

func TestReportPagesByRowNumber(t *testing.T) {
	var mu sync.Mutex
	var rows []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "tok" || pass != "api_token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/me":
			_, _ = w.Write([]byte(`{"id":1,"default_workspace_id":42}`))
		case "/workspace/42/search/time_entries":
			var body reportSearch
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			rows = append(rows, body.FirstRowNumber)
			mu.Unlock()
			if body.FirstRowNumber == 0 {
				w.Header().Set("X-Next-Row-Number", "3")
				_, _ = w.Write([]byte(`[{"time_entries":[{"id":1}]},{"time_entries":[{"id":2}]}]`))
				return
			}
			_, _ = w.Write([]byte(`[{"time_entries":[{"id":3}]}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewConnector(connector.Deps{
		Cache:  credential.NewCache(staticStore{creds: map[string]any{"api_token": "tok"}}, 0, nil),
		HTTP:   srv.Client(),
		Config: config.ConnectorConfig{BaseURL: srv.URL, AuxURL: srv.URL, PageSize: 2, RatePerSecond: 1000, Burst: 10},
	})
	w := fetch.Window{Start: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)}
	out, err := fetch.Collect(c.Report(context.Background(), w))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out) != 3 {
		t.Fatalf("rows=%d want=3", len(out))
	}
	if len(rows) != 2 || rows[0] != 0 || rows[1] != 3 {
		t.Fatalf("first_row_number sequence=%v", rows)
	}
}

func TestWorkspaceFromCredentials(t *testing.T) {
	c := NewConnector(connector.Deps{
		Cache: credential.NewCache(staticStore{creds: map[string]any{"api_token": "tok", "workspace_id": "77"}}, 0, nil),
	})
	wid, err := c.WorkspaceID(context.Background())
	if err != nil || wid != 77 {
		t.Fatalf("wid=%d err=%v", wid, err)
	}
}

func TestMissingTokenIsConfigurationError(t *testing.T) {
	c := NewConnector(connector.Deps{Cache: credential.NewCache(staticStore{creds: map[string]any{}}, 0, nil)})
	if err := c.preflight(context.Background()); err == nil {
		t.Fatalf("expected configuration error")
	}
}
