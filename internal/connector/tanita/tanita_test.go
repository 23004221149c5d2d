package tanita

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/fetch"
)

func TestGroupByTimestamp(t *testing.T) {
	items := []Item{
		{Date: "202506010730", KeyData: "65.30", Model: "01000117", Tag: "6021"},
		{Date: "202506010730", KeyData: "18.2", Model: "00000000", Tag: "6022"},
		{Date: "202506020745", KeyData: "65.10", Model: "01000117", Tag: "6021"},
		{Date: "202506020745", KeyData: "120", Model: "01000117", Tag: "622E"},
	}
	got := Group(Kinds[0], items)
	if len(got) != 2 {
		t.Fatalf("groups=%d want=2", len(got))
	}
	first := got[0]
	if first.Key() != "2025-05-31T22:30:00.000Z" {
		t.Fatalf("key=%s", first.Key())
	}
	if first.Values["weight"].String() != "65.3" || first.Values["body_fat_percent"].String() != "18.2" {
		t.Fatalf("values=%v", first.Values)
	}
	if first.Model != "01000117" {
		t.Fatalf("model=%s", first.Model)
	}
	if _, ok := got[1].Values["systolic"]; ok {
		t.Fatalf("blood pressure tag leaked into body composition")
	}
}

func TestTransformMeasurement(t *testing.T) {
	got := Group(Kinds[1], []Item{
		{Date: "202506010800", KeyData: "121", Tag: "622E"},
		{Date: "202506010800", KeyData: "79", Tag: "622F"},
		{Date: "202506010800", KeyData: "abc", Tag: "6230"},
	})
	row, err := TransformMeasurement(got[0])
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	b, _ := json.Marshal(row.Data)
	if !strings.Contains(string(b), `"systolic":121`) || strings.Contains(string(b), "pulse") {
		t.Fatalf("data=%s", b)
	}
	if row.SourceID != "2025-05-31T23:00:00.000Z" {
		t.Fatalf("source_id=%s", row.SourceID)
	}

	bad := Group(Kinds[1], []Item{{Date: "2025-06-01", KeyData: "1", Tag: "622E"}})
	if _, err := TransformMeasurement(bad[0]); err == nil {
		t.Fatalf("expected validation error for bad date")
	}
}

type staticStore struct{ secret *credential.Secret }

func (s staticStore) Get(context.Context, string) (*credential.Secret, error) { return s.secret, nil }
func (s staticStore) Update(context.Context, string, map[string]any, *time.Time) error {
	return nil
}

func TestMeasurementsSendTokenAndRange(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/innerscan.json" || r.URL.Query().Get("access_token") != "at" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		query = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data":[{"date":"202506010730","keydata":"65.3","model":"01000117","tag":"6021"}]}`))
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
	w := fetch.Window{
		Start: time.Date(2025, 6, 1, 0, 0, 0, 0, jst),
		End:   time.Date(2025, 6, 3, 0, 0, 0, 0, jst),
	}
	out, err := fetch.Collect(c.Measurements(Kinds[0])(context.Background(), w))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out) != 1 {
		t.Fatalf("measurements=%d want=1", len(out))
	}
	for _, want := range []string{"from=20250601000000", "to=20250602235959", "tag=6021%2C6022", "date=1"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query=%s missing %s", query, want)
		}
	}
}
