package zaim

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/models"
	"lifesync/internal/repository"
	"lifesync/internal/writer"
)

func record(t *testing.T, raw string) UserRecord[Transaction] {
	t.Helper()
	var item fetch.Typed[Transaction]
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		t.Fatalf("unmarshal err=%v", err)
	}
	return UserRecord[Transaction]{UserID: 7, Item: item}
}

func TestTransformTransaction(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	cases := []struct {
		name        string
		raw         string
		wantSkip    bool
		wantDeleted bool
		wantID      string
	}{
		{name: "payment", raw: `{"id":1,"mode":"payment","date":"2025-06-01","amount":1200,"from_account_id":3,"active":1,"modified":"2025-06-01 12:00:00"}`, wantID: "7:1"},
		{name: "transfer without to account", raw: `{"id":2,"mode":"transfer","date":"2025-06-01","amount":500,"from_account_id":3}`, wantSkip: true},
		{name: "transfer", raw: `{"id":3,"mode":"transfer","date":"2025-06-01","amount":500,"from_account_id":3,"to_account_id":4}`, wantID: "7:3"},
		{name: "deleted", raw: `{"id":4,"mode":"payment","date":"2025-06-01","amount":10,"active":-1}`, wantID: "7:4", wantDeleted: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row, err := transformTransaction(record(t, tc.raw), jst)
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if (row == nil) != tc.wantSkip {
				t.Fatalf("row=%+v wantSkip=%v", row, tc.wantSkip)
			}
			if row == nil {
				return
			}
			if row.SourceID != tc.wantID || row.Deleted != tc.wantDeleted {
				t.Fatalf("row=%+v want id=%s deleted=%v", row, tc.wantID, tc.wantDeleted)
			}
		})
	}
}

func TestTransactionAmountIsDecimal(t *testing.T) {
	row, err := transformTransaction(record(t, `{"id":1,"mode":"income","date":"2025-06-01","amount":123456789012,"active":1}`), time.UTC)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	tx := row.Data.(TransactionRow)
	if tx.Amount.String() != "123456789012" {
		t.Fatalf("amount=%s", tx.Amount)
	}
	if tx.FromAccountID != nil || tx.ToAccountID != nil {
		t.Fatalf("accounts=%v/%v want nil", tx.FromAccountID, tx.ToAccountID)
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if row.RecordAt == nil || !row.RecordAt.Equal(want) {
		t.Fatalf("record_at=%v want=%v", row.RecordAt, want)
	}
}

type staticStore struct{ creds map[string]any }

func (s staticStore) Get(_ context.Context, service string) (*credential.Secret, error) {
	return &credential.Secret{Service: service, Credentials: s.creds}, nil
}
func (s staticStore) Update(context.Context, string, map[string]any, *time.Time) error { return nil }

type memWarehouse struct{ rows map[string]int }

func (m *memWarehouse) UpsertRaw(_ context.Context, _ string, _ []string, rows []models.RawRecord) (repository.UpsertCounts, error) {
	for _, r := range rows {
		m.rows[r.SourceID]++
	}
	return repository.UpsertCounts{Inserted: len(rows)}, nil
}

func (m *memWarehouse) DeleteRawBySourceIDs(_ context.Context, _ string, ids []string) (int64, error) {
	return int64(len(ids)), nil
}

func TestTransactionsSignedAndPaged(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "OAuth ") ||
			!strings.Contains(r.Header.Get("Authorization"), `oauth_signature_method="HMAC-SHA1"`) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/home/user/verify":
			_, _ = w.Write([]byte(`{"me":{"id":7}}`))
		case "/home/money":
			pages = append(pages, r.URL.Query().Get("page"))
			if r.URL.Query().Get("page") == "1" {
				_, _ = w.Write([]byte(`{"money":[{"id":1,"mode":"payment","amount":100},{"id":2,"mode":"transfer","amount":5,"from_account_id":1}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"money":[{"id":3,"mode":"payment","amount":300}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewConnector(connector.Deps{
		Cache: credential.NewCache(staticStore{creds: map[string]any{
			"consumer_key": "ck", "consumer_secret": "cs", "access_token": "at", "access_token_secret": "as",
		}}, 0, nil),
		HTTP:   srv.Client(),
		Config: config.ConnectorConfig{BaseURL: srv.URL, PageSize: 2},
	})
	w := fetch.Window{Start: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	out, err := fetch.Collect(c.Transactions(context.Background(), w))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(out) != 3 || out[0].UserID != 7 {
		t.Fatalf("out=%+v", out)
	}
	if strings.Join(pages, ",") != "1,2" {
		t.Fatalf("pages=%v", pages)
	}
}

func TestTransferWithoutAccountCountsAsSkipped(t *testing.T) {
	wh := &memWarehouse{rows: map[string]int{}}
	e := &engine.Engine{Writer: writer.New(wh, 0, nil), Now: time.Now}
	res := &engine.Resource[UserRecord[Transaction]]{
		Name: "transactions", Table: "raw.zaim__transactions",
		Fetch: func(ctx context.Context, _ fetch.Window) iter.Seq2[UserRecord[Transaction], error] {
			return fetch.Once(ctx, func(context.Context) ([]UserRecord[Transaction], error) {
				return []UserRecord[Transaction]{
					record(t, `{"id":1,"mode":"payment","amount":1}`),
					record(t, `{"id":2,"mode":"transfer","amount":1,"from_account_id":1}`),
				}, nil
			})
		},
		Transform: func(r UserRecord[Transaction]) (*engine.Row, error) { return transformTransaction(r, time.UTC) },
	}
	got := engine.Execute(context.Background(), e, Service, res, engine.Request{})
	if got.Skipped != 1 || got.Inserted != 1 {
		t.Fatalf("result=%+v want skipped=1 inserted=1", got)
	}
}
