// Package zaim syncs Zaim household accounting masters and transactions.
package zaim

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/dghubble/oauth1"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

const (
	Service = "zaim"

	defaultBaseURL = "https://api.zaim.net/v2"
	apiVersion     = "v2"

	moneyPageSize = 100
	chunkDays     = 365
)

type Connector struct {
	client    *fetch.Client
	source    *credential.Source
	loc       *time.Location
	delay     time.Duration
	chunkDays int
	pageSize  int

	mu     sync.Mutex
	userID int64
}

func NewConnector(d connector.Deps) *Connector {
	src := d.Cache.Source(Service, credential.Static{Field: "access_token"})
	client := d.NewClient(Service, d.BaseURL(defaultBaseURL), nil)
	hc := *d.HTTPClient()
	base := hc.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc.Transport = &signingTransport{source: src, base: base}
	client.HTTP = &hc
	return &Connector{
		client:    client,
		source:    src,
		loc:       d.Loc(),
		delay:     d.ChunkDelay,
		chunkDays: d.ChunkDays(chunkDays),
		pageSize:  d.PageSize(moneyPageSize),
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	master := func(name, path string) engine.Job {
		return &engine.Resource[UserRecord[Master]]{
			Name: name, Table: d.Table(Service, name), APIVersion: apiVersion, Kind: engine.KindMaster,
			Fetch: c.masters(path), Transform: TransformMaster, Calls: c.client.Calls,
		}
	}
	return engine.Service{
		Name:      Service,
		Preflight: c.preflight,
		Masters: []engine.Job{
			master("categories", "/home/category"),
			master("genres", "/home/genre"),
			master("accounts", "/home/account"),
		},
		Resources: []engine.Job{
			&engine.Resource[UserRecord[Transaction]]{
				Name: "transactions", Table: d.Table(Service, "transactions"), APIVersion: apiVersion,
				Fetch: c.Transactions, Transform: c.TransformTransaction, Calls: c.client.Calls,
			},
		},
	}
}

// signingTransport signs every request with OAuth1 HMAC-SHA1 using the
// credentials current at request time.
type signingTransport struct {
	source *credential.Source
	base   http.RoundTripper
}

func (t *signingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	var creds credentials
	if err := t.source.Decode(ctx, &creds); err != nil {
		return nil, err
	}
	cfg := oauth1.NewConfig(creds.ConsumerKey, creds.ConsumerSecret)
	ctx = context.WithValue(ctx, oauth1.HTTPClient, &http.Client{Transport: t.base})
	signed := cfg.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
	return signed.Transport.RoundTrip(req)
}

func (c *Connector) preflight(ctx context.Context) error {
	var creds credentials
	return c.source.Decode(ctx, &creds)
}

// UserID returns user_id from the credentials or the verified token owner.
func (c *Connector) UserID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != 0 {
		return c.userID, nil
	}
	var creds credentials
	if err := c.source.Decode(ctx, &creds); err != nil {
		return 0, err
	}
	if creds.UserID != 0 {
		c.userID = creds.UserID
		return c.userID, nil
	}
	var resp verifyResponse
	if err := c.client.GetJSON(ctx, "/home/user/verify", nil, &resp); err != nil {
		return 0, err
	}
	if resp.Me.ID == 0 {
		return 0, syncerr.Configuration(Service, "user verify returned no id")
	}
	c.userID = resp.Me.ID
	return c.userID, nil
}

func mappingQuery() url.Values {
	q := url.Values{}
	q.Set("mapping", "1")
	return q
}

func (c *Connector) masters(path string) func(ctx context.Context, _ fetch.Window) iter.Seq2[UserRecord[Master], error] {
	return func(ctx context.Context, _ fetch.Window) iter.Seq2[UserRecord[Master], error] {
		return fetch.Once(ctx, func(ctx context.Context) ([]UserRecord[Master], error) {
			uid, err := c.UserID(ctx)
			if err != nil {
				return nil, err
			}
			var items []fetch.Typed[Master]
			switch path {
			case "/home/category":
				var resp categoryResponse
				err = c.client.GetJSON(ctx, path, mappingQuery(), &resp)
				items = resp.Categories
			case "/home/genre":
				var resp genreResponse
				err = c.client.GetJSON(ctx, path, mappingQuery(), &resp)
				items = resp.Genres
			default:
				var resp accountResponse
				err = c.client.GetJSON(ctx, path, mappingQuery(), &resp)
				items = resp.Accounts
			}
			if err != nil {
				return nil, err
			}
			out := make([]UserRecord[Master], 0, len(items))
			for _, it := range items {
				out = append(out, UserRecord[Master]{UserID: uid, Item: it})
			}
			return out, nil
		})
	}
}

// Transactions pages /home/money by page and limit for each chunk of days.
func (c *Connector) Transactions(ctx context.Context, w fetch.Window) iter.Seq2[UserRecord[Transaction], error] {
	return fetch.Chunked(ctx, w, c.chunkDays, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[UserRecord[Transaction], error] {
		return fetch.Records(fetch.Pages(ctx, 1, func(ctx context.Context, page int) (fetch.Page[UserRecord[Transaction], int], error) {
			uid, err := c.UserID(ctx)
			if err != nil {
				return fetch.Page[UserRecord[Transaction], int]{}, err
			}
			q := mappingQuery()
			q.Set("start_date", chunk.FirstDay(c.loc))
			q.Set("end_date", chunk.LastDay(c.loc))
			q.Set("page", strconv.Itoa(page))
			q.Set("limit", strconv.Itoa(c.pageSize))
			var resp moneyResponse
			if err := c.client.GetJSON(ctx, "/home/money", q, &resp); err != nil {
				return fetch.Page[UserRecord[Transaction], int]{}, err
			}
			out := make([]UserRecord[Transaction], 0, len(resp.Money))
			for _, m := range resp.Money {
				out = append(out, UserRecord[Transaction]{UserID: uid, Item: m})
			}
			return fetch.SizedPage(out, c.pageSize, page+1), nil
		}))
	})
}
