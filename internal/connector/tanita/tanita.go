// Package tanita syncs Tanita Health Planet measurements.
package tanita

import (
	"context"
	"iter"
	"net/url"
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
)

const (
	Service = "tanita_health_planet"

	defaultBaseURL  = "https://www.healthplanet.jp/status"
	defaultTokenURL = "https://www.healthplanet.jp/oauth/token"
	apiVersion      = "status"

	chunkDays = 90

	requestLayout = "20060102150405"
	itemLayout    = "200601021504"
)

// Health Planet reports times in Japan time regardless of the account.
var jst = time.FixedZone("JST", 9*60*60)

// Kind is one Health Planet status endpoint and the tags it is queried for.
type Kind struct {
	Resource string
	Endpoint string
	// Fields maps tags to stored field names.
	Fields map[string]string
}

var Kinds = []Kind{
	{Resource: "body_composition", Endpoint: "innerscan", Fields: map[string]string{
		"6021": "weight",
		"6022": "body_fat_percent",
	}},
	{Resource: "blood_pressure", Endpoint: "sphygmomanometer", Fields: map[string]string{
		"622E": "systolic",
		"622F": "diastolic",
		"6230": "pulse",
	}},
	{Resource: "steps", Endpoint: "pedometer", Fields: map[string]string{
		"6331": "steps",
	}},
}

type Connector struct {
	client    *fetch.Client
	source    *credential.Source
	delay     time.Duration
	chunkDays int
}

func NewConnector(d connector.Deps) *Connector {
	provider := &credential.FormRefresher{
		TokenURL: d.TokenURL(defaultTokenURL),
		Client:   d.NewClient(Service, "", nil),
	}
	src := d.Cache.Source(Service, provider)
	return &Connector{
		client:    d.NewClient(Service, d.BaseURL(defaultBaseURL), fetch.QueryToken("access_token", src)),
		source:    src,
		delay:     d.ChunkDelay,
		chunkDays: d.ChunkDays(chunkDays),
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	svc := engine.Service{Name: Service, Preflight: connector.Preflight(c.source)}
	for _, k := range Kinds {
		svc.Resources = append(svc.Resources, &engine.Resource[Measurement]{
			Name: k.Resource, Table: d.Table(Service, k.Resource), APIVersion: apiVersion,
			Fetch: c.Measurements(k), Transform: TransformMeasurement, Calls: c.client.Calls,
		})
	}
	return svc
}

// Measurements fetches kind in 90-day chunks and groups tag values taken
// at the same minute into one measurement.
func (c *Connector) Measurements(k Kind) func(ctx context.Context, w fetch.Window) iter.Seq2[Measurement, error] {
	return func(ctx context.Context, w fetch.Window) iter.Seq2[Measurement, error] {
		return fetch.Chunked(ctx, w, c.chunkDays, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[Measurement, error] {
			return fetch.Once(ctx, func(ctx context.Context) ([]Measurement, error) {
				q := url.Values{}
				q.Set("date", "1")
				q.Set("from", chunk.Start.In(jst).Format(requestLayout))
				q.Set("to", chunk.End.Add(-time.Second).In(jst).Format(requestLayout))
				q.Set("tag", k.tags())
				var resp statusResponse
				if err := c.client.GetJSON(ctx, "/"+k.Endpoint+".json", q, &resp); err != nil {
					return nil, err
				}
				return Group(k, resp.Data), nil
			})
		})
	}
}
