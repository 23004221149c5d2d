// Package fitbit syncs Fitbit sleep logs, daily activity and daily health series.
package fitbit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"golang.org/x/oauth2"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
)

const (
	Service = "fitbit"

	defaultBaseURL  = "https://api.fitbit.com"
	defaultTokenURL = "https://api.fitbit.com/oauth2/token"
	apiVersion      = "1"
	sleepVersion    = "1.2"

	sleepChunkDays  = 100
	seriesChunkDays = 30
)

// Series describes a date-range endpoint returning {key: [{dateTime, value}]}.
type Series struct {
	Resource string
	Path     string
	Key      string
}

// DailySeries lists the date-range series synced besides sleep and activity.
var DailySeries = []Series{
	{Resource: "heart_rate", Path: "/1/user/-/activities/heart/date/%s/%s.json", Key: "activities-heart"},
	{Resource: "hrv", Path: "/1/user/-/hrv/date/%s/%s.json", Key: "hrv"},
	{Resource: "breathing_rate", Path: "/1/user/-/br/date/%s/%s.json", Key: "br"},
	{Resource: "cardio_score", Path: "/1/user/-/cardioscore/date/%s/%s.json", Key: "cardioScore"},
	{Resource: "temperature_skin", Path: "/1/user/-/temp/skin/date/%s/%s.json", Key: "tempSkin"},
	{Resource: "active_zone_minutes", Path: "/1/user/-/activities/active-zone-minutes/date/%s/%s.json", Key: "activities-active-zone-minutes"},
}

type Connector struct {
	client *fetch.Client
	source *credential.Source
	loc    *time.Location
	delay  time.Duration

	sleepChunk  int
	seriesChunk int
}

func NewConnector(d connector.Deps) *Connector {
	provider := &credential.OAuth2Refresher{
		TokenURL:  d.TokenURL(defaultTokenURL),
		AuthStyle: oauth2.AuthStyleInHeader,
		HTTP:      d.HTTPClient(),
	}
	src := d.Cache.Source(Service, provider)
	return &Connector{
		client:      d.NewClient(Service, d.BaseURL(defaultBaseURL), fetch.Bearer(src)),
		source:      src,
		loc:         d.Loc(),
		delay:       d.ChunkDelay,
		sleepChunk:  d.ChunkDays(sleepChunkDays),
		seriesChunk: d.ChunkDays(seriesChunkDays),
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	jobs := []engine.Job{
		&engine.Resource[fetch.Typed[SleepLog]]{
			Name: "sleep", Table: d.Table(Service, "sleep"), APIVersion: sleepVersion,
			Fetch: c.Sleep, Transform: c.TransformSleep, Calls: c.client.Calls,
		},
		&engine.Resource[DailyActivity]{
			Name: "activity", Table: d.Table(Service, "activity"), APIVersion: apiVersion,
			Fetch: c.Activity, Transform: c.TransformDay, Calls: c.client.Calls,
		},
	}
	for _, s := range DailySeries {
		jobs = append(jobs, &engine.Resource[fetch.Typed[SeriesPoint]]{
			Name: s.Resource, Table: d.Table(Service, s.Resource), APIVersion: apiVersion,
			Fetch: c.Series(s), Transform: c.TransformPoint, Calls: c.client.Calls,
		})
	}
	return engine.Service{
		Name:      Service,
		Preflight: connector.Preflight(c.source),
		Resources: jobs,
	}
}

// Sleep lists sleep logs in chunks of at most 100 days.
func (c *Connector) Sleep(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[SleepLog], error] {
	return fetch.Chunked(ctx, w, c.sleepChunk, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[fetch.Typed[SleepLog], error] {
		return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[SleepLog], error) {
			var resp sleepResponse
			path := fmt.Sprintf("/1.2/user/-/sleep/date/%s/%s.json", chunk.FirstDay(c.loc), chunk.LastDay(c.loc))
			if err := c.client.GetJSON(ctx, path, nil, &resp); err != nil {
				return nil, err
			}
			return resp.Sleep, nil
		})
	})
}

// Activity fetches the daily activity summary one day at a time.
func (c *Connector) Activity(ctx context.Context, w fetch.Window) iter.Seq2[DailyActivity, error] {
	return func(yield func(DailyActivity, error) bool) {
		for i, day := range fetch.Days(w, c.loc) {
			if i > 0 {
				if err := fetch.Sleep(ctx, c.delay); err != nil {
					yield(DailyActivity{}, err)
					return
				}
			}
			date := day.Format(fetch.DateLayout)
			var raw json.RawMessage
			if err := c.client.GetJSON(ctx, fmt.Sprintf("/1/user/-/activities/date/%s.json", date), nil, &raw); err != nil {
				yield(DailyActivity{}, err)
				return
			}
			if !yield(DailyActivity{Date: date, Data: raw}, nil) {
				return
			}
		}
	}
}

// Series returns the fetcher of one daily series in 30-day chunks.
func (c *Connector) Series(s Series) func(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[SeriesPoint], error] {
	return func(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[SeriesPoint], error] {
		return fetch.Chunked(ctx, w, c.seriesChunk, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[fetch.Typed[SeriesPoint], error] {
			return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[SeriesPoint], error) {
				var resp map[string]json.RawMessage
				if err := c.client.GetJSON(ctx, fmt.Sprintf(s.Path, chunk.FirstDay(c.loc), chunk.LastDay(c.loc)), nil, &resp); err != nil {
					return nil, err
				}
				body, ok := resp[s.Key]
				if !ok || string(body) == "null" {
					return nil, nil
				}
				var points []fetch.Typed[SeriesPoint]
				if err := json.Unmarshal(body, &points); err != nil {
					return nil, fmt.Errorf("%s: decode %s: %w", Service, s.Key, err)
				}
				return points, nil
			})
		})
	}
}
