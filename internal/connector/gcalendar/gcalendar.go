// Package gcalendar syncs Google Calendar events, calendar metadata and colors.
package gcalendar

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

const (
	Service = "google_calendar"

	defaultBaseURL  = "https://www.googleapis.com/calendar/v3"
	defaultTokenURL = "https://oauth2.googleapis.com/token"
	apiVersion      = "v3"

	eventsPageSize       = 2500
	calendarListPageSize = 250
	chunkDays            = 90
)

type Connector struct {
	client    *fetch.Client
	source    *credential.Source
	loc       *time.Location
	chunkDays int
	delay     time.Duration

	mu         sync.Mutex
	calendarID string
}

func NewConnector(d connector.Deps) *Connector {
	provider := &credential.OAuth2Refresher{
		TokenURL:  d.TokenURL(defaultTokenURL),
		AuthStyle: oauth2.AuthStyleInParams,
		HTTP:      d.HTTPClient(),
	}
	src := d.Cache.Source(Service, provider)
	return &Connector{
		client:    d.NewClient(Service, d.BaseURL(defaultBaseURL), fetch.Bearer(src)),
		source:    src,
		loc:       d.Loc(),
		chunkDays: d.ChunkDays(chunkDays),
		delay:     d.ChunkDelay,
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	return engine.Service{
		Name:      Service,
		Preflight: connector.Preflight(c.source),
		Masters: []engine.Job{
			&engine.Resource[ColorSet]{
				Name: "colors", Table: d.Table(Service, "colors"), APIVersion: apiVersion, Kind: engine.KindMaster,
				Fetch: c.Colors, Transform: TransformColorSet, Calls: c.client.Calls,
			},
			&engine.Resource[fetch.Typed[CalendarListEntry]]{
				Name: "calendar_list", Table: d.Table(Service, "calendar_list"), APIVersion: apiVersion, Kind: engine.KindMaster,
				Fetch: c.CalendarList, Transform: TransformCalendarListEntry, Calls: c.client.Calls,
			},
			&engine.Resource[fetch.Typed[Calendar]]{
				Name: "calendars", Table: d.Table(Service, "calendars"), APIVersion: apiVersion, Kind: engine.KindMaster,
				Fetch: c.Calendars, Transform: TransformCalendar, Calls: c.client.Calls,
			},
		},
		Resources: []engine.Job{
			&engine.Resource[CalendarEvent]{
				Name: "events", Table: d.Table(Service, "events"), APIVersion: apiVersion,
				Fetch: c.Events, Transform: TransformEvent, Calls: c.client.Calls,
			},
		},
	}
}

// CalendarID returns calendar_id from the credentials, or the primary calendar.
func (c *Connector) CalendarID(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calendarID != "" {
		return c.calendarID, nil
	}
	cfg, err := c.source.Config(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := cfg["calendar_id"].(string); ok && strings.TrimSpace(id) != "" {
		c.calendarID = strings.TrimSpace(id)
		return c.calendarID, nil
	}
	for entry, err := range fetch.Records(c.calendarListPages(ctx)) {
		if err != nil {
			return "", err
		}
		if entry.Value.Primary {
			c.calendarID = entry.Value.ID
			return c.calendarID, nil
		}
	}
	return "", syncerr.Configuration(Service, "primary calendar not found in calendarList")
}

// Events lists single events in 90-day chunks, including cancelled ones.
func (c *Connector) Events(ctx context.Context, w fetch.Window) iter.Seq2[CalendarEvent, error] {
	return fetch.Chunked(ctx, w, c.chunkDays, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[CalendarEvent, error] {
		return func(yield func(CalendarEvent, error) bool) {
			calendarID, err := c.CalendarID(ctx)
			if err != nil {
				yield(CalendarEvent{}, err)
				return
			}
			timeMin := fetch.StartOfDay(chunk.Start, c.loc)
			timeMax := fetch.StartOfDay(chunk.End.Add(-time.Nanosecond), c.loc).AddDate(0, 0, 1)
			pages := fetch.Pages(ctx, "", func(ctx context.Context, token string) (fetch.Page[fetch.Typed[Event], string], error) {
				q := url.Values{}
				q.Set("timeMin", timeMin.Format(time.RFC3339))
				q.Set("timeMax", timeMax.Format(time.RFC3339))
				q.Set("maxResults", strconv.Itoa(eventsPageSize))
				q.Set("singleEvents", "true")
				q.Set("showDeleted", "true")
				q.Set("orderBy", "startTime")
				if token != "" {
					q.Set("pageToken", token)
				}
				var page eventsPage
				if err := c.client.GetJSON(ctx, "/calendars/"+url.PathEscape(calendarID)+"/events", q, &page); err != nil {
					return fetch.Page[fetch.Typed[Event], string]{}, err
				}
				return fetch.CursorPage(page.Items, page.NextPageToken), nil
			})
			for ev, err := range fetch.Records(pages) {
				if !yield(CalendarEvent{CalendarID: calendarID, Event: ev, Location: c.loc}, err) || err != nil {
					return
				}
			}
		}
	})
}

func (c *Connector) Colors(ctx context.Context, _ fetch.Window) iter.Seq2[ColorSet, error] {
	return fetch.Once(ctx, func(ctx context.Context) ([]ColorSet, error) {
		var resp colorsResponse
		if err := c.client.GetJSON(ctx, "/colors", nil, &resp); err != nil {
			return nil, err
		}
		var out []ColorSet
		if len(resp.Event) > 0 && string(resp.Event) != "null" {
			out = append(out, ColorSet{Kind: "event", Colors: resp.Event})
		}
		if len(resp.Calendar) > 0 && string(resp.Calendar) != "null" {
			out = append(out, ColorSet{Kind: "calendar", Colors: resp.Calendar})
		}
		return out, nil
	})
}

func (c *Connector) CalendarList(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[CalendarListEntry], error] {
	return fetch.Records(c.calendarListPages(ctx))
}

func (c *Connector) calendarListPages(ctx context.Context) iter.Seq2[[]fetch.Typed[CalendarListEntry], error] {
	return fetch.Pages(ctx, "", func(ctx context.Context, token string) (fetch.Page[fetch.Typed[CalendarListEntry], string], error) {
		q := url.Values{}
		q.Set("maxResults", strconv.Itoa(calendarListPageSize))
		if token != "" {
			q.Set("pageToken", token)
		}
		var page calendarListPage
		if err := c.client.GetJSON(ctx, "/users/me/calendarList", q, &page); err != nil {
			return fetch.Page[fetch.Typed[CalendarListEntry], string]{}, err
		}
		return fetch.CursorPage(page.Items, page.NextPageToken), nil
	})
}

// Calendars fetches metadata of the synced calendar.
func (c *Connector) Calendars(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Calendar], error] {
	return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[Calendar], error) {
		calendarID, err := c.CalendarID(ctx)
		if err != nil {
			return nil, err
		}
		var cal fetch.Typed[Calendar]
		if err := c.client.GetJSON(ctx, "/calendars/"+url.PathEscape(calendarID), nil, &cal); err != nil {
			return nil, err
		}
		if cal.Value.ID == "" {
			return nil, nil
		}
		return []fetch.Typed[Calendar]{cal}, nil
	})
}
