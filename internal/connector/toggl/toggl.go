// Package toggl syncs Toggl Track workspace masters and time entries.
package toggl

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

const (
	Service = "toggl_track"

	defaultBaseURL    = "https://api.track.toggl.com/api/v9"
	defaultReportsURL = "https://api.track.toggl.com/reports/api/v3"
	apiVersion        = "v9"
	reportsVersion    = "reports-v3"

	entriesChunkDays = 90
	reportChunkDays  = 365
	reportPageSize   = 1000
)

type Connector struct {
	api     *fetch.Client
	reports *fetch.Client
	source  *credential.Source
	loc     *time.Location
	delay   time.Duration

	entriesChunk int
	reportChunk  int
	pageSize     int

	mu          sync.Mutex
	workspaceID int64
}

func NewConnector(d connector.Deps) *Connector {
	src := d.Cache.Source(Service, credential.Static{Field: "api_token"})
	// Toggl expects the token as user and the literal "api_token" as password.
	auth := fetch.Basic(func(ctx context.Context) (string, string, error) {
		tok, err := src.AccessToken(ctx)
		return tok, "api_token", err
	})
	reports := d.NewClient(Service, d.AuxURL(defaultReportsURL), auth)
	if reports.Limiter == nil {
		// Reports v3 is a leaky bucket of one request per second.
		reports.Limiter = rate.NewLimiter(rate.Every(time.Second), 1)
	}
	return &Connector{
		api:          d.NewClient(Service, d.BaseURL(defaultBaseURL), auth),
		reports:      reports,
		source:       src,
		loc:          d.Loc(),
		delay:        d.ChunkDelay,
		entriesChunk: d.ChunkDays(entriesChunkDays),
		reportChunk:  d.ChunkDays(reportChunkDays),
		pageSize:     min(d.PageSize(reportPageSize), reportPageSize),
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	master := func(name string, fn func(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error]) engine.Job {
		return &engine.Resource[fetch.Typed[Entity]]{
			Name: name, Table: d.Table(Service, name), APIVersion: apiVersion, Kind: engine.KindMaster,
			Fetch: fn, Transform: TransformEntity, Calls: c.api.Calls,
		}
	}
	return engine.Service{
		Name:      Service,
		Preflight: c.preflight,
		Masters: []engine.Job{
			master("projects", c.workspaceList("projects")),
			master("clients", c.workspaceList("clients")),
			master("tags", c.workspaceList("tags")),
			master("me", c.Me),
			master("workspaces", c.meList("workspaces")),
			master("users", c.workspaceList("users")),
			master("groups", c.workspaceList("groups")),
		},
		Resources: []engine.Job{
			&engine.Resource[fetch.Typed[TimeEntry]]{
				Name: "time_entries", Table: d.Table(Service, "time_entries"), APIVersion: apiVersion,
				Fetch: c.TimeEntries, Transform: TransformTimeEntry, Calls: c.api.Calls,
			},
			&engine.Resource[fetch.Typed[ReportRow]]{
				Name: "time_entries_report", Table: d.Table(Service, "time_entries_report"), APIVersion: reportsVersion,
				Fetch: c.Report, Transform: TransformReportRow, Calls: c.reports.Calls,
			},
		},
	}
}

func (c *Connector) preflight(ctx context.Context) error {
	var creds credentials
	return c.source.Decode(ctx, &creds)
}

// WorkspaceID returns workspace_id from the credentials, or the default
// workspace of the token owner.
func (c *Connector) WorkspaceID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workspaceID != 0 {
		return c.workspaceID, nil
	}
	var creds credentials
	if err := c.source.Decode(ctx, &creds); err != nil {
		return 0, err
	}
	if creds.WorkspaceID != 0 {
		c.workspaceID = creds.WorkspaceID
		return c.workspaceID, nil
	}
	var me Me
	if err := c.api.GetJSON(ctx, "/me", nil, &me); err != nil {
		return 0, err
	}
	if me.DefaultWorkspaceID == 0 {
		return 0, syncerr.Configuration(Service, "no workspace_id configured and /me has no default workspace")
	}
	c.workspaceID = me.DefaultWorkspaceID
	return c.workspaceID, nil
}

func (c *Connector) workspaceList(kind string) func(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error] {
	return func(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error] {
		return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[Entity], error) {
			wid, err := c.WorkspaceID(ctx)
			if err != nil {
				return nil, err
			}
			var out []fetch.Typed[Entity]
			if err := c.api.GetJSON(ctx, fmt.Sprintf("/workspaces/%d/%s", wid, kind), nil, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
	}
}

func (c *Connector) meList(kind string) func(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error] {
	return func(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error] {
		return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[Entity], error) {
			var out []fetch.Typed[Entity]
			if err := c.api.GetJSON(ctx, "/me/"+kind, nil, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
	}
}

func (c *Connector) Me(ctx context.Context, _ fetch.Window) iter.Seq2[fetch.Typed[Entity], error] {
	return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[Entity], error) {
		var me fetch.Typed[Entity]
		if err := c.api.GetJSON(ctx, "/me", nil, &me); err != nil {
			return nil, err
		}
		return []fetch.Typed[Entity]{me}, nil
	})
}

// TimeEntries lists the token owner's entries started inside the window.
func (c *Connector) TimeEntries(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[TimeEntry], error] {
	return fetch.Chunked(ctx, w, c.entriesChunk, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[fetch.Typed[TimeEntry], error] {
		return fetch.Once(ctx, func(ctx context.Context) ([]fetch.Typed[TimeEntry], error) {
			q := url.Values{}
			q.Set("start_date", chunk.FirstDay(c.loc))
			// end_date is exclusive.
			q.Set("end_date", fetch.StartOfDay(chunk.End.Add(-time.Nanosecond), c.loc).AddDate(0, 0, 1).Format(fetch.DateLayout))
			var out []fetch.Typed[TimeEntry]
			if err := c.api.GetJSON(ctx, "/me/time_entries", q, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
	})
}

// Report pages the workspace detailed report with first_row_number.
func (c *Connector) Report(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[ReportRow], error] {
	return fetch.Chunked(ctx, w, c.reportChunk, c.delay, func(ctx context.Context, chunk fetch.Window) iter.Seq2[fetch.Typed[ReportRow], error] {
		return fetch.Records(fetch.Pages(ctx, 0, func(ctx context.Context, row int) (fetch.Page[fetch.Typed[ReportRow], int], error) {
			wid, err := c.WorkspaceID(ctx)
			if err != nil {
				return fetch.Page[fetch.Typed[ReportRow], int]{}, err
			}
			resp, err := c.reports.Do(ctx, fetch.Request{
				Method: http.MethodPost,
				Path:   fmt.Sprintf("/workspace/%d/search/time_entries", wid),
				JSON: reportSearch{
					StartDate:      chunk.FirstDay(c.loc),
					EndDate:        chunk.LastDay(c.loc),
					PageSize:       c.pageSize,
					OrderBy:        "date",
					OrderDir:       "ASC",
					FirstRowNumber: row,
				},
			})
			if err != nil {
				return fetch.Page[fetch.Typed[ReportRow], int]{}, err
			}
			var rows []fetch.Typed[ReportRow]
			if err := json.Unmarshal(resp.Body, &rows); err != nil {
				return fetch.Page[fetch.Typed[ReportRow], int]{}, fmt.Errorf("%s: decode report: %w", Service, err)
			}
			next, _ := strconv.Atoi(resp.Header.Get("X-Next-Row-Number"))
			return fetch.Page[fetch.Typed[ReportRow], int]{
				Items: rows,
				Next:  next,
				More:  next > 0 && len(rows) >= c.pageSize,
			}, nil
		}))
	})
}
