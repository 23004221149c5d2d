// Package notion syncs pages of configured Notion databases.
package notion

import (
	"context"
	"iter"
	"net/http"
	"regexp"
	"strings"
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

const (
	Service = "notion"

	defaultBaseURL    = "https://api.notion.com/v1"
	defaultAPIVersion = "2022-06-28"

	queryPageSize = 100
)

// Database is one synced Notion database. Configured as "name=id" or "id".
type Database struct {
	Name string
	ID   string
}

var nonWord = regexp.MustCompile(`[^a-z0-9_]+`)

// ParseDatabases reads the configured database list. Names become resource
// names, so they are lowercased and reduced to [a-z0-9_].
func ParseDatabases(entries []string) ([]Database, error) {
	var out []Database
	seen := map[string]bool{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		name, id, ok := strings.Cut(e, "=")
		if !ok {
			id = name
			name = strings.ReplaceAll(id, "-", "")
		}
		name = strings.Trim(nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_"), "_")
		id = strings.TrimSpace(id)
		if name == "" || id == "" {
			return nil, syncerr.Configuration(Service, "invalid database entry %q", e)
		}
		if seen[name] {
			return nil, syncerr.Configuration(Service, "duplicate database name %q", name)
		}
		seen[name] = true
		out = append(out, Database{Name: name, ID: id})
	}
	return out, nil
}

type Connector struct {
	client   *fetch.Client
	source   *credential.Source
	pageSize int
}

func NewConnector(d connector.Deps) *Connector {
	src := d.Cache.Source(Service, credential.Static{Field: "api_key"})
	client := d.NewClient(Service, d.BaseURL(defaultBaseURL), fetch.Bearer(src))
	version := strings.TrimSpace(d.Config.APIVersion)
	if version == "" {
		version = defaultAPIVersion
	}
	client.Header = http.Header{}
	client.Header.Set("Notion-Version", version)
	return &Connector{
		client:   client,
		source:   src,
		pageSize: min(d.PageSize(queryPageSize), queryPageSize),
	}
}

func New(d connector.Deps) engine.Service {
	c := NewConnector(d)
	svc := engine.Service{Name: Service, Preflight: connector.Preflight(c.source)}
	dbs, err := ParseDatabases(d.Config.Databases)
	if err != nil {
		svc.Preflight = func(context.Context) error { return err }
		return svc
	}
	version := c.client.Header.Get("Notion-Version")
	for _, db := range dbs {
		svc.Resources = append(svc.Resources, &engine.Resource[fetch.Typed[Page]]{
			Name: db.Name, Table: d.Table(Service, db.Name), APIVersion: version,
			Fetch: c.Query(db), Transform: TransformPage, Calls: c.client.Calls,
		})
	}
	if len(dbs) == 0 {
		d.Log(Service).Warn("no notion databases configured")
	}
	return svc
}

// Query pages through a database, limited to pages edited inside the window.
func (c *Connector) Query(db Database) func(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[Page], error] {
	return func(ctx context.Context, w fetch.Window) iter.Seq2[fetch.Typed[Page], error] {
		return fetch.Records(fetch.Pages(ctx, "", func(ctx context.Context, cursor string) (fetch.Page[fetch.Typed[Page], string], error) {
			body := queryRequest{PageSize: c.pageSize, StartCursor: cursor, Filter: editedWithin(w)}
			var resp queryResponse
			if err := c.client.DoJSON(ctx, fetch.Request{
				Method: http.MethodPost,
				Path:   "/databases/" + db.ID + "/query",
				JSON:   body,
			}, &resp); err != nil {
				return fetch.Page[fetch.Typed[Page], string]{}, err
			}
			next := ""
			if resp.HasMore && resp.NextCursor != nil {
				next = *resp.NextCursor
			}
			return fetch.CursorPage(resp.Results, next), nil
		}))
	}
}

func editedWithin(w fetch.Window) *filter {
	var parts []filter
	if !w.Start.IsZero() {
		parts = append(parts, filter{Timestamp: "last_edited_time", LastEditedTime: &timestampCondition{OnOrAfter: w.Start.UTC().Format(time.RFC3339)}})
	}
	if !w.End.IsZero() {
		parts = append(parts, filter{Timestamp: "last_edited_time", LastEditedTime: &timestampCondition{Before: w.End.UTC().Format(time.RFC3339)}})
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return &parts[0]
	default:
		return &filter{And: parts}
	}
}
