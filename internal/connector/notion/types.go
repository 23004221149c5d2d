package notion

import (
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

type Page struct {
	ID             string    `json:"id"`
	LastEditedTime time.Time `json:"last_edited_time"`
	Archived       bool      `json:"archived"`
	InTrash        bool      `json:"in_trash"`
}

type queryRequest struct {
	PageSize    int     `json:"page_size,omitempty"`
	StartCursor string  `json:"start_cursor,omitempty"`
	Filter      *filter `json:"filter,omitempty"`
}

type filter struct {
	Timestamp      string              `json:"timestamp,omitempty"`
	LastEditedTime *timestampCondition `json:"last_edited_time,omitempty"`
	And            []filter            `json:"and,omitempty"`
}

type timestampCondition struct {
	OnOrAfter string `json:"on_or_after,omitempty"`
	Before    string `json:"before,omitempty"`
}

type queryResponse struct {
	Results    []fetch.Typed[Page] `json:"results"`
	HasMore    bool                `json:"has_more"`
	NextCursor *string             `json:"next_cursor"`
}

// TransformPage keys pages by id. Archived or trashed pages are deletes.
func TransformPage(p fetch.Typed[Page]) (*engine.Row, error) {
	if p.Value.ID == "" {
		return nil, syncerr.Validation("notion page without id")
	}
	return &engine.Row{
		SourceID: p.Value.ID,
		Data:     p.Raw,
		RecordAt: connector.TimePtr(p.Value.LastEditedTime),
		Deleted:  p.Value.Archived || p.Value.InTrash,
	}, nil
}
