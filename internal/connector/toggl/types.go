package toggl

import "time"

type credentials struct {
	APIToken    string `mapstructure:"api_token" validate:"required"`
	WorkspaceID int64  `mapstructure:"workspace_id"`
}

type Me struct {
	ID                 int64 `json:"id"`
	DefaultWorkspaceID int64 `json:"default_workspace_id"`
}

// Entity is the part of every Toggl master object the warehouse keys on.
type Entity struct {
	ID int64 `json:"id"`
}

type TimeEntry struct {
	ID              int64      `json:"id"`
	WorkspaceID     int64      `json:"workspace_id"`
	Start           time.Time  `json:"start"`
	Stop            *time.Time `json:"stop"`
	Duration        int64      `json:"duration"`
	At              time.Time  `json:"at"`
	ServerDeletedAt *time.Time `json:"server_deleted_at"`
}

// Running entries carry a negative duration until they are stopped.
func (e TimeEntry) Running() bool {
	return e.Duration < 0
}

// ReportRow is one row of the Reports v3 detailed search. The actual entries
// sit in TimeEntries; ungrouped searches return one per row.
type ReportRow struct {
	UserID      int64             `json:"user_id"`
	ProjectID   *int64            `json:"project_id"`
	Description string            `json:"description"`
	TimeEntries []ReportTimeEntry `json:"time_entries"`
}

type ReportTimeEntry struct {
	ID      int64     `json:"id"`
	Seconds int64     `json:"seconds"`
	Start   time.Time `json:"start"`
	Stop    time.Time `json:"stop"`
	At      time.Time `json:"at"`
}

type reportSearch struct {
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	PageSize       int    `json:"page_size"`
	OrderBy        string `json:"order_by"`
	OrderDir       string `json:"order_dir"`
	FirstRowNumber int    `json:"first_row_number,omitempty"`
}
