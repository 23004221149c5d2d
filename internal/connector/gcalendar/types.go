package gcalendar

import (
	"encoding/json"
	"time"

	"lifesync/internal/fetch"
)

type Event struct {
	ID      string    `json:"id"`
	Status  string    `json:"status"`
	Summary string    `json:"summary"`
	Updated time.Time `json:"updated"`
	Start   EventTime `json:"start"`
	End     EventTime `json:"end"`
}

// EventTime carries either a timed (DateTime) or an all-day (Date) boundary.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// StartTime is the event start. All-day events start at midnight in loc.
func (e Event) StartTime(loc *time.Location) time.Time {
	if e.Start.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, e.Start.DateTime); err == nil {
			return t
		}
	}
	if e.Start.Date != "" {
		if loc == nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation(time.DateOnly, e.Start.Date, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CalendarEvent is an event together with the calendar it was listed from.
type CalendarEvent struct {
	CalendarID string
	Event      fetch.Typed[Event]
	// Location resolves all-day start dates. Nil means UTC.
	Location *time.Location
}

type eventsPage struct {
	Items         []fetch.Typed[Event] `json:"items"`
	NextPageToken string               `json:"nextPageToken"`
}

type CalendarListEntry struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

type calendarListPage struct {
	Items         []fetch.Typed[CalendarListEntry] `json:"items"`
	NextPageToken string                           `json:"nextPageToken"`
}

type Calendar struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	TimeZone string `json:"timeZone"`
}

type colorsResponse struct {
	Event    json.RawMessage `json:"event"`
	Calendar json.RawMessage `json:"calendar"`
}

// ColorSet is one palette ("event" or "calendar") of the colors endpoint.
type ColorSet struct {
	Kind   string          `json:"kind"`
	Colors json.RawMessage `json:"colors"`
}
