package gcalendar

import (
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

// TransformEvent keys events as calendarId:eventId. Cancelled events are deletes.
// RecordAt is the start time, the axis the events window filters on; cancelled
// instances without a start fall back to updated.
func TransformEvent(ce CalendarEvent) (*engine.Row, error) {
	ev := ce.Event.Value
	if ev.ID == "" {
		return nil, syncerr.Validation("event without id")
	}
	calendarID := ce.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &engine.Row{
		SourceID: calendarID + ":" + ev.ID,
		Data:     ce.Event.Raw,
		RecordAt: recordAt(ev, ce.Location),
		Deleted:  ev.Status == "cancelled",
	}, nil
}

func TransformColorSet(cs ColorSet) (*engine.Row, error) {
	if cs.Kind == "" {
		return nil, nil
	}
	return &engine.Row{SourceID: cs.Kind, Data: cs}, nil
}

func TransformCalendarListEntry(e fetch.Typed[CalendarListEntry]) (*engine.Row, error) {
	if e.Value.ID == "" {
		return nil, syncerr.Validation("calendar list entry without id")
	}
	return &engine.Row{SourceID: e.Value.ID, Data: e.Raw}, nil
}

func TransformCalendar(c fetch.Typed[Calendar]) (*engine.Row, error) {
	if c.Value.ID == "" {
		return nil, nil
	}
	return &engine.Row{SourceID: c.Value.ID, Data: c.Raw}, nil
}

func recordAt(ev Event, loc *time.Location) *time.Time {
	if start := ev.StartTime(loc); !start.IsZero() {
		return &start
	}
	return connector.TimePtr(ev.Updated)
}
