package toggl

import (
	"strconv"

	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

func TransformEntity(e fetch.Typed[Entity]) (*engine.Row, error) {
	if e.Value.ID == 0 {
		return nil, syncerr.Validation("toggl object without id")
	}
	return &engine.Row{SourceID: strconv.FormatInt(e.Value.ID, 10), Data: e.Raw}, nil
}

// TransformTimeEntry skips running entries; they are picked up once stopped.
func TransformTimeEntry(e fetch.Typed[TimeEntry]) (*engine.Row, error) {
	te := e.Value
	if te.ID == 0 {
		return nil, syncerr.Validation("time entry without id")
	}
	if te.Running() {
		return nil, nil
	}
	recordAt := te.At
	if recordAt.IsZero() {
		recordAt = te.Start
	}
	return &engine.Row{
		SourceID: strconv.FormatInt(te.ID, 10),
		Data:     e.Raw,
		RecordAt: connector.TimePtr(recordAt),
		Deleted:  te.ServerDeletedAt != nil,
	}, nil
}

// TransformReportRow keys a report row by its first time entry.
func TransformReportRow(r fetch.Typed[ReportRow]) (*engine.Row, error) {
	if len(r.Value.TimeEntries) == 0 {
		return nil, nil
	}
	te := r.Value.TimeEntries[0]
	if te.ID == 0 {
		return nil, syncerr.Validation("report row without time entry id")
	}
	recordAt := te.At
	if recordAt.IsZero() {
		recordAt = te.Start
	}
	return &engine.Row{
		SourceID: strconv.FormatInt(te.ID, 10),
		Data:     r.Raw,
		RecordAt: connector.TimePtr(recordAt),
	}, nil
}
