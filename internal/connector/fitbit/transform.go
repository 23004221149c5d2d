package fitbit

import (
	"strconv"
	"time"

	"lifesync/internal/connector"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/syncerr"
)

// TransformSleep keys sleep logs by logId. Times are local to the user.
func (c *Connector) TransformSleep(s fetch.Typed[SleepLog]) (*engine.Row, error) {
	return transformSleep(s, c.loc)
}

func transformSleep(s fetch.Typed[SleepLog], loc *time.Location) (*engine.Row, error) {
	if s.Value.LogID == 0 {
		return nil, syncerr.Validation("sleep log without logId")
	}
	row := &engine.Row{SourceID: strconv.FormatInt(s.Value.LogID, 10), Data: s.Raw}
	for _, v := range []string{s.Value.EndTime, s.Value.DateOfSleep} {
		if t, ok := connector.ParseTime(v, loc); ok {
			row.RecordAt = &t
			break
		}
	}
	return row, nil
}

func (c *Connector) TransformDay(d DailyActivity) (*engine.Row, error) {
	return transformDay(d.Date, d.Data, c.loc)
}

func (c *Connector) TransformPoint(p fetch.Typed[SeriesPoint]) (*engine.Row, error) {
	return transformDay(p.Value.DateTime, p.Raw, c.loc)
}

// transformDay keys per-day documents by their date.
func transformDay(date string, data []byte, loc *time.Location) (*engine.Row, error) {
	if len(date) < len(fetch.DateLayout) {
		return nil, syncerr.Validation("daily record without date")
	}
	date = date[:len(fetch.DateLayout)]
	t, ok := connector.ParseTime(date, loc)
	if !ok {
		return nil, syncerr.Validation("daily record with invalid date %q", date)
	}
	return &engine.Row{SourceID: date, Data: data, RecordAt: &t}, nil
}
