package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lifesync/internal/fetch"
)

// ParseRange reads a backfill range. Dates (YYYY-MM-DD) are inclusive days in
// loc, so the end becomes the start of the following day. RFC3339 values are
// taken as is. Both empty means no range.
func ParseRange(start, end string, loc *time.Location) (*time.Time, *time.Time, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil, nil
	}
	if start == "" || end == "" {
		return nil, nil, errors.New("start and end must be given together")
	}
	if loc == nil {
		loc = time.UTC
	}
	s, _, err := parseBound(start, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid start: %w", err)
	}
	e, dateOnly, err := parseBound(end, loc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid end: %w", err)
	}
	if dateOnly {
		e = e.AddDate(0, 0, 1)
	}
	if !e.After(s) {
		return nil, nil, errors.New("end must not be before start")
	}
	return &s, &e, nil
}

func parseBound(v string, loc *time.Location) (time.Time, bool, error) {
	if t, err := time.ParseInLocation(fetch.DateLayout, v, loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}
