package fetch

import "time"

const DateLayout = "2006-01-02"

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) IsZero() bool {
	return w.Start.IsZero() && w.End.IsZero()
}

func (w Window) String() string {
	if w.IsZero() {
		return "all"
	}
	return w.Start.Format(time.RFC3339) + "/" + w.End.Format(time.RFC3339)
}

// FirstDay and LastDay format the inclusive date bounds in loc.
func (w Window) FirstDay(loc *time.Location) string {
	return inLoc(w.Start, loc).Format(DateLayout)
}

func (w Window) LastDay(loc *time.Location) string {
	return inLoc(w.End.Add(-time.Nanosecond), loc).Format(DateLayout)
}

// Chunks splits w into consecutive sub-windows of at most days days.
func Chunks(w Window, days int) []Window {
	if !w.End.After(w.Start) {
		return nil
	}
	if days <= 0 {
		return []Window{w}
	}
	var out []Window
	for start := w.Start; start.Before(w.End); {
		end := start.AddDate(0, 0, days)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, Window{Start: start, End: end})
		start = end
	}
	return out
}

// Days lists the calendar days touched by w, in loc.
func Days(w Window, loc *time.Location) []time.Time {
	if !w.End.After(w.Start) {
		return nil
	}
	first := StartOfDay(w.Start, loc)
	last := StartOfDay(w.End.Add(-time.Nanosecond), loc)
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = inLoc(t, loc)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func inLoc(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
