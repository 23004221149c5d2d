package fetch

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestChunks(t *testing.T) {
	w := Window{Start: day(2024, 1, 1), End: day(2024, 1, 11)}
	got := Chunks(w, 4)
	if len(got) != 3 {
		t.Fatalf("chunks=%d want=3", len(got))
	}
	if !got[0].End.Equal(day(2024, 1, 5)) || !got[2].Start.Equal(day(2024, 1, 9)) || !got[2].End.Equal(w.End) {
		t.Fatalf("chunks=%v", got)
	}
	if got := Chunks(Window{Start: w.End, End: w.Start}, 4); got != nil {
		t.Fatalf("empty window chunks=%v", got)
	}
	if got := Chunks(w, 0); len(got) != 1 {
		t.Fatalf("unchunked=%v", got)
	}
}

func TestWindowDays(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)
	w := Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, jst),
		End:   time.Date(2024, 1, 4, 0, 0, 0, 0, jst),
	}
	if w.FirstDay(jst) != "2024-01-01" || w.LastDay(jst) != "2024-01-03" {
		t.Fatalf("first=%s last=%s", w.FirstDay(jst), w.LastDay(jst))
	}
	days := Days(w, jst)
	if len(days) != 3 || days[2].Format(DateLayout) != "2024-01-03" {
		t.Fatalf("days=%v", days)
	}
}

func TestPagesFollowsCursor(t *testing.T) {
	var cursors []string
	seq := Pages(context.Background(), "", func(_ context.Context, cursor string) (Page[int, string], error) {
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			return CursorPage([]int{1, 2}, "b"), nil
		case "b":
			return CursorPage([]int{3}, ""), nil
		}
		return Page[int, string]{}, errors.New("unexpected cursor")
	})
	got, err := Collect(Records(seq))
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(got) != 3 || len(cursors) != 2 {
		t.Fatalf("items=%v cursors=%v", got, cursors)
	}
}

func TestPagesStopsOnShortPage(t *testing.T) {
	calls := 0
	seq := Pages(context.Background(), 1, func(_ context.Context, page int) (Page[int, int], error) {
		calls++
		if page == 1 {
			return SizedPage([]int{1, 2}, 2, page+1), nil
		}
		return SizedPage([]int{3}, 2, page+1), nil
	})
	got, err := Collect(Records(seq))
	if err != nil || len(got) != 3 || calls != 2 {
		t.Fatalf("items=%v calls=%d err=%v", got, calls, err)
	}
}

func TestSequenceIsSingleUse(t *testing.T) {
	seq := Once(context.Background(), func(context.Context) ([]int, error) { return []int{1}, nil })
	if _, err := Collect(seq); err != nil {
		t.Fatalf("err=%v", err)
	}
	if _, err := Collect(seq); !errors.Is(err, ErrConsumed) {
		t.Fatalf("err=%v want=%v", err, ErrConsumed)
	}
}

func TestChunkedRunsEachChunk(t *testing.T) {
	w := Window{Start: day(2024, 1, 1), End: day(2024, 1, 8)}
	var seen []Window
	seq := Chunked(context.Background(), w, 3, 0, func(_ context.Context, chunk Window) iter.Seq2[Window, error] {
		seen = append(seen, chunk)
		return func(yield func(Window, error) bool) { yield(chunk, nil) }
	})
	got, err := Collect(seq)
	if err != nil || len(got) != 3 || len(seen) != 3 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestTypedKeepsRaw(t *testing.T) {
	var v Typed[struct {
		ID int `json:"id"`
	}]
	raw := `{"id":7,"extra":"kept"}`
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		t.Fatalf("err=%v", err)
	}
	out, _ := v.MarshalJSON()
	if v.Value.ID != 7 || string(out) != raw {
		t.Fatalf("value=%v out=%s", v.Value, out)
	}
}
