package fetch

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"
)

var ErrConsumed = errors.New("fetch: sequence already consumed")

// Page is one provider page plus the cursor for the next request.
type Page[T any, C any] struct {
	Items []T
	Next  C
	More  bool
}

// CursorPage marks more pages while the provider returns a next token.
func CursorPage[T any](items []T, next string) Page[T, string] {
	return Page[T, string]{Items: items, Next: next, More: next != ""}
}

// SizedPage marks more pages while the provider fills the page.
func SizedPage[T any, C any](items []T, pageSize int, next C) Page[T, C] {
	return Page[T, C]{Items: items, Next: next, More: pageSize > 0 && len(items) >= pageSize}
}

// Pages lazily requests pages starting at first until the provider signals
// exhaustion. The sequence can be ranged once.
func Pages[T any, C any](ctx context.Context, first C, fetch func(ctx context.Context, cursor C) (Page[T, C], error)) iter.Seq2[[]T, error] {
	var used atomic.Bool
	return func(yield func([]T, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, ErrConsumed)
			return
		}
		cursor := first
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			page, err := fetch(ctx, cursor)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.Items) == 0 {
				return
			}
			if !yield(page.Items, nil) {
				return
			}
			if !page.More {
				return
			}
			cursor = page.Next
		}
	}
}

// Records flattens a page sequence.
func Records[T any](pages iter.Seq2[[]T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for items, err := range pages {
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range items {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Once wraps a single unpaginated call as a sequence.
func Once[T any](ctx context.Context, fetch func(ctx context.Context) ([]T, error)) iter.Seq2[T, error] {
	return Records(Pages(ctx, struct{}{}, func(ctx context.Context, _ struct{}) (Page[T, struct{}], error) {
		items, err := fetch(ctx)
		return Page[T, struct{}]{Items: items}, err
	}))
}

// Chunked runs one sequence per sub-window in order, pausing delay between chunks.
func Chunked[T any](ctx context.Context, w Window, days int, delay time.Duration, fetch func(ctx context.Context, chunk Window) iter.Seq2[T, error]) iter.Seq2[T, error] {
	var used atomic.Bool
	return func(yield func(T, error) bool) {
		if !used.CompareAndSwap(false, true) {
			var zero T
			yield(zero, ErrConsumed)
			return
		}
		for i, chunk := range Chunks(w, days) {
			if i > 0 {
				if err := Sleep(ctx, delay); err != nil {
					var zero T
					yield(zero, err)
					return
				}
			}
			for item, err := range fetch(ctx, chunk) {
				if !yield(item, err) || err != nil {
					return
				}
			}
		}
	}
}

// Collect drains seq, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for item, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
