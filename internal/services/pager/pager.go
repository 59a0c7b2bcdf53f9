// Package pager iterates listing endpoints page by page.
package pager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glsafe/glsafe/internal/models"
)

// Stop ends iteration early without error. No further pages are requested
// after the record callback returns it.
var Stop = errors.New("pager: stop")

// PageFunc fetches one page of a listing. Retry on transient failures is the
// fetcher's responsibility; the pager only advances the cursor.
type PageFunc func(ctx context.Context, page int) (models.Page, error)

// RecordFunc consumes one raw record.
type RecordFunc func(record json.RawMessage) error

// Each walks a listing lazily from the first page until the terminal page, an
// error, or an early Stop. A page shorter than its requested size terminates
// the walk even when the server advertises a continuation; an empty first
// page yields no records and no error.
func Each(ctx context.Context, fetch PageFunc, fn RecordFunc) error {
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		p, err := fetch(ctx, page)
		if err != nil {
			return err
		}

		for _, record := range p.Records {
			if err := fn(record); err != nil {
				if errors.Is(err, Stop) {
					return nil
				}
				return err
			}
		}

		if p.IsLast() {
			return nil
		}
		page = p.NextPage
	}
}

// EachAs decodes every record into T before handing it to fn.
func EachAs[T any](ctx context.Context, fetch PageFunc, fn func(T) error) error {
	return Each(ctx, fetch, func(record json.RawMessage) error {
		var v T
		if err := json.Unmarshal(record, &v); err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}
		return fn(v)
	})
}

// Collect gathers a full listing into a typed slice.
func Collect[T any](ctx context.Context, fetch PageFunc) ([]T, error) {
	var out []T
	err := EachAs(ctx, fetch, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}
