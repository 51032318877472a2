package source

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
)

// PageFetcher fetches a single page of a paginated resource.
type PageFetcher interface {
	FetchPage(ctx context.Context, offset, limit int) (Page, error)
}

// Walker enumerates a paginated resource by advancing a row offset by a fixed page size.
//
// The server never reports a total count: the walk stops on an empty page, on a short page
// (after yielding it), or when the next offset would pass MaxOffset.
// Every walk starts again at offset 0.
type Walker struct {
	fetcher   PageFetcher
	limit     int
	maxOffset int

	log *slog.Logger
}

type walkerOptions struct {
	logger *slog.Logger
}

// WalkerOption represents an optional function to override Walker default values.
type WalkerOption func(*walkerOptions)

// WithWalkerLogger sets the logger used by the walker.
func WithWalkerLogger(l *slog.Logger) WalkerOption {
	return func(o *walkerOptions) {
		o.logger = l
	}
}

// NewWalker returns a walker requesting limit records per page, up to maxOffset.
func NewWalker(fetcher PageFetcher, limit, maxOffset int, args ...WalkerOption) (*Walker, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", limit)
	}
	if maxOffset < 0 {
		return nil, fmt.Errorf("maximum offset must not be negative, got %d", maxOffset)
	}

	opts := walkerOptions{logger: slog.Default()}
	for _, opt := range args {
		opt(&opts)
	}

	return &Walker{
		fetcher:   fetcher,
		limit:     limit,
		maxOffset: maxOffset,
		log:       opts.logger,
	}, nil
}

// Pages returns the lazy sequence of non-empty pages of the resource.
//
// Each step performs one blocking fetch. A fetch error is yielded once and ends the sequence.
func (w Walker) Pages(ctx context.Context) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		for offset := 0; offset <= w.maxOffset; offset += w.limit {
			page, err := w.fetcher.FetchPage(ctx, offset, w.limit)
			if err != nil {
				yield(Page{}, err)
				return
			}

			if len(page.Records) == 0 {
				w.log.Debug("Empty page, stopping walk", "offset", offset)
				return
			}

			if !yield(page, nil) {
				return
			}

			if len(page.Records) < w.limit {
				w.log.Debug("Short page, stopping walk", "offset", offset, "records", len(page.Records))
				return
			}
		}
		w.log.Debug("Maximum offset reached, stopping walk", "max_offset", w.maxOffset)
	}
}

// Walk visits every record of the resource in order, with the page it belongs to.
//
// A visitor error stops the walk and is returned.
func (w Walker) Walk(ctx context.Context, visit func(page Page, record map[string]any) error) error {
	for page, err := range w.Pages(ctx) {
		if err != nil {
			return err
		}
		for _, rec := range page.Records {
			if err := visit(page, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
