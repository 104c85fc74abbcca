package pdom

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/jward/pdom/internal/store"
)

// indexParallel runs the two-phase pipeline:
//
//	Phase A (parallel): parse units on a bounded worker pool. Each Parse
//	                    call owns its tree-sitter parser.
//	Phase B (serial):   write each parsed unit to the PDOM under its write
//	                    lock, buffer the registry rows, commit them once.
//
// Parse failures are recorded on the item and reported by the writer; only
// cancellation stops the workers.
func (e *Engine) indexParallel(ctx context.Context, items []*workItem, report *IndexReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.numWorkers(len(items)))

	parsed := make(chan *workItem, len(items))
	go func() {
		defer close(parsed)
		for _, item := range items {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				e.parse(gctx, item)
				parsed <- item
				return nil
			})
		}
		_ = g.Wait()
	}()

	// ---- Phase B: single writer ----
	batch := store.NewBatchedStore()
	var writeErr error
	written := 0
	for item := range parsed {
		if writeErr != nil {
			continue // drain
		}
		if err := ctx.Err(); err != nil {
			writeErr = err
			continue
		}
		if writeErr = e.write(ctx, item, batch, report); writeErr == nil {
			written++
		}
	}
	// The dispatcher stops early on cancellation.
	if writeErr == nil && written < len(items) {
		writeErr = ctx.Err()
	}
	return errors.Join(writeErr, e.commit(batch))
}
