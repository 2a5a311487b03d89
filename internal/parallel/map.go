package parallel

import (
	"context"
	"iter"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map is a parallel mapping function, which runs at most limit mapFuncs
// in parallel. The input and output are represented as iterators, so the
// typical usage is
//
//	for result, err := range parallel.NewMap(ctx, 4, fn).Iter(input) {}
//
// Errors of the input sequence are passed through. Map is context aware,
// a canceled context ends the processing. Breaking out of the loop cancels
// the context passed to mapFunc and waits for running calls to return.
type Map[E, D any] struct {
	ctx     context.Context
	limit   int
	mapFunc func(context.Context, E) (D, error)
}

func NewMap[E, D any](ctx context.Context, limit int, mapFunc func(context.Context, E) (D, error)) *Map[E, D] {
	if limit < 1 {
		limit = 1
	}
	return &Map[E, D]{
		ctx:     ctx,
		limit:   limit,
		mapFunc: mapFunc,
	}
}

func (m *Map[E, D]) Iter(seq iter.Seq2[E, error]) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		ctx, cancel := context.WithCancel(m.ctx)
		g, gctx := errgroup.WithContext(ctx)
		// one extra slot for the producer
		g.SetLimit(m.limit + 1)
		mapped := make(chan result[D], m.limit)

		send := func(r result[D]) {
			select {
			case mapped <- r:
			case <-gctx.Done():
			}
		}

		g.Go(func() error {
			for entry, err := range seq {
				if gctx.Err() != nil {
					return nil
				}
				if err != nil {
					send(result[D]{e: err})
					continue
				}
				g.Go(func() error {
					d, err := m.mapFunc(gctx, entry)
					send(result[D]{d: d, e: err})
					return nil
				})
			}
			return nil
		})

		go func() {
			_ = g.Wait()
			close(mapped)
		}()

		defer func() {
			cancel()
			for range mapped {
			}
		}()

		for r := range mapped {
			if m.ctx.Err() != nil {
				return
			}
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}
