package economy

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// BatchUpdatePrices computes the week's price for every product. Products are
// independent, so the work fans out across goroutines; the result equals
// calling CalculatePrice once per product with its history entry as previous.
func (e *PriceEngine) BatchUpdatePrices(ctx context.Context, products []Product, week int, history map[string]PriceRecord, locationFactor float64, mods MarketModifiers) (map[string]PriceRecord, error) {
	results := make([]PriceRecord, len(products))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, p := range products {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var prev *PriceRecord
			if rec, ok := history[p.ID]; ok {
				prev = &rec
			}
			rec, err := e.CalculatePrice(p, week, prev, locationFactor, mods)
			if err != nil {
				return fmt.Errorf("price %s: %w", p.ID, err)
			}
			results[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]PriceRecord, len(products))
	for i, p := range products {
		out[p.ID] = results[i]
	}
	return out, nil
}
