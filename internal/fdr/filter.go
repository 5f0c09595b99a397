package fdr

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of spectra that one filter task handles
const DefaultBatchSize = 10000

// Thresholds holds a local FDR threshold per group, with a default for
// groups without their own threshold
type Thresholds struct {
	Default float64
	Groups  map[string]float64
}

// For returns the threshold that applies to group
func (t Thresholds) For(group string) float64 {
	if v, ok := t.Groups[group]; ok {
		return v
	}
	return t.Default
}

// FilterOptions controls the parallelism of Filter
type FilterOptions struct {
	Workers   int // <= 0: GOMAXPROCS
	BatchSize int // <= 0: DefaultBatchSize
}

// Filter returns, per spectrum, the PSMs whose local FDR does not exceed the
// threshold of their group. Spectra without accepted PSMs are left out, as
// are PSMs of nodes that could not be resolved. The tree is only read, so
// batches of spectra are filtered concurrently.
func (c *Calculator) Filter(ctx context.Context, psmsBySpectrum map[string][]*PSM,
	th Thresholds, opts FilterOptions) (map[string][]*PSM, error) {
	if !c.processed {
		return nil, ErrNotProcessed
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	keys := make([]string, 0, len(psmsBySpectrum))
	for k := range psmsBySpectrum {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string][]*PSM)
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]
		g.Go(func() error {
			local := make(map[string][]*PSM, len(batch))
			for _, k := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				var kept []*PSM
				for _, psm := range psmsBySpectrum[k] {
					ok, err := c.Accept(psm, th)
					if err != nil {
						return err
					}
					if ok {
						kept = append(kept, psm)
					}
				}
				if len(kept) > 0 {
					local[k] = kept
				}
			}
			mu.Lock()
			for k, v := range local {
				out[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// BySpectrum groups PSMs on their spectrum id, keeping the input order
func BySpectrum(psms []*PSM) map[string][]*PSM {
	m := make(map[string][]*PSM)
	for _, psm := range psms {
		m[psm.SpectrumID] = append(m[psm.SpectrumID], psm)
	}
	return m
}
