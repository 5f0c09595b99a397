package fdr

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// binCounts returns the target and decoy count of every bin in [0,n)
func binCounts(h *ScoreHistogram, n int) (targets, decoys []float64) {
	targets = make([]float64, n)
	decoys = make([]float64, n)
	for i := 0; i < n; i++ {
		targets[i], decoys[i] = h.counts(i)
	}
	return targets, decoys
}

func TestSmoothSpreadsToNeighbors(t *testing.T) {
	s := NewSmoothedScoreHistogram(testBinner1D(t, 5))
	fill(t, s, 2.5, 1, false)
	s.SmoothHistogram(false)
	targets, _ := binCounts(s.Smoothed(), 5)
	want := []float64{0, 1.0 / 3, 1.0 / 3, 1.0 / 3, 0}
	if diff := cmp.Diff(want, targets, cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Errorf("smoothed targets mismatch (-want +got):\n%s", diff)
	}

	s = NewSmoothedScoreHistogram(testBinner1D(t, 5))
	fill(t, s, 0.5, 1, false)
	s.SmoothHistogram(false)
	targets, _ = binCounts(s.Smoothed(), 5)
	want = []float64{0.5, 1.0 / 3, 0, 0, 0}
	if diff := cmp.Diff(want, targets, cmpopts.EquateApprox(0, tol)); diff != "" {
		t.Errorf("smoothed targets at edge mismatch (-want +got):\n%s", diff)
	}
}

func TestSmoothKeepsTotalsAndRaw(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	b, err := NewBinner([]Dimension{
		{Score: "x", Min: 0, Max: 1, Bins: 12},
		{Score: "y", Min: 0, Max: 1, Bins: 12},
	})
	if err != nil {
		t.Fatalf("NewBinner: %v", err)
	}
	s := NewSmoothedScoreHistogram(b)
	for i := 0; i < 2000; i++ {
		if err := s.Add(randomPSM(r, 2, "a")); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	rawT, rawD := binCounts(s.Raw(), b.TotalBins())
	tt, td := s.Raw().Totals()

	s.SmoothHistogram(false)
	s.SmoothHistogram(true)

	st, sd := s.Smoothed().Totals()
	if math.Abs(st-tt) > 1e-6 || math.Abs(sd-td) > 1e-6 {
		t.Errorf("smoothed totals (%g,%g), expected raw totals (%g,%g)", st, sd, tt, td)
	}
	gotT, gotD := binCounts(s.Raw(), b.TotalBins())
	if diff := cmp.Diff(rawT, gotT); diff != "" {
		t.Errorf("raw targets changed by smoothing (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rawD, gotD); diff != "" {
		t.Errorf("raw decoys changed by smoothing (-want +got):\n%s", diff)
	}
	if s.Smoothed().NumBins() < s.Raw().NumBins() {
		t.Errorf("smoothing reduced the occupied bins from %d to %d",
			s.Raw().NumBins(), s.Smoothed().NumBins())
	}
}

func TestRemoveSpikeNoise(t *testing.T) {
	s := NewSmoothedScoreHistogram(testBinner1D(t, 10))
	fill(t, s, 0.5, 1, true)  // Isolated: removed
	fill(t, s, 5.5, 2, true)  // Two observations: kept
	fill(t, s, 8.5, 5, false) // Kept
	fill(t, s, 9.5, 1, false) // Next to targets: kept

	if n := s.RemoveSpikeNoise(true); n != 1 {
		t.Errorf("RemoveSpikeNoise removed %d bins, expected 1", n)
	}
	h := s.Smoothed()
	if _, _, ok := h.Counts(0); ok {
		t.Errorf("spike in bin 0 was not removed")
	}
	// The remaining decoys are scaled back to the raw total of 3
	if _, d, _ := h.Counts(5); math.Abs(d-3) > tol {
		t.Errorf("decoys in bin 5 are %g, expected 3", d)
	}
	if tg, _, _ := h.Counts(9); math.Abs(tg-1) > tol {
		t.Errorf("targets in bin 9 are %g, expected 1", tg)
	}
	if _, _, ok := s.Raw().Counts(0); !ok {
		t.Errorf("spike removal changed the raw histogram")
	}
}

func TestSmoothedDelegation(t *testing.T) {
	s := NewSmoothedScoreHistogram(testBinner1D(t, 5))
	fill(t, s, 2.5, 10, false)
	fill(t, s, 2.5, 2, true)
	fill(t, s, 0.5, 5, true)
	s.CalcClassProb()

	if g, _ := s.Gamma(1); g != 0 {
		t.Errorf("raw Gamma(1) is %g, expected 0 for an empty bin", g)
	}
	if l := s.LocalFDR(1); l != Unobserved {
		t.Errorf("raw LocalFDR(1) is %g, expected Unobserved", l)
	}
	s.SmoothHistogram(true)
	if _, ok := s.Gamma(1); !ok {
		t.Errorf("smoothed Gamma(1) not ok")
	}
	if l := s.LocalFDR(1); l < 0 || l > 1 {
		t.Errorf("smoothed LocalFDR(1) is %g", l)
	}
	rp0, _ := s.Raw().ClassProbs()
	sp0, _ := s.Smoothed().ClassProbs()
	if rp0 != sp0 {
		t.Errorf("smoothed pi0 %g differs from raw pi0 %g", sp0, rp0)
	}
	fill(t, s, 4.5, 1, false)
	if s.Smoothed() != nil {
		t.Errorf("smoothed histogram kept after Add")
	}
}
