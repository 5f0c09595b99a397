package fdr

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewBinnerErrors(t *testing.T) {
	tests := []struct {
		name string
		dims []Dimension
		want error
	}{
		{"no dimensions", nil, ErrNoDimensions},
		{"zero bins", []Dimension{{Score: "a", Min: 0, Max: 1, Bins: 0}}, ErrInvalidBinCount},
		{"negative bins", []Dimension{{Score: "a", Min: 0, Max: 1, Bins: -3}}, ErrInvalidBinCount},
		{"min above max", []Dimension{{Score: "a", Min: 2, Max: 1, Bins: 4}}, ErrInvalidRange},
		{"unknown transform", []Dimension{{Score: "a", Min: 0, Max: 1, Bins: 4, Transform: "sqrt"}}, ErrInvalidTransform},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBinner(tt.dims)
			if !errors.Is(err, tt.want) {
				t.Errorf("NewBinner error %v, expected %v", err, tt.want)
			}
		})
	}
}

func testBinner2D(t *testing.T) *Binner {
	t.Helper()
	b, err := NewBinner([]Dimension{
		{Score: "a", Min: 0, Max: 10, Bins: 10},
		{Score: "b", Min: 0, Max: 1, Bins: 4},
	})
	if err != nil {
		t.Fatalf("NewBinner: %v", err)
	}
	return b
}

func TestBinIDClamps(t *testing.T) {
	b := testBinner2D(t)
	if b.TotalBins() != 40 {
		t.Fatalf("TotalBins is %d, expected 40", b.TotalBins())
	}
	tests := []struct {
		a, b float64
		want int
	}{
		{-5, 0.3, 1},
		{15, 2, 39},
		{math.Inf(1), 0.99, 39},
		{math.Inf(-1), math.Inf(-1), 0},
		{4.5, 0.5, 4*4 + 2},
		{10, 1, 39},
	}
	for _, tt := range tests {
		id, err := b.BinID(map[string]float64{"a": tt.a, "b": tt.b})
		if err != nil {
			t.Errorf("BinID(%g,%g): error %v", tt.a, tt.b, err)
			continue
		}
		if id != tt.want {
			t.Errorf("BinID(%g,%g) is %d, expected %d", tt.a, tt.b, id, tt.want)
		}
	}
}

func TestBinIDMissingScore(t *testing.T) {
	b := testBinner2D(t)
	if _, err := b.BinID(map[string]float64{"a": 1}); !errors.Is(err, ErrMissingScore) {
		t.Errorf("missing score: error %v, expected ErrMissingScore", err)
	}
	if _, err := b.BinID(map[string]float64{"a": 1, "b": math.NaN()}); !errors.Is(err, ErrMissingScore) {
		t.Errorf("NaN score: error %v, expected ErrMissingScore", err)
	}
}

func TestTransforms(t *testing.T) {
	b, err := NewBinner([]Dimension{{Score: "evalue", Min: 0, Max: 10, Bins: 10, Transform: TransformNegLog10}})
	if err != nil {
		t.Fatalf("NewBinner: %v", err)
	}
	id, err := b.BinID(map[string]float64{"evalue": 3e-6})
	if err != nil {
		t.Fatalf("BinID: %v", err)
	}
	if id != 5 {
		t.Errorf("BinID(3e-6) is %d, expected 5", id)
	}
	// An e-value of 0 is infinitely good
	id, _ = b.BinID(map[string]float64{"evalue": 0})
	if id != 9 {
		t.Errorf("BinID(0) is %d, expected 9", id)
	}
	if _, err := b.BinID(map[string]float64{"evalue": -1}); !errors.Is(err, ErrMissingScore) {
		t.Errorf("negative e-value: error %v, expected ErrMissingScore", err)
	}
}

func TestEqualMinMax(t *testing.T) {
	b, err := NewBinner([]Dimension{{Score: "a", Min: 3, Max: 3, Bins: 5}})
	if err != nil {
		t.Fatalf("NewBinner: %v", err)
	}
	for _, v := range []float64{-1, 3, 100} {
		if id, _ := b.BinID(map[string]float64{"a": v}); id != 0 {
			t.Errorf("BinID(%g) is %d, expected 0", v, id)
		}
	}
}

func TestCoordMidpointsNeighbors(t *testing.T) {
	b := testBinner2D(t)
	if diff := cmp.Diff([]int{9, 3}, b.Coord(39)); diff != "" {
		t.Errorf("Coord mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.5, 0.375}, b.Midpoints(1)); diff != "" {
		t.Errorf("Midpoints mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{4, 1}, b.Neighbors(0, nil)); diff != "" {
		t.Errorf("Neighbors(0) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 9, 4, 6}, b.Neighbors(5, nil)); diff != "" {
		t.Errorf("Neighbors(5) mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{35, 38}, b.Neighbors(39, nil)); diff != "" {
		t.Errorf("Neighbors(39) mismatch (-want +got):\n%s", diff)
	}
}
