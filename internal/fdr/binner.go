package fdr

import (
	"fmt"
	"math"
)

// Transform is applied to a score before it is binned
type Transform string

const (
	TransformNone     Transform = "none"
	TransformLog10    Transform = "log10"
	TransformNegLog10 Transform = "neglog10" // For e-values and p-values: low is good
)

// Dimension describes how one named score is divided into bins.
// Scores below Min end up in the first bin, scores above Max in the last.
type Dimension struct {
	Score     string
	Min       float64
	Max       float64
	Bins      int
	Transform Transform
}

func (d Dimension) validate() error {
	if d.Bins <= 0 {
		return fmt.Errorf("%w: score %s has %d bins", ErrInvalidBinCount, d.Score, d.Bins)
	}
	if math.IsNaN(d.Min) || math.IsNaN(d.Max) || d.Min > d.Max {
		return fmt.Errorf("%w: score %s range %g:%g", ErrInvalidRange, d.Score, d.Min, d.Max)
	}
	switch d.Transform {
	case "", TransformNone, TransformLog10, TransformNegLog10:
	default:
		return fmt.Errorf("%w: %q for score %s", ErrInvalidTransform, d.Transform, d.Score)
	}
	return nil
}

func (d Dimension) apply(v float64) float64 {
	switch d.Transform {
	case TransformLog10:
		return math.Log10(v)
	case TransformNegLog10:
		return -math.Log10(v)
	}
	return v
}

// coord returns the bin index of a (transformed) score, clamped to the
// boundary bins. Comparisons are done in float64 so that infinite scores
// clamp as well.
func (d Dimension) coord(v float64) int {
	if d.Max == d.Min {
		return 0
	}
	f := math.Floor((v - d.Min) / (d.Max - d.Min) * float64(d.Bins))
	if f < 0 {
		return 0
	}
	if f >= float64(d.Bins) {
		return d.Bins - 1
	}
	return int(f)
}

// midpoint returns the center of bin c in transformed score units
func (d Dimension) midpoint(c int) float64 {
	w := (d.Max - d.Min) / float64(d.Bins)
	return d.Min + (float64(c)+0.5)*w
}

// Binner maps score vectors onto a row-major linearized grid of bins
type Binner struct {
	dims      []Dimension
	strides   []int
	totalBins int
}

// NewBinner checks the dimensions and prepares the grid
func NewBinner(dims []Dimension) (*Binner, error) {
	if len(dims) == 0 {
		return nil, ErrNoDimensions
	}
	b := &Binner{
		dims:    make([]Dimension, len(dims)),
		strides: make([]int, len(dims)),
	}
	copy(b.dims, dims)
	for _, d := range b.dims {
		if err := d.validate(); err != nil {
			return nil, err
		}
	}
	stride := 1
	for i := len(b.dims) - 1; i >= 0; i-- {
		b.strides[i] = stride
		stride *= b.dims[i].Bins
	}
	b.totalBins = stride
	return b, nil
}

// NumDims returns the number of score dimensions
func (b *Binner) NumDims() int {
	return len(b.dims)
}

// TotalBins returns the number of bins in the full grid
func (b *Binner) TotalBins() int {
	return b.totalBins
}

// Dimensions returns a copy of the dimensions of the grid
func (b *Binner) Dimensions() []Dimension {
	dims := make([]Dimension, len(b.dims))
	copy(dims, b.dims)
	return dims
}

// BinID returns the linearized bin of a set of named scores
func (b *Binner) BinID(scores map[string]float64) (int, error) {
	id := 0
	for i, d := range b.dims {
		v, ok := scores[d.Score]
		if !ok || math.IsNaN(v) {
			return -1, fmt.Errorf("%w: %s", ErrMissingScore, d.Score)
		}
		v = d.apply(v)
		if math.IsNaN(v) {
			return -1, fmt.Errorf("%w: %s after %s transform", ErrMissingScore, d.Score, d.Transform)
		}
		id += d.coord(v) * b.strides[i]
	}
	return id, nil
}

// Coord converts a bin id back into its per-dimension bin indexes
func (b *Binner) Coord(binID int) []int {
	c := make([]int, len(b.dims))
	for i, d := range b.dims {
		c[i] = (binID / b.strides[i]) % d.Bins
	}
	return c
}

// Midpoints returns the bin center for each dimension
func (b *Binner) Midpoints(binID int) []float64 {
	m := make([]float64, len(b.dims))
	for i, c := range b.Coord(binID) {
		m[i] = b.dims[i].midpoint(c)
	}
	return m
}

// Neighbors appends the face-adjacent bins of binID to buf and returns it.
// Bins at the edge of the grid have fewer neighbors.
func (b *Binner) Neighbors(binID int, buf []int) []int {
	buf = buf[:0]
	for i, d := range b.dims {
		c := (binID / b.strides[i]) % d.Bins
		if c > 0 {
			buf = append(buf, binID-b.strides[i])
		}
		if c < d.Bins-1 {
			buf = append(buf, binID+b.strides[i])
		}
	}
	return buf
}
