package fdr

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

// Series names in histogram dumps
const (
	SeriesRaw      = "raw"
	SeriesSmoothed = "smoothed"
)

// BinRecord is one bin of one histogram series of a node
type BinRecord struct {
	Node      string
	Series    string
	BinID     int
	Midpoints []float64
	Target    float64
	Decoy     float64
	LocalFDR  float64
}

// NodeSummary describes the state of one node at a set of thresholds
type NodeSummary struct {
	ID              string
	Group           string `json:",omitempty"`
	Level           int
	State           string
	Target          float64
	Decoy           float64
	Pi0             float64
	Pi1             float64
	CanCalculateFDR bool
	Fallback        string `json:",omitempty"`
	Threshold       float64
	AcceptedTarget  float64
	AcceptedDecoy   float64
	PooledFDR       float64
}

// Summaries returns a summary for every node, depth first from the root
func (c *Calculator) Summaries(th Thresholds) []NodeSummary {
	var s []NodeSummary
	c.root.Walk(func(n *Node) {
		t, d := n.Hist.Totals()
		pi0, pi1 := n.Hist.ClassProbs()
		ns := NodeSummary{
			ID:              n.ID,
			Group:           n.Group,
			Level:           n.Level,
			State:           n.state.String(),
			Target:          t,
			Decoy:           d,
			Pi0:             pi0,
			Pi1:             pi1,
			CanCalculateFDR: n.canCalculateFDR,
		}
		if n.fallback != nil {
			ns.Fallback = n.fallback.ID
		}
		if n.Resolved() {
			ns.Threshold = th.For(n.Group)
			ns.AcceptedDecoy, ns.AcceptedTarget = n.Hist.TargetDecoyCounts(ns.Threshold)
			ns.PooledFDR = PooledFDR(ns.AcceptedDecoy, ns.AcceptedTarget)
		}
		s = append(s, ns)
	})
	return s
}

// EachBin calls fn for every occupied bin of every node, first the raw
// series and then the smoothed one (if smoothing was done). Bins are
// reported in order of bin id.
func (c *Calculator) EachBin(fn func(BinRecord) error) error {
	var err error
	c.root.Walk(func(n *Node) {
		if err != nil {
			return
		}
		if err = c.eachHistBin(n, SeriesRaw, n.Hist.Raw(), fn); err != nil {
			return
		}
		if sm := n.Hist.Smoothed(); sm != nil {
			err = c.eachHistBin(n, SeriesSmoothed, sm, fn)
		}
	})
	return err
}

func (c *Calculator) eachHistBin(n *Node, series string, h *ScoreHistogram, fn func(BinRecord) error) error {
	bins := append([]int(nil), h.Bins()...)
	sort.Ints(bins)
	for _, binID := range bins {
		t, d, _ := h.Counts(binID)
		lfdr := Unobserved
		if n.state != NodeUnresolved {
			lfdr = h.LocalFDR(binID)
		}
		r := BinRecord{
			Node:      n.ID,
			Series:    series,
			BinID:     binID,
			Midpoints: c.binner.Midpoints(binID),
			Target:    t,
			Decoy:     d,
			LocalFDR:  lfdr,
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// DumpHistograms writes all histograms as tab separated table, one row per
// bin and series
func (c *Calculator) DumpHistograms(w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	header := []string{"node", "series"}
	for _, d := range c.binner.dims {
		header = append(header, "mid_"+d.Score)
	}
	header = append(header, "target", "decoy", "localFDR")
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, 0, len(header))
	err := c.EachBin(func(r BinRecord) error {
		row = row[:0]
		row = append(row, r.Node, r.Series)
		for _, m := range r.Midpoints {
			row = append(row, formatFloat(m))
		}
		row = append(row, formatFloat(r.Target), formatFloat(r.Decoy), formatFloat(r.LocalFDR))
		return cw.Write(row)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
