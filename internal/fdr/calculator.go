package fdr

import (
	"fmt"
	"io"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"
)

// Threshold search parameters
const (
	scanStep     = 0.1
	fdrTolerance = 1e-4
	maxStall     = 5
	maxIter      = 100
	tieTolerance = 1e-12
	// A threshold whose pooled FDR exceeds the target by more than this
	// is reported as unreachable
	overshootTolerance = 1e-3
)

// Params holds the settings that are fixed when the tree is built
type Params struct {
	Dimensions   []Dimension
	RemoveSpikes bool // Remove spike noise before smoothing
}

// Scheme lists the strata of the tree: one node per charge, and below it
// one leaf per group
type Scheme struct {
	Charges []int
	Groups  []string
}

// Calculator estimates local FDRs on a tree of histograms
// (root, charge states, charge state and group) and derives the local FDR
// thresholds that give a requested pooled FDR.
type Calculator struct {
	params     Params
	binner     *Binner
	root       *Node
	nodes      map[string]*Node
	leaves     []*Node
	groups     []string
	processed  bool
	unresolved []string
}

// NewCalculator builds the histogram tree for a stratification scheme
func NewCalculator(p Params, s Scheme) (*Calculator, error) {
	b, err := NewBinner(p.Dimensions)
	if err != nil {
		return nil, err
	}
	c := &Calculator{
		params: p,
		binner: b,
		nodes:  make(map[string]*Node),
	}
	c.root = newNode(RootID, "", 0, b)
	c.nodes[RootID] = c.root

	charges := uniqueInts(s.Charges)
	c.groups = uniqueStrings(s.Groups)
	for _, z := range charges {
		zNode := newNode(ChargeID(z), "", 1, b)
		c.root.addChild(zNode)
		c.nodes[zNode.ID] = zNode
		for _, g := range c.groups {
			leaf := newNode(StratumID(z, g), g, 2, b)
			zNode.addChild(leaf)
			c.nodes[leaf.ID] = leaf
			c.leaves = append(c.leaves, leaf)
		}
	}
	return c, nil
}

func uniqueInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	k := 0
	for i, v := range out {
		if i == 0 || v != out[k-1] {
			out[k] = v
			k++
		}
	}
	return out[:k]
}

func uniqueStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	k := 0
	for i, v := range out {
		if i == 0 || v != out[k-1] {
			out[k] = v
			k++
		}
	}
	return out[:k]
}

// Binner returns the score grid shared by all histograms
func (c *Calculator) Binner() *Binner {
	return c.binner
}

// Root returns the root of the histogram tree
func (c *Calculator) Root() *Node {
	return c.root
}

// Node returns the node with the given id
func (c *Calculator) Node(id string) (*Node, bool) {
	n, ok := c.nodes[id]
	return n, ok
}

// Leaves returns the leaf nodes, ordered by charge and group
func (c *Calculator) Leaves() []*Node {
	return c.leaves
}

// Groups returns the sorted group labels of the scheme
func (c *Calculator) Groups() []string {
	return c.groups
}

// Unresolved returns the ids of the nodes for which no local FDR could be
// determined
func (c *Calculator) Unresolved() []string {
	return c.unresolved
}

// Processed tells if Process has been run
func (c *Calculator) Processed() bool {
	return c.processed
}

func (c *Calculator) leaf(psm *PSM) (*Node, error) {
	id := psm.StratumID()
	n, ok := c.nodes[id]
	if !ok || !n.IsLeaf() || n == c.root {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStratum, id)
	}
	return n, nil
}

// Add counts a PSM in its leaf and in every ancestor of the leaf
func (c *Calculator) Add(psm *PSM) error {
	if c.processed {
		return ErrAlreadyProcessed
	}
	leaf, err := c.leaf(psm)
	if err != nil {
		return err
	}
	// Check the scores once, so that a bad PSM never ends up in only part
	// of the tree
	if _, err := c.binner.BinID(psm.Scores); err != nil {
		return fmt.Errorf("PSM %s: %w", psm.SpectrumID, err)
	}
	for n := leaf; n != nil; n = n.parent {
		if err := n.Add(psm); err != nil {
			return err
		}
	}
	return nil
}

// AddAll adds a slice of PSMs, stopping at the first error
func (c *Calculator) AddAll(psms []*PSM) error {
	for _, psm := range psms {
		if err := c.Add(psm); err != nil {
			return err
		}
	}
	return nil
}

// Process estimates class probabilities on the raw counts, smooths the
// histograms and resolves the local FDR of every node. The stages run in
// this order over the whole tree.
func (c *Calculator) Process(minObservations, smoothingDegree int) error {
	if c.processed {
		return ErrAlreadyProcessed
	}
	if smoothingDegree < 0 {
		return fmt.Errorf("fdr: negative smoothing degree %d", smoothingDegree)
	}
	c.root.SetCanCalculateFDR(minObservations)
	c.root.CalcClassProbs()
	c.root.SmoothHistogram(smoothingDegree, c.params.RemoveSpikes)
	c.unresolved = c.root.CalcLocalFDR()
	c.processed = true
	t, d := c.root.Hist.Totals()
	log.WithFields(log.Fields{
		"targets":    t,
		"decoys":     d,
		"nodes":      len(c.nodes),
		"unresolved": len(c.unresolved),
	}).Info("local FDR estimated")
	return nil
}

// matches tells if a leaf takes part in pooled statistics for group.
// The empty group selects all leaves.
func (n *Node) matches(group string) bool {
	return group == "" || n.Group == group
}

// TargetDecoyCounts pools the counts up to local FDR threshold over all
// resolved leaves of group
func (c *Calculator) TargetDecoyCounts(threshold float64, group string) (decoys, targets float64) {
	for _, leaf := range c.leaves {
		if !leaf.matches(group) || !leaf.Resolved() {
			continue
		}
		d, t := leaf.Hist.TargetDecoyCounts(threshold)
		decoys += d
		targets += t
	}
	return decoys, targets
}

// GlobalFDR returns the pooled FDR of all PSMs of group that have a local
// FDR up to threshold
func (c *Calculator) GlobalFDR(threshold float64, group string) float64 {
	return PooledFDR(c.TargetDecoyCounts(threshold, group))
}

// LocalFDRThreshold returns the smallest local FDR threshold at which the
// pooled FDR of group reaches targetFDR. When the pooled FDR never gets that
// high, 1 is returned. When the search does not converge, the best
// threshold found is returned, the smallest one of equally good candidates.
func (c *Calculator) LocalFDRThreshold(targetFDR float64, group string) float64 {
	thr := findThreshold(func(t float64) float64 { return c.GlobalFDR(t, group) }, targetFDR)
	pooled := c.GlobalFDR(thr, group)
	fields := log.Fields{
		"group":     group,
		"targetFDR": targetFDR,
		"threshold": thr,
		"pooledFDR": pooled,
	}
	if pooled > targetFDR+overshootTolerance {
		log.WithFields(fields).Warn("target FDR is below the lowest pooled FDR above threshold 0")
	} else {
		log.WithFields(fields).Debug("local FDR threshold")
	}
	return thr
}

// GroupLocalFDRThresholds returns a threshold for every group, each one
// computed on the leaves of that group only
func (c *Calculator) GroupLocalFDRThresholds(targetFDR float64) map[string]float64 {
	m := make(map[string]float64, len(c.groups))
	for _, g := range c.groups {
		m[g] = c.LocalFDRThreshold(targetFDR, g)
	}
	return m
}

// findThreshold brackets the crossing of f with target on a coarse grid and
// refines it with the Illinois variant of regula falsi. f is expected to be
// non-decreasing on [0,1].
func findThreshold(f func(float64) float64, target float64) float64 {
	lo, flo := 0.0, f(0)
	if flo >= target {
		return 0
	}
	hi, fhi := lo, flo
	steps := int(math.Round(1 / scanStep))
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		ft := f(t)
		if ft >= target {
			hi, fhi = t, ft
			break
		}
		lo, flo = t, ft
	}
	if fhi < target {
		return lo
	}

	best, bestErr := hi, fhi-target
	if target-flo < bestErr {
		best, bestErr = lo, target-flo
	}
	stall := 0
	side := 0
	for iter := 0; iter < maxIter && bestErr >= fdrTolerance; iter++ {
		x := lo + (target-flo)*(hi-lo)/(fhi-flo)
		fx := f(x)
		e := math.Abs(fx - target)
		switch {
		case e < bestErr-tieTolerance:
			best, bestErr = x, e
			stall = 0
		case e <= bestErr+tieTolerance && x < best:
			// Flat stretch of f: keep the smaller cutoff
			best = x
			stall++
		default:
			stall++
		}
		if e < fdrTolerance || stall >= maxStall || hi-lo < 1e-12 {
			break
		}
		if fx < target {
			lo, flo = x, fx
			if side < 0 {
				fhi = target + (fhi-target)/2
			}
			side = -1
		} else {
			hi, fhi = x, fx
			if side > 0 {
				flo = target - (target-flo)/2
			}
			side = 1
		}
	}
	return best
}

// LocalFDR returns the local FDR of a PSM. ok is false when the node of the
// PSM could not be resolved or the bin of the PSM is empty.
func (c *Calculator) LocalFDR(psm *PSM) (lfdr float64, ok bool, err error) {
	leaf, err := c.leaf(psm)
	if err != nil {
		return Unobserved, false, err
	}
	if !leaf.Resolved() {
		return Unobserved, false, nil
	}
	lfdr, err = leaf.Hist.PSMLocalFDR(psm)
	if err != nil {
		return Unobserved, false, err
	}
	return lfdr, lfdr >= 0, nil
}

// Accept tells if the local FDR of a PSM is at most the threshold of its
// group
func (c *Calculator) Accept(psm *PSM, th Thresholds) (bool, error) {
	lfdr, ok, err := c.LocalFDR(psm)
	if err != nil || !ok {
		return false, err
	}
	return lfdr <= th.For(psm.Group), nil
}

// Print writes a summary of the whole tree at the given thresholds
func (c *Calculator) Print(w io.Writer, th Thresholds) error {
	return c.root.Print(w, th)
}
