package fdr

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// GammaNoDecoys is the gamma of a bin that holds targets but no decoys.
// Such bins get a local FDR of 0.
const GammaNoDecoys = -1.0

// Unobserved is returned as local FDR for bins without any counts
const Unobserved = -1.0

// Class probability estimation constants. Empirical defaults, see DESIGN.md.
const (
	classProbAlpha = 0.05
	classProbScale = 1.05
)

// Estimator is implemented by the raw and the smoothed histogram
type Estimator interface {
	Gamma(binID int) (float64, bool)
	LocalFDR(binID int) float64
	CalcLocalFDR()
	CalcLocalFDRFrom(ratio float64, ancestor Estimator)
	TargetDecoyCounts(maxLocalFDR float64) (decoys, targets float64)
}

// derived keeps track of which cached statistics are up to date
type derived uint8

const (
	gammaCurrent derived = 1 << iota
	localFDRCurrent
)

// ScoreHistogram accumulates target and decoy counts per occupied bin.
// Counts are stored densely in the order in which bins were first seen;
// indexMap translates a bin id to that dense index (-1: unoccupied).
type ScoreHistogram struct {
	binner   *Binner
	indexMap []int
	psmBins  []int // Dense index to bin id
	targets  []float64
	decoys   []float64

	totalTarget float64
	totalDecoy  float64

	pi0, pi1   float64
	classProbs bool

	gamma         []float64
	localFDR      []float64
	sortedIndexes []int // Dense indexes by ascending local FDR
	current       derived
}

// NewScoreHistogram creates an empty histogram on the grid of b
func NewScoreHistogram(b *Binner) *ScoreHistogram {
	h := &ScoreHistogram{
		binner:   b,
		indexMap: make([]int, b.TotalBins()),
	}
	for i := range h.indexMap {
		h.indexMap[i] = -1
	}
	return h
}

// Binner returns the grid of the histogram
func (h *ScoreHistogram) Binner() *Binner {
	return h.binner
}

// Add counts a PSM in its bin
func (h *ScoreHistogram) Add(psm *PSM) error {
	binID, err := h.binner.BinID(psm.Scores)
	if err != nil {
		return err
	}
	if psm.Decoy {
		h.addCounts(binID, 0, 1)
	} else {
		h.addCounts(binID, 1, 0)
	}
	return nil
}

func (h *ScoreHistogram) addCounts(binID int, target, decoy float64) {
	i := h.indexMap[binID]
	if i < 0 {
		i = len(h.psmBins)
		h.indexMap[binID] = i
		h.psmBins = append(h.psmBins, binID)
		h.targets = append(h.targets, 0)
		h.decoys = append(h.decoys, 0)
	}
	h.targets[i] += target
	h.decoys[i] += decoy
	h.totalTarget += target
	h.totalDecoy += decoy
	h.current = 0
}

// counts returns the counts of a bin, zero for unoccupied bins
func (h *ScoreHistogram) counts(binID int) (float64, float64) {
	i := h.indexMap[binID]
	if i < 0 {
		return 0, 0
	}
	return h.targets[i], h.decoys[i]
}

// Counts returns the target and decoy counts of a bin.
// ok is false if the bin is unoccupied.
func (h *ScoreHistogram) Counts(binID int) (target, decoy float64, ok bool) {
	i := h.indexMap[binID]
	if i < 0 {
		return 0, 0, false
	}
	return h.targets[i], h.decoys[i], true
}

// NumBins returns the number of occupied bins
func (h *ScoreHistogram) NumBins() int {
	return len(h.psmBins)
}

// Bins returns the ids of the occupied bins in order of first occurrence
func (h *ScoreHistogram) Bins() []int {
	return h.psmBins
}

// Totals returns the summed target and decoy counts
func (h *ScoreHistogram) Totals() (target, decoy float64) {
	return h.totalTarget, h.totalDecoy
}

// rescale multiplies the counts so that they sum to the given totals
func (h *ScoreHistogram) rescale(totalTarget, totalDecoy float64) {
	if s := floats.Sum(h.targets); s > 0 {
		floats.Scale(totalTarget/s, h.targets)
		h.totalTarget = totalTarget
	}
	if s := floats.Sum(h.decoys); s > 0 {
		floats.Scale(totalDecoy/s, h.decoys)
		h.totalDecoy = totalDecoy
	}
	h.current = 0
}

// clone returns a copy of the counts and class probabilities, without the
// derived statistics
func (h *ScoreHistogram) clone() *ScoreHistogram {
	c := &ScoreHistogram{
		binner:      h.binner,
		indexMap:    make([]int, len(h.indexMap)),
		psmBins:     append([]int(nil), h.psmBins...),
		targets:     append([]float64(nil), h.targets...),
		decoys:      append([]float64(nil), h.decoys...),
		totalTarget: h.totalTarget,
		totalDecoy:  h.totalDecoy,
		pi0:         h.pi0,
		pi1:         h.pi1,
		classProbs:  h.classProbs,
	}
	copy(c.indexMap, h.indexMap)
	return c
}

// ClassProbs returns pi0 and pi1, estimating them first if needed
func (h *ScoreHistogram) ClassProbs() (pi0, pi1 float64) {
	if !h.classProbs {
		h.CalcClassProb()
	}
	return h.pi0, h.pi1
}

// SetClassProbs overrides the class probabilities. pi1 is set to 1-pi0.
func (h *ScoreHistogram) SetClassProbs(pi0 float64) {
	h.pi0 = pi0
	h.pi1 = 1 - pi0
	h.classProbs = true
	h.current &^= localFDRCurrent
}

// CalcClassProb estimates the fraction of correct matches (pi1) by comparing
// the ranked target counts with the ranked decoy counts. For every target
// bin, the fraction of decoy bins with a count (scaled to the target total)
// at least as high serves as p-value. Bins that are significant after a
// Bonferroni correction count as true; their fraction, slightly inflated,
// is pi1.
func (h *ScoreHistogram) CalcClassProb() {
	n := len(h.psmBins)
	if n == 0 || h.totalTarget+h.totalDecoy == 0 {
		h.SetClassProbs(0.5)
		return
	}
	scale := float64(0)
	if h.totalDecoy > 0 {
		scale = h.totalTarget / h.totalDecoy
	}
	targets := append([]float64(nil), h.targets...)
	decoys := make([]float64, n)
	for i, d := range h.decoys {
		decoys[i] = d * scale
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(targets)))
	sort.Sort(sort.Reverse(sort.Float64Slice(decoys)))

	threshold := classProbAlpha / float64(n)
	significant := 0
	j := 0
	for _, t := range targets {
		if t <= 0 {
			break
		}
		for j < n && decoys[j] >= t {
			j++
		}
		if float64(j)/float64(n) < threshold {
			significant++
		}
	}
	pi1 := classProbScale * float64(significant) / float64(n)
	pi1 = math.Min(pi1, h.totalTarget/(h.totalTarget+h.totalDecoy))
	h.SetClassProbs(1 - pi1)
}

// ratio returns pi1/pi0, +Inf when pi0 is 0
func (h *ScoreHistogram) ratio() float64 {
	pi0, pi1 := h.ClassProbs()
	return classRatio(pi0, pi1)
}

func classRatio(pi0, pi1 float64) float64 {
	if pi0 <= 0 {
		return math.Inf(1)
	}
	return pi1 / pi0
}

func (h *ScoreHistogram) calcGamma() {
	if h.current&gammaCurrent != 0 {
		return
	}
	if cap(h.gamma) < len(h.psmBins) {
		h.gamma = make([]float64, len(h.psmBins))
	}
	h.gamma = h.gamma[:len(h.psmBins)]
	for i := range h.psmBins {
		t, d := h.targets[i], h.decoys[i]
		switch {
		case t <= 0:
			h.gamma[i] = 0
		case d <= 0:
			h.gamma[i] = GammaNoDecoys
		default:
			h.gamma[i] = (t / d) * (h.totalDecoy / h.totalTarget)
		}
	}
	h.current |= gammaCurrent
}

// Gamma returns the normalized target/decoy ratio of a bin.
// ok is false for unoccupied bins.
func (h *ScoreHistogram) Gamma(binID int) (float64, bool) {
	i := h.indexMap[binID]
	if i < 0 {
		return 0, false
	}
	h.calcGamma()
	return h.gamma[i], true
}

// localFDRFromGamma combines a gamma with the class ratio pi1/pi0
func localFDRFromGamma(ratio, gamma float64) float64 {
	switch {
	case gamma < 0:
		return 0
	case gamma == 0:
		return 1
	}
	l := 1 / (1 + ratio*gamma)
	if l > 1 {
		return 1
	}
	if l < 0 {
		return 0
	}
	return l
}

// CalcLocalFDR computes the local FDR of every bin from its own gamma
func (h *ScoreHistogram) CalcLocalFDR() {
	h.calcGamma()
	ratio := h.ratio()
	h.allocLocalFDR()
	for i, g := range h.gamma {
		h.localFDR[i] = localFDRFromGamma(ratio, g)
	}
	h.sortLocalFDR()
}

// CalcLocalFDRFrom computes the local FDR of every bin of h from the gamma
// that the ancestor histogram has for the same bin, combined with ratio
// (pi1/pi0 of h). Bins the ancestor has not seen keep their own gamma.
func (h *ScoreHistogram) CalcLocalFDRFrom(ratio float64, ancestor Estimator) {
	h.calcGamma()
	h.allocLocalFDR()
	for i, binID := range h.psmBins {
		g, ok := ancestor.Gamma(binID)
		if !ok {
			g = h.gamma[i]
		}
		h.localFDR[i] = localFDRFromGamma(ratio, g)
	}
	h.sortLocalFDR()
}

func (h *ScoreHistogram) allocLocalFDR() {
	if cap(h.localFDR) < len(h.psmBins) {
		h.localFDR = make([]float64, len(h.psmBins))
	}
	h.localFDR = h.localFDR[:len(h.psmBins)]
}

func (h *ScoreHistogram) sortLocalFDR() {
	sorted := append([]float64(nil), h.localFDR...)
	h.sortedIndexes = make([]int, len(sorted))
	floats.Argsort(sorted, h.sortedIndexes)
	h.current |= localFDRCurrent
}

func (h *ScoreHistogram) ensureLocalFDR() {
	if h.current&localFDRCurrent == 0 {
		h.CalcLocalFDR()
	}
}

// LocalFDR returns the local FDR of a bin, Unobserved if the bin is empty
func (h *ScoreHistogram) LocalFDR(binID int) float64 {
	i := h.indexMap[binID]
	if i < 0 {
		return Unobserved
	}
	h.ensureLocalFDR()
	return h.localFDR[i]
}

// PSMLocalFDR returns the local FDR of the bin a PSM falls into
func (h *ScoreHistogram) PSMLocalFDR(psm *PSM) (float64, error) {
	binID, err := h.binner.BinID(psm.Scores)
	if err != nil {
		return Unobserved, err
	}
	return h.LocalFDR(binID), nil
}

// TargetDecoyCounts returns the counts of all bins with a local FDR up to
// maxLocalFDR. Bins with the same local FDR are taken together. The first
// group above maxLocalFDR contributes the fraction of its counts that
// corresponds to the position of maxLocalFDR between the previous and its
// own local FDR, so the result is continuous in maxLocalFDR.
func (h *ScoreHistogram) TargetDecoyCounts(maxLocalFDR float64) (decoys, targets float64) {
	if len(h.psmBins) == 0 || maxLocalFDR < 0 {
		return 0, 0
	}
	h.ensureLocalFDR()
	prev := float64(0)
	n := len(h.sortedIndexes)
	for i := 0; i < n; {
		l := h.localFDR[h.sortedIndexes[i]]
		var gd, gt float64
		j := i
		for ; j < n && h.localFDR[h.sortedIndexes[j]] == l; j++ {
			gd += h.decoys[h.sortedIndexes[j]]
			gt += h.targets[h.sortedIndexes[j]]
		}
		if l < 0 {
			i = j
			continue
		}
		if l <= maxLocalFDR {
			decoys += gd
			targets += gt
			prev = l
			i = j
			continue
		}
		frac := (maxLocalFDR - prev) / (l - prev)
		decoys += frac * gd
		targets += frac * gt
		break
	}
	return decoys, targets
}
