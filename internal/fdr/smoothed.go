package fdr

// SmoothedScoreHistogram keeps the raw counts of a ScoreHistogram next to a
// denoised copy. Estimates are made on the denoised copy when it exists; the
// raw counts are never changed by smoothing.
type SmoothedScoreHistogram struct {
	raw      *ScoreHistogram
	smoothed *ScoreHistogram
	nbBuf    []int
}

// NewSmoothedScoreHistogram creates an empty histogram on the grid of b
func NewSmoothedScoreHistogram(b *Binner) *SmoothedScoreHistogram {
	return &SmoothedScoreHistogram{raw: NewScoreHistogram(b)}
}

// Add counts a PSM in the raw histogram. A previously smoothed copy is
// dropped, it no longer reflects the counts.
func (s *SmoothedScoreHistogram) Add(psm *PSM) error {
	s.smoothed = nil
	return s.raw.Add(psm)
}

// Raw returns the histogram with the observed counts
func (s *SmoothedScoreHistogram) Raw() *ScoreHistogram {
	return s.raw
}

// Smoothed returns the denoised histogram, nil if no smoothing was done
func (s *SmoothedScoreHistogram) Smoothed() *ScoreHistogram {
	return s.smoothed
}

func (s *SmoothedScoreHistogram) active() *ScoreHistogram {
	if s.smoothed != nil {
		return s.smoothed
	}
	return s.raw
}

// work returns the histogram the next denoising pass starts from
func (s *SmoothedScoreHistogram) work() *ScoreHistogram {
	if s.smoothed == nil {
		return s.raw
	}
	return s.smoothed
}

// CalcClassProb estimates the class probabilities on the raw counts
func (s *SmoothedScoreHistogram) CalcClassProb() {
	s.raw.CalcClassProb()
	if s.smoothed != nil {
		s.smoothed.SetClassProbs(s.raw.pi0)
	}
}

// ClassProbs returns pi0 and pi1 of the raw counts
func (s *SmoothedScoreHistogram) ClassProbs() (pi0, pi1 float64) {
	return s.raw.ClassProbs()
}

// Totals returns the raw target and decoy totals
func (s *SmoothedScoreHistogram) Totals() (target, decoy float64) {
	return s.raw.Totals()
}

// replace installs next as smoothed histogram, optionally scaled back to
// the raw totals
func (s *SmoothedScoreHistogram) replace(next *ScoreHistogram, adjustTotals bool) {
	if adjustTotals {
		next.rescale(s.raw.totalTarget, s.raw.totalDecoy)
	}
	if s.raw.classProbs {
		next.SetClassProbs(s.raw.pi0)
	}
	s.smoothed = next
}

// SmoothHistogram replaces the count of every bin by the mean of the bin and
// its face-adjacent neighbors. Empty neighbors of occupied bins receive
// counts as well. Each call starts from the result of the previous one.
func (s *SmoothedScoreHistogram) SmoothHistogram(adjustTotals bool) {
	src := s.work()
	b := src.binner
	next := NewScoreHistogram(b)

	candidates := make([]int, 0, 2*len(src.psmBins))
	seen := make(map[int]struct{}, 2*len(src.psmBins))
	for _, binID := range src.psmBins {
		if _, ok := seen[binID]; !ok {
			seen[binID] = struct{}{}
			candidates = append(candidates, binID)
		}
		s.nbBuf = b.Neighbors(binID, s.nbBuf)
		for _, nb := range s.nbBuf {
			if _, ok := seen[nb]; !ok {
				seen[nb] = struct{}{}
				candidates = append(candidates, nb)
			}
		}
	}

	for _, binID := range candidates {
		t, d := src.counts(binID)
		n := float64(1)
		s.nbBuf = b.Neighbors(binID, s.nbBuf)
		for _, nb := range s.nbBuf {
			nt, nd := src.counts(nb)
			t += nt
			d += nd
			n++
		}
		if t == 0 && d == 0 {
			continue
		}
		next.addCounts(binID, t/n, d/n)
	}
	s.replace(next, adjustTotals)
}

// RemoveSpikeNoise drops bins that hold at most one observation while none
// of their neighbors hold any target count. It returns the number of bins
// that were removed.
func (s *SmoothedScoreHistogram) RemoveSpikeNoise(adjustTotals bool) int {
	src := s.work()
	b := src.binner
	next := NewScoreHistogram(b)
	removed := 0
	for i, binID := range src.psmBins {
		t, d := src.targets[i], src.decoys[i]
		if t+d <= 1 {
			nbTarget := float64(0)
			s.nbBuf = b.Neighbors(binID, s.nbBuf)
			for _, nb := range s.nbBuf {
				nt, _ := src.counts(nb)
				nbTarget += nt
			}
			if nbTarget == 0 {
				removed++
				continue
			}
		}
		next.addCounts(binID, t, d)
	}
	s.replace(next, adjustTotals)
	return removed
}

// Gamma returns the gamma of the smoothed histogram if present
func (s *SmoothedScoreHistogram) Gamma(binID int) (float64, bool) {
	return s.active().Gamma(binID)
}

// LocalFDR returns the local FDR of the smoothed histogram if present
func (s *SmoothedScoreHistogram) LocalFDR(binID int) float64 {
	return s.active().LocalFDR(binID)
}

// PSMLocalFDR returns the local FDR of the bin a PSM falls into
func (s *SmoothedScoreHistogram) PSMLocalFDR(psm *PSM) (float64, error) {
	return s.active().PSMLocalFDR(psm)
}

// CalcLocalFDR computes the local FDR of the raw and, if present, the
// smoothed histogram
func (s *SmoothedScoreHistogram) CalcLocalFDR() {
	s.raw.CalcLocalFDR()
	if s.smoothed != nil {
		s.smoothed.CalcLocalFDR()
	}
}

// CalcLocalFDRFrom computes the local FDR of the raw and, if present, the
// smoothed histogram from the gamma of an ancestor
func (s *SmoothedScoreHistogram) CalcLocalFDRFrom(ratio float64, ancestor Estimator) {
	s.raw.CalcLocalFDRFrom(ratio, ancestor)
	if s.smoothed != nil {
		s.smoothed.CalcLocalFDRFrom(ratio, ancestor)
	}
}

// TargetDecoyCounts returns the counts up to a local FDR threshold
func (s *SmoothedScoreHistogram) TargetDecoyCounts(maxLocalFDR float64) (decoys, targets float64) {
	return s.active().TargetDecoyCounts(maxLocalFDR)
}
