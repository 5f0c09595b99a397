package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/524D/mzfdr/internal/fdr"
)

// Summary describes a complete run
type Summary struct {
	Version         string
	Input           string
	Created         time.Time
	TargetFDR       float64
	Grouping        string
	GroupThresholds bool
	Threshold       float64
	Thresholds      map[string]float64 `json:",omitempty"`
	PSMs            int
	Targets         int
	Decoys          int
	Skipped         int
	AcceptedTargets int
	AcceptedDecoys  int
	PooledFDR       float64
	Unresolved      []string `json:",omitempty"`
	Nodes           []fdr.NodeSummary
}

// NewSummary collects the counts of a run from its PSM results
func NewSummary(c *fdr.Calculator, results []PSMResult, th fdr.Thresholds, targetFDR float64) *Summary {
	s := &Summary{
		Created:    time.Now().UTC(),
		TargetFDR:  targetFDR,
		Threshold:  th.Default,
		Thresholds: th.Groups,
		PSMs:       len(results),
		Unresolved: c.Unresolved(),
		Nodes:      c.Summaries(th),
	}
	for _, r := range results {
		if r.PSM.Decoy {
			s.Decoys++
		} else {
			s.Targets++
		}
		if !r.Accepted {
			continue
		}
		if r.PSM.Decoy {
			s.AcceptedDecoys++
		} else {
			s.AcceptedTargets++
		}
	}
	s.PooledFDR = fdr.PooledFDR(float64(s.AcceptedDecoys), float64(s.AcceptedTargets))
	return s
}

// WriteSummary writes s as indented JSON
func WriteSummary(w io.Writer, s *Summary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s)
}
