// Package report writes the results of a local FDR run: a PSM table, a JSON
// summary and an SQLite database.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/524D/mzfdr/internal/fdr"
)

// PSMResult is the outcome for one PSM
type PSMResult struct {
	PSM      *fdr.PSM
	LocalFDR float64
	Resolved bool // false: no local FDR could be determined
	// NodeResolved is true when the node of the PSM has local FDRs. A PSM
	// of a resolved node still has none when its bin was removed as noise.
	NodeResolved bool
	Accepted     bool
}

// Evaluate looks up the local FDR of every PSM and tells if it passes the
// threshold of its group
func Evaluate(c *fdr.Calculator, psms []*fdr.PSM, th fdr.Thresholds) ([]PSMResult, error) {
	res := make([]PSMResult, len(psms))
	for i, psm := range psms {
		lfdr, ok, err := c.LocalFDR(psm)
		if err != nil {
			return nil, err
		}
		n, _ := c.Node(psm.StratumID())
		res[i] = PSMResult{
			PSM:          psm,
			LocalFDR:     lfdr,
			Resolved:     ok,
			NodeResolved: n != nil && n.Resolved(),
			Accepted:     ok && lfdr <= th.For(psm.Group),
		}
	}
	return res, nil
}

var psmHeader = []string{"spectrumID", "peptide", "charge", "rank", "group", "decoy", "node", "localFDR", "accepted"}

// WritePSMs writes one tab separated line per PSM. The local FDR column is
// empty for PSMs without a local FDR.
func WritePSMs(w io.Writer, results []PSMResult) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(psmHeader); err != nil {
		return err
	}
	row := make([]string, len(psmHeader))
	for _, r := range results {
		row[0] = r.PSM.SpectrumID
		row[1] = r.PSM.Peptide
		row[2] = strconv.Itoa(r.PSM.Charge)
		row[3] = strconv.Itoa(r.PSM.Rank)
		row[4] = r.PSM.Group
		row[5] = strconv.FormatBool(r.PSM.Decoy)
		row[6] = r.PSM.StratumID()
		row[7] = ""
		if r.Resolved {
			row[7] = strconv.FormatFloat(r.LocalFDR, 'g', 6, 64)
		}
		row[8] = strconv.FormatBool(r.Accepted)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
