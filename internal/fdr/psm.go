package fdr

import "strconv"

// PSM is a single peptide-to-spectrum match as reported by a search engine.
// A PSM is never modified after it has been created.
type PSM struct {
	SpectrumID string
	Charge     int
	Decoy      bool
	Group      string // Assigned by the grouping policy of the caller
	Peptide    string
	Rank       int
	Scores     map[string]float64
}

// Identifiers of the nodes in the histogram tree
const RootID = "all"

// ChargeID returns the id of the node that holds all PSMs of one charge state
func ChargeID(charge int) string {
	return "Z" + strconv.Itoa(charge)
}

// StratumID returns the id of the leaf node for a charge state and group,
// e.g. "Z2_unmod"
func StratumID(charge int, group string) string {
	return ChargeID(charge) + "_" + group
}

// StratumID returns the id of the leaf node the PSM belongs to
func (p *PSM) StratumID() string {
	return StratumID(p.Charge, p.Group)
}
