package main

import (
	"fmt"

	"github.com/524D/mzfdr/internal/config"
	"github.com/524D/mzfdr/internal/mzidentml"
)

// Group labels
const (
	groupAll   = "all"
	groupMod   = "mod"
	groupUnmod = "unmod"
)

// groupFunc assigns the group label of an identification
type groupFunc func(ident *mzidentml.Identification) string

func groupingPolicy(name string) (groupFunc, error) {
	switch name {
	case config.GroupingNone, "":
		return func(*mzidentml.Identification) string { return groupAll }, nil
	case config.GroupingModified:
		return func(ident *mzidentml.Identification) string {
			if ident.NumMods > 0 {
				return groupMod
			}
			return groupUnmod
		}, nil
	case config.GroupingMissedCleavages:
		return func(ident *mzidentml.Identification) string {
			switch n := missedCleavages(ident.PepSeq); n {
			case 0, 1:
				return fmt.Sprintf("mc%d", n)
			default:
				return "mc2+"
			}
		}, nil
	}
	return nil, fmt.Errorf("unknown grouping %q", name)
}

// missedCleavages counts the tryptic cleavage sites (K or R, not followed by
// P) inside a peptide. The C-terminal residue is not a missed cleavage.
func missedCleavages(pepSeq string) int {
	n := 0
	for i := 0; i < len(pepSeq)-1; i++ {
		if (pepSeq[i] == 'K' || pepSeq[i] == 'R') && pepSeq[i+1] != 'P' {
			n++
		}
	}
	return n
}
