// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzfdr/internal/fdr"
)

// debugLogNodes prints the state and bins of the nodes in the comma
// separated list nodeList
func debugLogNodes(w io.Writer, c *fdr.Calculator, nodeList string) error {
	if nodeList == `` {
		return nil
	}
	selected := make(map[string]bool)
	for _, id := range strings.Split(nodeList, ",") {
		id = strings.TrimSpace(id)
		n, ok := c.Node(id)
		if !ok {
			log.WithField("node", id).Warn("debug: no such node")
			continue
		}
		selected[id] = true
		pi0, pi1 := n.Hist.ClassProbs()
		fallback := `-`
		if fb := n.Fallback(); fb != nil {
			fallback = fb.ID
		}
		t, d := n.Hist.Totals()
		fmt.Fprintf(w, "Node:%s state:%s target:%.1f decoy:%.1f pi0:%f pi1:%f fallback:%s\n",
			n.ID, n.State(), t, d, pi0, pi1, fallback)
	}
	if len(selected) == 0 {
		return nil
	}
	return c.EachBin(func(b fdr.BinRecord) error {
		if !selected[b.Node] {
			return nil
		}
		_, err := fmt.Fprintf(w, "%s %s bin:%d mid:%v target:%f decoy:%f lfdr:%f\n",
			b.Node, b.Series, b.BinID, b.Midpoints, b.Target, b.Decoy, b.LocalFDR)
		return err
	})
}
