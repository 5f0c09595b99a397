package fdr

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// NodeState is the processing stage of a node. Stages only move forward.
type NodeState int

const (
	NodeEmpty NodeState = iota
	NodePopulated
	NodeClassProbsEstimated
	NodeSmoothed
	NodeResolved
	NodeUnresolved
)

func (s NodeState) String() string {
	switch s {
	case NodeEmpty:
		return "empty"
	case NodePopulated:
		return "populated"
	case NodeClassProbsEstimated:
		return "classprobs"
	case NodeSmoothed:
		return "smoothed"
	case NodeResolved:
		return "resolved"
	case NodeUnresolved:
		return "unresolved"
	}
	return fmt.Sprintf("NodeState(%d)", int(s))
}

// Node is a node of the histogram tree. A node owns its children; parent is
// only used to look for an ancestor to fall back on.
type Node struct {
	ID       string
	Group    string
	Level    int
	Children []*Node
	Hist     *SmoothedScoreHistogram

	parent          *Node
	canCalculateFDR bool
	fallback        *Node
	state           NodeState
}

func newNode(id, group string, level int, b *Binner) *Node {
	return &Node{
		ID:    id,
		Group: group,
		Level: level,
		Hist:  NewSmoothedScoreHistogram(b),
	}
}

func (n *Node) addChild(c *Node) {
	c.parent = n
	n.Children = append(n.Children, c)
}

// Parent returns the parent node, nil for the root
func (n *Node) Parent() *Node {
	return n.parent
}

// State returns the processing stage of the node
func (n *Node) State() NodeState {
	return n.state
}

// CanCalculateFDR tells if the node has enough observations of its own
func (n *Node) CanCalculateFDR() bool {
	return n.canCalculateFDR
}

// Fallback returns the ancestor whose gamma was used for this node, nil if
// the node was resolved on its own histogram
func (n *Node) Fallback() *Node {
	return n.fallback
}

// Resolved tells if local FDRs can be looked up for this node
func (n *Node) Resolved() bool {
	return n.state == NodeResolved
}

// IsLeaf tells if the node has no children
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Add counts a PSM in the histogram of this node only
func (n *Node) Add(psm *PSM) error {
	if err := n.Hist.Add(psm); err != nil {
		return err
	}
	n.state = NodePopulated
	return nil
}

// Walk calls fn for the node and all its descendants, depth first
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// SetCanCalculateFDR marks every node with at least minObservations
// observations as able to estimate its own local FDR
func (n *Node) SetCanCalculateFDR(minObservations int) {
	n.Walk(func(m *Node) {
		t, d := m.Hist.Totals()
		m.canCalculateFDR = t+d >= float64(minObservations)
	})
}

// CalcClassProbs estimates pi0 and pi1 for every node on the raw counts
func (n *Node) CalcClassProbs() {
	n.Walk(func(m *Node) {
		m.Hist.CalcClassProb()
		m.state = NodeClassProbsEstimated
		pi0, pi1 := m.Hist.ClassProbs()
		log.WithFields(log.Fields{"node": m.ID, "pi0": pi0, "pi1": pi1}).Debug("class probabilities")
	})
}

// SmoothHistogram applies degree smoothing passes to every node. Only the
// last pass scales the counts back to the raw totals. With removeSpikes,
// isolated spikes are removed first.
func (n *Node) SmoothHistogram(degree int, removeSpikes bool) {
	n.Walk(func(m *Node) {
		if degree > 0 {
			if removeSpikes {
				if r := m.Hist.RemoveSpikeNoise(false); r > 0 {
					log.WithFields(log.Fields{"node": m.ID, "bins": r}).Debug("removed spike noise")
				}
			}
			for i := 1; i < degree; i++ {
				m.Hist.SmoothHistogram(false)
			}
			m.Hist.SmoothHistogram(true)
		}
		m.state = NodeSmoothed
	})
}

// resolvableAncestor returns the closest ancestor that can calculate its own
// local FDR
func (n *Node) resolvableAncestor() *Node {
	for a := n.parent; a != nil; a = a.parent {
		if a.canCalculateFDR {
			return a
		}
	}
	return nil
}

// CalcLocalFDR resolves the local FDR of every node, root first. A node
// without enough observations combines its own pi1/pi0 with the gamma of
// its closest sufficient ancestor. Nodes for which no such ancestor exists
// are returned.
func (n *Node) CalcLocalFDR() []string {
	var unresolved []string
	n.Walk(func(m *Node) {
		if m.canCalculateFDR {
			m.Hist.CalcLocalFDR()
			m.state = NodeResolved
			return
		}
		a := m.resolvableAncestor()
		if a == nil {
			log.WithField("node", m.ID).Warn("cannot resolve FDR for node, its PSMs are excluded from filtered output")
			m.state = NodeUnresolved
			unresolved = append(unresolved, m.ID)
			return
		}
		pi0, pi1 := m.Hist.ClassProbs()
		m.Hist.CalcLocalFDRFrom(classRatio(pi0, pi1), a.Hist)
		m.fallback = a
		m.state = NodeResolved
		log.WithFields(log.Fields{"node": m.ID, "ancestor": a.ID}).Info("too few observations, using gamma of ancestor")
	})
	return unresolved
}

// Print writes an indented summary of the node and its descendants at the
// given thresholds
func (n *Node) Print(w io.Writer, th Thresholds) error {
	var err error
	n.Walk(func(m *Node) {
		if err != nil {
			return
		}
		err = m.printLine(w, th)
	})
	return err
}

func (n *Node) printLine(w io.Writer, th Thresholds) error {
	t, d := n.Hist.Totals()
	pi0, pi1 := n.Hist.ClassProbs()
	indent := strings.Repeat("  ", n.Level)
	if !n.Resolved() {
		_, err := fmt.Fprintf(w, "%s%s: target %.0f decoy %.0f pi0 %.4f pi1 %.4f [%s]\n",
			indent, n.ID, t, d, pi0, pi1, n.state)
		return err
	}
	thr := th.For(n.Group)
	sd, st := n.Hist.TargetDecoyCounts(thr)
	fallback := ""
	if n.fallback != nil {
		fallback = " [gamma from " + n.fallback.ID + "]"
	}
	_, err := fmt.Fprintf(w, "%s%s: target %.1f/%.0f decoy %.1f/%.0f pFDR %.4f at lFDR %.4f pi0 %.4f pi1 %.4f%s\n",
		indent, n.ID, st, t, sd, d, PooledFDR(sd, st), thr, pi0, pi1, fallback)
	return err
}

// PooledFDR estimates the FDR of a set of accepted PSMs from its decoy and
// target counts: 2*decoys/(decoys+targets), 0 for an empty set
func PooledFDR(decoys, targets float64) float64 {
	if decoys+targets <= 0 {
		return 0
	}
	return 2 * decoys / (decoys + targets)
}
