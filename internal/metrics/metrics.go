// Package metrics defines the Prometheus collectors that describe an mzfdr
// run. They are written to a text file for the node exporter textfile
// collector at the end of a run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/524D/mzfdr/internal/fdr"
	"github.com/524D/mzfdr/internal/report"
)

// Metrics holds all collectors of a run, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	PSMsTotal     *prometheus.GaugeVec
	PSMsAccepted  *prometheus.GaugeVec
	Threshold     *prometheus.GaugeVec
	PooledFDR     *prometheus.GaugeVec
	Nodes         *prometheus.GaugeVec
	PSMLocalFDR   *prometheus.HistogramVec
	RunDuration   prometheus.Gauge
	SkippedPSMs   prometheus.Gauge
	NoLocalFDR    *prometheus.GaugeVec
	BinsOccupied  *prometheus.GaugeVec
	ClassPriorPi1 *prometheus.GaugeVec
}

// New creates and registers all metrics.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		PSMsTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_psms_total",
				Help: "Number of PSMs read, by decoy status.",
			},
			[]string{"decoy"},
		),
		PSMsAccepted: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_psms_accepted",
				Help: "Number of PSMs that pass their local FDR threshold, by decoy status.",
			},
			[]string{"decoy"},
		),
		Threshold: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_lfdr_threshold",
				Help: "Local FDR threshold by group (empty group: all PSMs).",
			},
			[]string{"group"},
		),
		PooledFDR: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_pooled_fdr",
				Help: "Estimated FDR of the accepted PSMs by group.",
			},
			[]string{"group"},
		),
		Nodes: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_nodes",
				Help: "Number of histogram nodes by resolution (direct, fallback, unresolved).",
			},
			[]string{"state"},
		),
		PSMLocalFDR: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mzfdr_psm_local_fdr",
				Help:    "Local FDR of the PSMs that have one, by decoy status.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
			},
			[]string{"decoy"},
		),
		RunDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mzfdr_run_duration_seconds",
				Help: "Wall clock time of the run.",
			},
		),
		SkippedPSMs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mzfdr_psms_skipped",
				Help: "Number of PSMs left out because of their charge or rank.",
			},
		),
		NoLocalFDR: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_psms_without_local_fdr",
				Help: "Number of PSMs without local FDR, by reason (unresolved_node, empty_bin).",
			},
			[]string{"reason"},
		),
		BinsOccupied: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_bins_occupied",
				Help: "Number of occupied histogram bins by node and series.",
			},
			[]string{"node", "series"},
		),
		ClassPriorPi1: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mzfdr_pi1",
				Help: "Estimated fraction of correct target PSMs by node.",
			},
			[]string{"node"},
		),
	}

	m.Registry.MustRegister(
		m.PSMsTotal,
		m.PSMsAccepted,
		m.Threshold,
		m.PooledFDR,
		m.Nodes,
		m.PSMLocalFDR,
		m.RunDuration,
		m.SkippedPSMs,
		m.NoLocalFDR,
		m.BinsOccupied,
		m.ClassPriorPi1,
	)
	return m
}

func decoyLabel(decoy bool) string {
	if decoy {
		return "true"
	}
	return "false"
}

// Observe records the outcome of a run
func (m *Metrics) Observe(c *fdr.Calculator, results []report.PSMResult, th fdr.Thresholds, skipped int, elapsed time.Duration) {
	for _, decoy := range []bool{false, true} {
		m.PSMsTotal.WithLabelValues(decoyLabel(decoy)).Set(0)
		m.PSMsAccepted.WithLabelValues(decoyLabel(decoy)).Set(0)
	}
	var unresolvedNode, emptyBin float64
	for _, r := range results {
		switch {
		case !r.NodeResolved:
			unresolvedNode++
		case !r.Resolved:
			emptyBin++
		}
		l := decoyLabel(r.PSM.Decoy)
		m.PSMsTotal.WithLabelValues(l).Inc()
		if r.Accepted {
			m.PSMsAccepted.WithLabelValues(l).Inc()
		}
		if r.Resolved {
			m.PSMLocalFDR.WithLabelValues(l).Observe(r.LocalFDR)
		}
	}

	m.Threshold.WithLabelValues("").Set(th.Default)
	m.PooledFDR.WithLabelValues("").Set(c.GlobalFDR(th.Default, ""))
	for g, v := range th.Groups {
		m.Threshold.WithLabelValues(g).Set(v)
		m.PooledFDR.WithLabelValues(g).Set(c.GlobalFDR(v, g))
	}

	var direct, fallback, unresolved float64
	c.Root().Walk(func(n *fdr.Node) {
		switch {
		case !n.Resolved():
			unresolved++
		case n.Fallback() != nil:
			fallback++
		default:
			direct++
		}
		m.BinsOccupied.WithLabelValues(n.ID, fdr.SeriesRaw).Set(float64(n.Hist.Raw().NumBins()))
		if sm := n.Hist.Smoothed(); sm != nil {
			m.BinsOccupied.WithLabelValues(n.ID, fdr.SeriesSmoothed).Set(float64(sm.NumBins()))
		}
		_, pi1 := n.Hist.ClassProbs()
		m.ClassPriorPi1.WithLabelValues(n.ID).Set(pi1)
	})
	m.Nodes.WithLabelValues("direct").Set(direct)
	m.Nodes.WithLabelValues("fallback").Set(fallback)
	m.Nodes.WithLabelValues("unresolved").Set(unresolved)

	m.NoLocalFDR.WithLabelValues("unresolved_node").Set(unresolvedNode)
	m.NoLocalFDR.WithLabelValues("empty_bin").Set(emptyBin)
	m.SkippedPSMs.Set(float64(skipped))
	m.RunDuration.Set(elapsed.Seconds())
}

// WriteTextfile writes all metrics in the Prometheus text format to path
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
