package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzfdr/internal/fdr"
	"github.com/524D/mzfdr/internal/report"
)

func testRun(t *testing.T) (*fdr.Calculator, []report.PSMResult) {
	t.Helper()
	c, err := fdr.NewCalculator(
		fdr.Params{Dimensions: []fdr.Dimension{{Score: "s", Min: 0, Max: 10, Bins: 10}}},
		fdr.Scheme{Charges: []int{2}, Groups: []string{"mod", "unmod"}},
	)
	require.NoError(t, err)
	var psms []*fdr.PSM
	for i := 0; i < 60; i++ {
		psms = append(psms, &fdr.PSM{
			SpectrumID: "s",
			Charge:     2,
			Group:      "unmod",
			Decoy:      i%3 == 0,
			Scores:     map[string]float64{"s": float64(i%10) + 0.5},
		})
	}
	psms = append(psms, &fdr.PSM{Charge: 2, Group: "mod", Scores: map[string]float64{"s": 9.5}})
	require.NoError(t, c.AddAll(psms))
	require.NoError(t, c.Process(20, 1))
	results, err := report.Evaluate(c, psms, fdr.Thresholds{Default: 0.5})
	require.NoError(t, err)
	return c, results
}

func TestObserve(t *testing.T) {
	c, results := testRun(t)
	m := New()
	th := fdr.Thresholds{Default: 0.5, Groups: map[string]float64{"mod": 0.4, "unmod": 0.5}}
	m.Observe(c, results, th, 7, 2*time.Second)

	assert.Equal(t, float64(20), testutil.ToFloat64(m.PSMsTotal.WithLabelValues("true")))
	assert.Equal(t, float64(41), testutil.ToFloat64(m.PSMsTotal.WithLabelValues("false")))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.SkippedPSMs))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 0.4, testutil.ToFloat64(m.Threshold.WithLabelValues("mod")))

	// all, Z2 and Z2_unmod on their own, Z2_mod from Z2
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Nodes.WithLabelValues("direct")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Nodes.WithLabelValues("fallback")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.Nodes.WithLabelValues("unresolved")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.NoLocalFDR.WithLabelValues("unresolved_node")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.NoLocalFDR.WithLabelValues("empty_bin")))

	var accepted int
	for _, r := range results {
		if r.Accepted && !r.PSM.Decoy {
			accepted++
		}
	}
	assert.Equal(t, float64(accepted), testutil.ToFloat64(m.PSMsAccepted.WithLabelValues("false")))
}

func TestWriteTextfile(t *testing.T) {
	c, results := testRun(t)
	m := New()
	m.Observe(c, results, fdr.Thresholds{Default: 0.5}, 0, time.Second)

	path := filepath.Join(t.TempDir(), "mzfdr.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	for _, name := range []string{"mzfdr_psms_total", "mzfdr_lfdr_threshold", "mzfdr_nodes", "mzfdr_psm_local_fdr_bucket"} {
		assert.True(t, strings.Contains(text, name), "missing %s", name)
	}
}
