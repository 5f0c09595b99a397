package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/524D/mzfdr/internal/config"
	"github.com/524D/mzfdr/internal/fdr"
	"github.com/524D/mzfdr/internal/metrics"
	"github.com/524D/mzfdr/internal/mzidentml"
	"github.com/524D/mzfdr/internal/report"
)

// psmSet holds the PSMs read from an mzIdentML file
type psmSet struct {
	psms    []*fdr.PSM
	skipped int // Left out because of charge, rank or a missing or invalid score
}

// readPSMs reads all identifications from an mzIdentML file and converts
// those within the configured charge and rank limits to PSMs
func readPSMs(path string, cfg *config.Config) (psmSet, error) {
	var set psmSet
	group, err := groupingPolicy(cfg.Grouping)
	if err != nil {
		return set, err
	}
	f, err := os.Open(path)
	if err != nil {
		return set, err
	}
	defer f.Close()
	mzIdentML, err := mzidentml.Read(f)
	if err != nil {
		return set, fmt.Errorf("reading %s: %w", path, err)
	}

	binner, err := fdr.NewBinner(cfg.FDRDimensions())
	if err != nil {
		return set, err
	}

	missing := make(map[string]int)
	invalid := 0
	for i := 0; i < mzIdentML.NumIdents(); i++ {
		ident, err := mzIdentML.Ident(i)
		if err != nil {
			return set, err
		}
		rank := ident.Rank
		if rank == 0 {
			rank = 1
		}
		if rank > cfg.MaxRank || ident.Charge < cfg.Charge.Min || ident.Charge > cfg.Charge.Max {
			set.skipped++
			continue
		}
		scores := ident.Scores()
		complete := true
		for _, d := range cfg.Dimensions {
			if _, ok := scores[d.Score]; !ok {
				missing[d.Score]++
				complete = false
			}
		}
		if !complete {
			set.skipped++
			continue
		}
		// NaN scores, or scores outside the domain of their transform
		if _, err := binner.BinID(scores); err != nil {
			log.WithField("spectrum", ident.SpecID).Debug(err)
			invalid++
			set.skipped++
			continue
		}
		set.psms = append(set.psms, &fdr.PSM{
			SpectrumID: ident.SpecID,
			Charge:     ident.Charge,
			Decoy:      ident.Decoy,
			Group:      group(&ident),
			Peptide:    ident.PepSeq,
			Rank:       rank,
			Scores:     scores,
		})
	}
	for score, n := range missing {
		log.WithFields(log.Fields{"score": score, "psms": n}).Warn("PSMs without score skipped")
	}
	if invalid > 0 {
		log.WithField("psms", invalid).Warn("PSMs with scores that cannot be binned skipped")
	}
	log.WithFields(log.Fields{
		"file":    path,
		"idents":  mzIdentML.NumIdents(),
		"psms":    len(set.psms),
		"skipped": set.skipped,
	}).Info("read identifications")
	return set, nil
}

// schemeOf returns the charge states and groups that occur in psms
func schemeOf(psms []*fdr.PSM) fdr.Scheme {
	charges := make(map[int]bool)
	groups := make(map[string]bool)
	for _, p := range psms {
		charges[p.Charge] = true
		groups[p.Group] = true
	}
	var s fdr.Scheme
	for z := range charges {
		s.Charges = append(s.Charges, z)
	}
	for g := range groups {
		s.Groups = append(s.Groups, g)
	}
	sort.Ints(s.Charges)
	sort.Strings(s.Groups)
	return s
}

// estimate builds and processes the histogram tree of psms
func estimate(cfg *config.Config, psms []*fdr.PSM) (*fdr.Calculator, error) {
	c, err := fdr.NewCalculator(cfg.Params(), schemeOf(psms))
	if err != nil {
		return nil, err
	}
	if err := c.AddAll(psms); err != nil {
		return nil, err
	}
	if err := c.Process(cfg.MinObservations, cfg.SmoothingDegree); err != nil {
		return nil, err
	}
	if u := c.Unresolved(); len(u) > 0 {
		log.WithField("nodes", u).Warn("no local FDR for PSMs in unresolved nodes")
	}
	return c, nil
}

// thresholds computes the local FDR thresholds for the target FDR
func thresholds(c *fdr.Calculator, cfg *config.Config) fdr.Thresholds {
	th := fdr.Thresholds{Default: c.LocalFDRThreshold(cfg.TargetFDR, "")}
	if cfg.GroupThresholds {
		th.Groups = c.GroupLocalFDRThresholds(cfg.TargetFDR)
	}
	log.WithFields(log.Fields{
		"targetFDR": cfg.TargetFDR,
		"threshold": th.Default,
		"groups":    th.Groups,
	}).Info("local FDR threshold")
	return th
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// createOutput creates file path, or returns stdout for "-"
func createOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

// writeTo creates path and writes to it with write
func writeTo(path string, write func(io.Writer) error) error {
	f, err := createOutput(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// filterRun holds everything a filter run produces
type filterRun struct {
	cfg      *config.Config
	set      psmSet
	calc     *fdr.Calculator
	th       fdr.Thresholds
	results  []report.PSMResult
	spectra  int // Spectra with at least one accepted PSM
	duration time.Duration
}

// filterPSMs runs the complete estimation on the PSMs of an mzIdentML file
func filterPSMs(ctx context.Context, path string, cfg *config.Config) (*filterRun, error) {
	start := time.Now()
	set, err := readPSMs(path, cfg)
	if err != nil {
		return nil, err
	}
	c, err := estimate(cfg, set.psms)
	if err != nil {
		return nil, err
	}
	run := &filterRun{cfg: cfg, set: set, calc: c, th: thresholds(c, cfg)}

	accepted, err := c.Filter(ctx, fdr.BySpectrum(set.psms), run.th, cfg.FilterOptions())
	if err != nil {
		return nil, err
	}
	run.spectra = len(accepted)
	run.results, err = report.Evaluate(c, set.psms, run.th)
	if err != nil {
		return nil, err
	}
	run.duration = time.Since(start)
	return run, nil
}

// summary returns the JSON summary of a run
func (r *filterRun) summary(input string) *report.Summary {
	s := report.NewSummary(r.calc, r.results, r.th, r.cfg.TargetFDR)
	s.Version = progVersion
	s.Input = input
	s.Grouping = r.cfg.Grouping
	s.GroupThresholds = r.cfg.GroupThresholds
	s.Skipped = r.set.skipped
	return s
}

func (r *filterRun) acceptedResults() []report.PSMResult {
	var out []report.PSMResult
	for _, res := range r.results {
		if res.Accepted {
			out = append(out, res)
		}
	}
	return out
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &par)
	if err != nil {
		return err
	}
	if err := sanatizeParams(&par, args); err != nil {
		return err
	}
	run, err := filterPSMs(cmd.Context(), par.mzIdentMlFile, cfg)
	if err != nil {
		return err
	}
	return writeFilterOutputs(run, &par)
}

func writeFilterOutputs(run *filterRun, par *params) error {
	s := run.summary(par.mzIdentMlFile)
	log.WithFields(log.Fields{
		"accepted":  s.AcceptedTargets,
		"decoys":    s.AcceptedDecoys,
		"spectra":   run.spectra,
		"pooledFDR": s.PooledFDR,
		"retained":  acceptedFraction(s),
	}).Info("accepted PSMs")

	if par.debug || par.verbose {
		if err := run.calc.Print(os.Stderr, run.th); err != nil {
			return err
		}
	}
	if err := debugLogNodes(os.Stderr, run.calc, par.debugNodes); err != nil {
		return err
	}

	results := run.results
	if par.acceptedOnly {
		results = run.acceptedResults()
	}
	if err := writeTo(par.outputFile, func(w io.Writer) error {
		return report.WritePSMs(w, results)
	}); err != nil {
		return err
	}
	if par.summaryFile != "" {
		if err := writeTo(par.summaryFile, func(w io.Writer) error {
			return report.WriteSummary(w, s)
		}); err != nil {
			return err
		}
	}
	if par.histFile != "" {
		if err := writeTo(par.histFile, run.calc.DumpHistograms); err != nil {
			return err
		}
	}
	if par.dbFile != "" {
		if err := writeDB(par.dbFile, s, run); err != nil {
			return err
		}
	}
	if par.metricsFile != "" {
		m := metrics.New()
		m.Observe(run.calc, run.results, run.th, run.set.skipped, run.duration)
		if err := m.WriteTextfile(par.metricsFile); err != nil {
			return err
		}
	}
	return nil
}

func writeDB(path string, s *report.Summary, run *filterRun) error {
	w, err := report.NewDBWriter(path)
	if err != nil {
		return err
	}
	runID, err := w.WriteRun(s, run.calc, run.results)
	if err != nil {
		w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"db": path, "run": runID}).Info("results stored")
	return nil
}

func runHist(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &par)
	if err != nil {
		return err
	}
	if err := sanatizeParams(&par, args); err != nil {
		return err
	}
	set, err := readPSMs(par.mzIdentMlFile, cfg)
	if err != nil {
		return err
	}
	c, err := estimate(cfg, set.psms)
	if err != nil {
		return err
	}
	if err := debugLogNodes(os.Stderr, c, par.debugNodes); err != nil {
		return err
	}
	return writeTo(par.histOutFile, c.DumpHistograms)
}

// acceptedFraction is the fraction of target PSMs that is accepted
func acceptedFraction(s *report.Summary) float64 {
	if s.Targets == 0 {
		return 0
	}
	return float64(s.AcceptedTargets) / float64(s.Targets)
}
