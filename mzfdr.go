// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/524D/mzfdr/internal/config"
	"github.com/524D/mzfdr/internal/fdr"
)

// Program name and version, reported by the version command and stored with
// every run
const progName = "mzFDR"

var progVersion = `Unknown`

// Highest charge state accepted on the command line
const maxChargeState = 100

var ErrRangeSpec = errors.New("invalid range specified")

// Command line parameters. Parameters that are also in the configuration
// only override it when given on the command line.
type params struct {
	configFile      string
	mzIdentMlFile   string
	outputFile      string
	histOutFile     string
	dbFile          string
	summaryFile     string
	histFile        string
	metricsFile     string
	targetFDR       float64
	dims            string
	bins            int
	minObservations int
	smoothing       int
	groupThresholds bool
	grouping        string
	charge          string
	acceptedOnly    bool
	verbose         bool
	quiet           bool
	debugNodes      string // Print bins of these nodes
	debug           bool   // Enable debug info (environment variable MZFDR_DEBUG=1)
}

var par params

var rootCmd = &cobra.Command{
	Use:   "mzfdr",
	Short: "mzFDR - local false discovery rates for peptide-spectrum matches",
	Long: `mzFDR estimates the local false discovery rate of every peptide-spectrum
match (PSM) in an mzIdentML file from the distribution of target and decoy
matches over one or more scores.

PSMs are counted in histograms per charge state and PSM group. Sparse
histograms borrow the target/decoy ratio of their charge state or of all PSMs.
A single local FDR threshold (or one per group) is chosen so that the
accepted PSMs have the requested FDR.

ENVIRONMENT VARIABLES:
  MZFDR_DEBUG=1 enables debug logging and prints the histogram tree.
  MZFDR_TARGET_FDR, MZFDR_MIN_OBSERVATIONS, MZFDR_SMOOTHING_DEGREE,
  MZFDR_GROUPING, MZFDR_WORKERS, MZFDR_LOG_LEVEL and MZFDR_LOG_FORMAT override
  the configuration file.`,
	SilenceUsage: true,
}

var filterCmd = &cobra.Command{
	Use:   "filter [mzIdentML file]",
	Short: "Compute local FDRs and write the PSMs with their local FDR",
	Long: `Compute the local FDR of every PSM and the threshold that gives the target FDR.

Examples:
  # Filter at 1% FDR on the MS-GF+ spectral e-value (default settings)
  mzfdr filter yeast.mzid

  # Two scores, separate thresholds for modified and unmodified peptides
  mzfdr filter --dims 'MS-GF:RawScore(0:300)MS-GF:EValue@neglog10(0:20)' \
      --grouping modified --group-thresholds --fdr 0.05 yeast.mzid`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilter,
}

var histCmd = &cobra.Command{
	Use:   "hist [mzIdentML file]",
	Short: "Write the raw and smoothed histograms of every node",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHist,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show software version",
	Run: func(cmd *cobra.Command, args []string) {
		version := progVersion
		if version == `Unknown` {
			version = `Unknown
Build with -ldflags "-X main.progVersion=$(git describe --tags)" to show the git version here.`
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", progName, version)
	},
}

func init() {
	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(histCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&par.configFile, "config", "", "YAML configuration `file`")
	pf.StringVar(&par.mzIdentMlFile, "mzid", "", "mzIdentML `file` (or pass it as argument)")
	pf.Float64Var(&par.targetFDR, "fdr", 0.01, "target FDR of the accepted PSMs")
	pf.StringVar(&par.dims, "dims", "",
		"score dimensions. Format: <CVterm|scorename>[@transform]([<min>]:[<max>])...\n"+
			"transform is none, log10 or neglog10 (for e-values)")
	pf.IntVar(&par.bins, "bins", 0, "number of bins per score dimension")
	pf.IntVar(&par.minObservations, "min-obs", 100, "minimum number of PSMs for a histogram to estimate its own local FDR")
	pf.IntVar(&par.smoothing, "smooth", 2, "number of smoothing passes (0: no smoothing)")
	pf.BoolVar(&par.groupThresholds, "group-thresholds", false, "compute a separate threshold for every PSM group")
	pf.StringVar(&par.grouping, "grouping", config.GroupingNone,
		"PSM groups: none, modified or missed-cleavages")
	pf.StringVar(&par.charge, "charge", "1:5", "charge `range` of the PSMs to use")
	pf.BoolVar(&par.verbose, "verbose", false, "print more verbose progress information")
	pf.BoolVar(&par.quiet, "quiet", false, "don't print any output except for errors")
	pf.StringVar(&par.debugNodes, "debug", "", "print debug output for the given comma separated `nodes`, e.g. Z2_all")

	filterCmd.Flags().StringVarP(&par.outputFile, "out", "o", "", "PSM table `file` (default <mzid>-fdr.tsv, - for stdout)")
	filterCmd.Flags().StringVar(&par.dbFile, "db", "", "write all results to this SQLite `file`")
	filterCmd.Flags().StringVar(&par.summaryFile, "summary", "", "write a JSON summary to this `file`")
	filterCmd.Flags().StringVar(&par.histFile, "hist", "", "write the histograms to this `file`")
	filterCmd.Flags().StringVar(&par.metricsFile, "metrics", "", "write Prometheus metrics to this textfile")
	filterCmd.Flags().BoolVar(&par.acceptedOnly, "accepted-only", false, "only write the accepted PSMs")

	histCmd.Flags().StringVarP(&par.histOutFile, "out", "o", "-", "histogram `file` (- for stdout)")
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// parseDimensions parses score dimensions like
// "MS-GF:RawScore(0:300)MS-GF:EValue@neglog10(0:20)". Each dimension gets
// bins bins.
func parseDimensions(dimStr string, bins int) ([]config.DimensionConfig, error) {
	var dims []config.DimensionConfig
	seen := make(map[string]bool)

	re := regexp.MustCompile(`([^\(]+)\(([^\)]*)\)`)
	matchedStringsList := re.FindAllStringSubmatch(dimStr, -1)
	for _, matchedStrings := range matchedStringsList {
		scoreName := strings.TrimSpace(matchedStrings[1])
		transform := string(fdr.TransformNone)
		if i := strings.LastIndex(scoreName, "@"); i >= 0 {
			transform = scoreName[i+1:]
			scoreName = scoreName[:i]
		}
		if seen[scoreName] {
			return nil, errors.New(scoreName + ` defined more than once.`)
		}
		seen[scoreName] = true
		minScore, maxScore, err := parseFloat64Range(matchedStrings[2],
			-math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return nil, fmt.Errorf("%w for score %s", err, scoreName)
		}
		if minScore == -math.MaxFloat64 || maxScore == math.MaxFloat64 {
			return nil, fmt.Errorf("%w: score %s needs both a minimum and a maximum", ErrRangeSpec, scoreName)
		}
		dims = append(dims, config.DimensionConfig{
			Score:     scoreName,
			Min:       minScore,
			Max:       maxScore,
			Bins:      bins,
			Transform: transform,
		})
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("no score dimensions in %q", dimStr)
	}
	return dims, nil
}

// defaultBins is used with --dims when --bins is not given
const defaultBins = 20

// loadConfig reads the configuration and applies the command line flags
// that were set
func loadConfig(cmd *cobra.Command, par *params) (*config.Config, error) {
	cfg, err := config.Load(par.configFile)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("fdr") {
		cfg.TargetFDR = par.targetFDR
	}
	if flags.Changed("min-obs") {
		cfg.MinObservations = par.minObservations
	}
	if flags.Changed("smooth") {
		cfg.SmoothingDegree = par.smoothing
	}
	if flags.Changed("group-thresholds") {
		cfg.GroupThresholds = par.groupThresholds
	}
	if flags.Changed("grouping") {
		cfg.Grouping = par.grouping
	}
	if flags.Changed("charge") {
		cfg.Charge.Min, cfg.Charge.Max, err = parseIntRange(par.charge, 1, maxChargeState)
		if err != nil {
			return nil, fmt.Errorf("invalid charge range %q: %w", par.charge, err)
		}
	}
	if flags.Changed("dims") {
		bins := par.bins
		if bins == 0 {
			bins = defaultBins
		}
		cfg.Dimensions, err = parseDimensions(par.dims, bins)
		if err != nil {
			return nil, err
		}
	} else if flags.Changed("bins") {
		for i := range cfg.Dimensions {
			cfg.Dimensions[i].Bins = par.bins
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ApplyLogging()
	if par.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if par.quiet {
		log.SetLevel(log.ErrorLevel)
	}
	// Check if debug output should be enabled
	par.debug = os.Getenv("MZFDR_DEBUG") == `1`
	if par.debug {
		log.SetLevel(log.DebugLevel)
	}
	return cfg, nil
}

// sanatizeParams determines the input file and fills missing output
// filenames
func sanatizeParams(par *params, args []string) error {
	if len(args) == 1 {
		if par.mzIdentMlFile != "" && par.mzIdentMlFile != args[0] {
			return errors.New("mzIdentML file specified both with --mzid and as argument")
		}
		par.mzIdentMlFile = args[0]
	}
	if par.mzIdentMlFile == "" {
		return errors.New("no mzIdentML file specified")
	}
	var extension = filepath.Ext(par.mzIdentMlFile)
	var startName = par.mzIdentMlFile[0 : len(par.mzIdentMlFile)-len(extension)]
	if par.outputFile == "" {
		par.outputFile = startName + "-fdr.tsv"
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
