// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/524D/mzrescore/internal/fdr"
)

// Program name and version, written to the JSON report
const progName = "mzRescore"

var progVersion = `Unknown`

// Format of output, if it ever changes we should still be able to parse
// output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// PEP estimation methods
const (
	pepIsotonic = "isotonic"
	pepIspline  = "ispline"
	pepLogistic = "logistic"
	pepQValue   = "qvalue"
)

// Command line parameters
type params struct {
	inputFilename   *string
	outFilename     *string // Filename where the JSON report will be written
	resultsFilename *string // Filename of the tab delimited per-PSM results
	configFilename  *string // YAML file with training and calibration settings
	folds           *int
	maxIter         *int
	trainFDR        *float64 // q-value threshold for selecting positive training examples
	testFDR         *float64 // q-value threshold for reporting
	cpos            *float64 // 0 means select by cross validation
	cneg            *float64 // 0 means select by cross validation
	seed            *int64
	tdc             *bool   // keep only the best PSM per spectrum
	qvalue          *string // q-value method, empty selects from tdc
	pep             *string
	lambdaRange     *string // range of lambda values for pi0 estimation
	numBoot         *int
	intervals       *int
	noTerminate     *bool
	verbosity       int      // Verbosity of progress messages (infoDefault...)
	args            []string // Additional values passed on the command line
	debug           bool     // Enable debug info (environment variable MZRESCORE_DEBUG=1)
}

// ErrRangeSpec is returned when the lower bound of a range exceeds the upper
var ErrRangeSpec = errors.New("invalid range specified")

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

func newLogger(verbosity int) *zap.Logger {
	level := zapcore.InfoLevel
	switch verbosity {
	case infoSilent:
		level = zapcore.ErrorLevel
	case infoVerbose:
		level = zapcore.DebugLevel
	}
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(config),
		zapcore.Lock(os.Stderr), level)
	return zap.New(core, zap.AddCaller())
}

func usageError(exeName, format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\nType %s --help for usage\n", exeName)
	os.Exit(2)
}

// sanatizeParams does some checks on parameters, fills missing
// filenames if possible, and merges the configuration file with the
// command line into the settings for this run
func sanatizeParams(par *params) settings {
	exeName := filepath.Base(os.Args[0])

	if len(par.args) != 1 {
		usageError(exeName, "Last argument must be name of mzIdentML or pin file.")
	}

	input := par.args[0]
	par.inputFilename = &input
	var extension = filepath.Ext(input)
	var startName = input[0 : len(input)-len(extension)]
	if *par.outFilename == "" {
		*par.outFilename = startName + "-rescore.json"
	}

	set := defaultSettings()
	if *par.configFilename != "" {
		err := set.load(*par.configFilename)
		if err != nil {
			usageError(exeName, "Invalid configuration file: %v", err)
		}
	}

	changed := flag.CommandLine.Changed
	if changed("folds") {
		set.Train.Folds = *par.folds
	}
	if changed("maxiter") {
		set.Train.MaxIter = *par.maxIter
	}
	if changed("trainFDR") {
		set.Train.TrainFDR = *par.trainFDR
	}
	if changed("testFDR") {
		set.Train.TestFDR = *par.testFDR
	}
	if changed("cpos") {
		set.Train.Cpos = *par.cpos
	}
	if changed("cneg") {
		set.Train.Cneg = *par.cneg
	}
	if changed("seed") {
		set.Train.Seed = *par.seed
	}
	if changed("tdc") {
		set.TDC = *par.tdc
	}
	if changed("qvalue") {
		set.QValue = *par.qvalue
	}
	if changed("pep") {
		set.PEP = *par.pep
	}
	if changed("num-boot") {
		set.FDR.NumBoot = *par.numBoot
	}
	if changed("intervals") {
		set.FDR.Intervals = *par.intervals
	}
	if changed("no-terminate") {
		set.FDR.NoTerminate = *par.noTerminate
	}
	if changed("lambda-range") {
		var err error
		set.FDR.MinLambda, set.FDR.MaxLambda, err = parseFloat64Range(*par.lambdaRange,
			0, 1)
		if err != nil {
			usageError(exeName, "Invalid lambda range.")
		}
	}

	if set.Train.Folds < 2 {
		usageError(exeName, "Number of folds must be at least 2.")
	}
	if set.Train.MaxIter < 1 {
		usageError(exeName, "Number of iterations must be at least 1.")
	}
	if !(set.Train.TrainFDR > 0 && set.Train.TrainFDR < 1) ||
		!(set.Train.TestFDR > 0 && set.Train.TestFDR < 1) {
		usageError(exeName, "FDR thresholds must be between 0 and 1.")
	}
	if err := set.SVM.Validate(); err != nil {
		usageError(exeName, "Invalid SVM settings: %v", err)
	}

	switch strings.ToLower(set.PEP) {
	case pepIsotonic, pepIspline, pepLogistic, pepQValue:
		set.PEP = strings.ToLower(set.PEP)
	default:
		usageError(exeName, "Unknown PEP method %q.", set.PEP)
	}

	if set.QValue == "" {
		// Mix-max needs separate target and decoy searches, after
		// competition plain counting applies
		set.FDR.Mode = fdr.ModeMixMax
		if set.TDC {
			set.FDR.Mode = fdr.ModeTDC
		}
	} else {
		mode, err := fdr.ParseMode(set.QValue)
		if err != nil {
			usageError(exeName, "%v", err)
		}
		set.FDR.Mode = mode
	}
	return set
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <mzIdentML or pin file>

  This program rescores peptide-spectrum matches (PSMs) from a search
  against a target and a decoy database. A linear support vector machine
  is trained semi-supervised on the PSM features, and the new scores are
  converted to q-values and posterior error probabilities (PEP).

OPTIONS:
`, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
INPUT:
    Files with extension .mzid or .mzIdentML are read as mzIdentML. The
    numeric scores of each identification are used as features, together
    with rank, charge, peptide length and precursor mass error.
    Any other file is read as tab delimited pin file, with columns
    SpecId, Label (1 for target, -1 for decoy), ScanNr, the features,
    Peptide and one or more protein columns.

CONFIGURATION FILE:
    A YAML file can set the SVM, training and calibration parameters, e.g.
      svm:
        lambda: 1.0
      train:
        folds: 3
        train_fdr: 0.01
      fdr:
        num_boot: 200
      pep: ispline
    Options given on the command line override the configuration file.

ENVIRONMENT VARIABLES:
    When environment variable MZRESCORE_DEBUG=1, extra information is added to the
    JSON file that can help checking the performance of %s.

USAGE EXAMPLES:
  %s yeast.pin
    Rescore the PSMs in yeast.pin and write the report to yeast-rescore.json.
    Default parameters are used.

  %s --tdc=false --pep logistic --results yeast.tsv yeast.mzid
    Idem for the identifications in yeast.mzid, without target-decoy competition
    (q-values by mix-max) and with PEPs from logistic regression. The per-PSM
    results are also written to yeast.tsv.
`, exeName, exeName, exeName)
}

func main() {
	var par params

	par.outFilename = flag.StringP("output", "o",
		"",
		"`filename` of the JSON report")
	par.resultsFilename = flag.String("results",
		"",
		"`filename` for tab delimited per-PSM results. Default is none")
	par.configFilename = flag.String("config",
		"",
		"YAML configuration `filename`")
	par.folds = flag.Int("folds", defaultFolds,
		`number of cross validation folds. PSMs of the same spectrum
are always in the same fold.`)
	par.maxIter = flag.Int("maxiter", defaultMaxIter,
		`number of training iterations`)
	par.trainFDR = flag.Float64("trainFDR", defaultTrainFDR,
		`q-value threshold for selecting positive training examples`)
	par.testFDR = flag.Float64("testFDR", defaultTestFDR,
		`q-value threshold for reporting and for normalizing the scores
of the cross validation folds`)
	par.cpos = flag.Float64("cpos", 0,
		`cost of misclassified positive examples.
If 0 (default), it is selected from 10, 1 and 0.1 for each fold.`)
	par.cneg = flag.Float64("cneg", 0,
		`cost of misclassified negative examples.
If 0 (default), it is selected from 1, 3 and 10 times cpos for each fold.`)
	par.seed = flag.Int64("seed", defaultSeed,
		`seed of the random generator used for fold assignment and bootstrap`)
	par.tdc = flag.Bool("tdc", true,
		`keep only the best scoring PSM of each spectrum (target-decoy competition)`)
	par.qvalue = flag.String("qvalue", "",
		"q-value `method`"+`: mix-max or tdc. If empty, tdc is used with
target-decoy competition and mix-max otherwise.`)
	par.pep = flag.String("pep", pepIsotonic,
		"PEP estimation `method`"+`:
    isotonic: isotonic regression of the decoy rate
    ispline: I-spline regression of the decoy rate
    logistic: binned logistic regression with a smoothing spline
    qvalue: from the q-values of the targets`)
	par.lambdaRange = flag.String("lambda-range", "0:0.5",
		"`range` of lambda values for pi0 estimation")
	par.numBoot = flag.Int("num-boot", fdr.DefaultNumBoot,
		`number of bootstrap samples for pi0 estimation`)
	par.intervals = flag.Int("intervals", fdr.DefaultIntervals,
		`number of score bins for logistic PEP estimation`)
	par.noTerminate = flag.Bool("no-terminate", false,
		`continue when target and decoy scores are poorly separated:
pi0 is set to 1 and scores are jittered for binning when needed`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
	flag.CommandLine.SortFlags = false
	flag.Usage = usage
	flag.Parse()
	if *version {
		if progVersion == `Unknown` {
			progVersion = `Unknown
Please build this program with script 'build.sh' so that the git version is shown here.`
		}
		fmt.Fprintf(os.Stderr, "%s version %s\n", progName, progVersion)
		return
	}
	if *verbose {
		par.verbosity = infoVerbose
	}
	if *quiet {
		par.verbosity = infoSilent
	}
	par.args = flag.Args()
	// Check if debug output should be enabled
	par.debug = os.Getenv("MZRESCORE_DEBUG") == `1`

	set := sanatizeParams(&par)
	logger := newLogger(par.verbosity)
	defer logger.Sync()

	if err := rescore(par, set, logger); err != nil {
		logger.Sugar().Fatalf("%s: %v", progName, err)
	}
}
