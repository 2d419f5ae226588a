// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/524D/mzpep/internal/config"
	"github.com/524D/mzpep/internal/inputmap"
	"github.com/524D/mzpep/internal/mzidentml"
	"github.com/524D/mzpep/internal/psmcache"
	"github.com/524D/mzpep/internal/psmimport"
	"github.com/524D/mzpep/internal/validation"
)

// Program name and version, stored in the JSON report
const progName = "mzPEP"

var progVersion = `Unknown`

// Format of output, if it ever changes we should still be able to parse
// output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	configFile  string        // YAML scoring configuration
	output      string        // JSON report
	seriesDir   string        // directory for the score series of each engine
	cacheDir    string        // directory of the parsed match cache
	noCache     bool          // don't read or write the match cache
	metricsFile string        // Prometheus text file with import metrics
	threads     int           // import workers, 0 means one per CPU
	timeout     time.Duration // maximum duration of the import
	fdr         float64       // requested FDR
	maxPEP      float64       // PEP threshold for validation
	maxErrors   int           // failed matches tolerated, -1 means no limit
	minDecoys   int           // minimum number of decoys in a bin
	debugRange  string        // print the points in this score index range
	verbosity   int           // Verbosity of progress messages (infoDefault...)
	debug       bool          // Add score series to the report (environment variable MZPEP_DEBUG=1)
	args        []string      // mzIdentML files
	changed     func(name string) bool
}

var (
	ErrRangeSpec  = errors.New("invalid range specified")
	ErrNoAdvocate = errors.New("no configured search engine found")
	ErrNoScore    = errors.New("no identification carries the configured score")
)

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

// readMatches converts the identifications of one mzIdentML file into
// matches. The first analysis software that is configured decides which
// score is used.
func readMatches(fileName string, cfg *config.Config) ([]psmimport.Match, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	mzIdentML, err := mzidentml.Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}

	var (
		id  inputmap.AdvocateID
		adv *config.Advocate
		ok  bool
	)
	software := mzIdentML.Software()
	for _, s := range software {
		if id, adv, ok = cfg.Match(s); ok {
			break
		}
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w (software: %s)", fileName, ErrNoAdvocate,
			strings.Join(software, ", "))
	}

	byKey := make(map[string]int)
	var matches []psmimport.Match
	for i := 0; i < mzIdentML.NumIdents(); i++ {
		ident, err := mzIdentML.Ident(i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fileName, err)
		}
		score, ok := ident.Score(adv.Score.Key)
		if !ok {
			continue
		}
		spectra := ident.SpectraFile
		if spectra == "" {
			spectra = filepath.Base(fileName)
		}
		a := psmimport.Assumption{
			Advocate: id,
			Rank:     max(ident.Rank, 1),
			Sequence: ident.PepSeq,
			Score:    score * adv.Score.Sign(),
			Decoy:    ident.IsDecoy,
		}
		for _, sec := range adv.Secondary {
			if v, ok := ident.Score(sec.Key); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
				if a.Secondary == nil {
					a.Secondary = make(map[int]float64)
				}
				a.Secondary[sec.Kind] = v * sec.Sign()
			}
		}
		key := spectra + "|" + ident.SpecID
		j, seen := byKey[key]
		if !seen {
			j = len(matches)
			byKey[key] = j
			matches = append(matches, psmimport.Match{Key: key, File: spectra, SpectrumID: ident.SpecID})
		}
		matches[j].Assumptions = append(matches[j].Assumptions, a)
	}
	if len(matches) == 0 && mzIdentML.NumIdents() > 0 {
		return nil, fmt.Errorf("%s: %w %s", fileName, ErrNoScore, adv.Score.Key)
	}
	return matches, nil
}

// loadMatches reads all files in parallel, using the cache when possible,
// and merges the matches of different files for the same spectrum
func loadMatches(ctx context.Context, files []string, cfg *config.Config,
	cache *psmcache.Cache, threads int) (psmimport.Matches, error) {
	perFile := make([][]psmimport.Match, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(threads, 1))
	for i, fileName := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			key, err := psmcache.KeyFor(fileName, cfg.Fingerprint())
			if err != nil {
				return err
			}
			if cache != nil {
				matches, hit, err := cache.Get(key)
				if err != nil {
					slog.Warn("ignoring cache entry", "file", fileName, "error", err)
				} else if hit {
					perFile[i] = matches
					return nil
				}
			}
			matches, err := readMatches(fileName, cfg)
			if err != nil {
				return err
			}
			perFile[i] = matches
			if err := cache.Put(key, fileName, matches); err != nil {
				slog.Warn("cache not updated", "file", fileName, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := psmimport.Matches{}
	for _, matches := range perFile {
		for i := range matches {
			m := &matches[i]
			if prev, ok := merged[m.Key]; ok {
				prev.Assumptions = append(prev.Assumptions, m.Assumptions...)
				continue
			}
			cp := *m
			cp.Assumptions = append([]psmimport.Assumption(nil), m.Assumptions...)
			merged[m.Key] = &cp
		}
	}
	return merged, nil
}

// stderrProgress prints the percentage done when it changes
type stderrProgress struct {
	label   string
	max     atomic.Int64
	n       atomic.Int64
	percent atomic.Int64
}

func (p *stderrProgress) SetMax(n int) {
	p.max.Store(int64(n))
	p.n.Store(0)
	p.percent.Store(-1)
}

func (p *stderrProgress) Increment() {
	n := p.n.Add(1)
	m := p.max.Load()
	if m <= 0 {
		return
	}
	pct := 100 * n / m
	if old := p.percent.Load(); pct > old && p.percent.CompareAndSwap(old, pct) {
		fmt.Fprintf(os.Stderr, "\r%s: %d%%", p.label, pct)
	}
}

func (p *stderrProgress) SetIndeterminate(indeterminate bool) {
	if indeterminate && p.max.Load() > 0 {
		fmt.Fprintln(os.Stderr)
	}
}

// applyFlags overrides configuration values with flags that were set
func applyFlags(cfg *config.Config, par *params) error {
	if par.changed("threads") {
		cfg.Threads = par.threads
	}
	if par.changed("timeout") {
		cfg.Timeout = par.timeout
	}
	if par.changed("fdr") {
		cfg.FDR = par.fdr
	}
	if par.changed("pep") {
		cfg.MaxPEP = par.maxPEP
	}
	if par.changed("max-errors") {
		cfg.MaxErrors = par.maxErrors
	}
	if par.changed("min-decoys") {
		cfg.MinDecoysInBin = par.minDecoys
	}
	return cfg.Validate()
}

// sanatizeParams fills missing filenames
func sanatizeParams(par *params) {
	if par.output == "" {
		first := par.args[0]
		par.output = strings.TrimSuffix(first, filepath.Ext(first)) + "-pep.json"
	}
}

var tracer = otel.Tracer("github.com/524D/mzpep")

func run(ctx context.Context, par *params) error {
	ctx, span := tracer.Start(ctx, "mzpep.run",
		trace.WithAttributes(attribute.Int("mzpep.files", len(par.args))))
	defer span.End()

	cfg := config.Default()
	if par.configFile != "" {
		var err error
		if cfg, err = config.Load(par.configFile); err != nil {
			return err
		}
	}
	if err := applyFlags(cfg, par); err != nil {
		return err
	}
	sanatizeParams(par)

	level := slog.LevelWarn
	switch par.verbosity {
	case infoSilent:
		level = slog.LevelError
	case infoVerbose:
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cache *psmcache.Cache
	if !par.noCache {
		var err error
		if cache, err = psmcache.Open(par.cacheDir); err != nil {
			log.Printf("Match cache disabled: %v", err)
			cache = nil
		}
	}

	t := time.Now()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Reading identifications from %d file(s): ", len(par.args))
	}
	src, err := loadMatches(ctx, par.args, cfg, cache, cfg.Threads)
	if err != nil {
		return err
	}
	keys := src.Keys()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%d spectra, %s\n", len(keys), time.Since(t))
		t = time.Now()
	}

	reg := prometheus.NewRegistry()
	agg := inputmap.New()
	agg.MinDecoysInBin = cfg.MinDecoysInBin
	agg.Logger = logger
	validator := validation.New()
	sink := &psmimport.Collector{MaxErrors: cfg.MaxErrors, Logger: logger}
	driver := &psmimport.Driver{
		Threads:        cfg.Threads,
		Timeout:        cfg.Timeout,
		Validator:      validator,
		Sink:           sink,
		Metrics:        psmimport.NewMetrics(reg),
		Logger:         logger,
		MinDecoysInBin: cfg.MinDecoysInBinFor,
	}
	var progress *stderrProgress
	if par.verbosity == infoVerbose {
		progress = &stderrProgress{label: "Importing matches"}
		driver.Progress = progress
	}
	if err := driver.Run(ctx, keys, src, agg); err != nil {
		return err
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Import: %s\n", time.Since(t))
		t = time.Now()
	}

	var estProgress inputmap.Progress
	if progress != nil {
		estProgress = &stderrProgress{label: "Estimating probabilities"}
	}
	if err := agg.EstimateProbabilities(ctx, estProgress); err != nil {
		return err
	}
	summary, err := validator.Validate(agg, cfg.MaxPEP)
	if err != nil {
		return err
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Estimation and validation: %s\n", time.Since(t))
	}

	rep := buildReport(agg, cfg, summary, len(sink.Errors()), par)
	if err := writeReport(rep, par.output); err != nil {
		return err
	}
	if par.seriesDir != "" {
		if err := writeSeries(agg, par.seriesDir); err != nil {
			return err
		}
	}
	if par.metricsFile != "" {
		if err := prometheus.WriteToTextfile(par.metricsFile, reg); err != nil {
			return err
		}
	}
	if par.verbosity != infoSilent {
		warnSuspicious(rep)
	}
	debugLogPoints(agg, par)
	return nil
}

func warnSuspicious(rep report) {
	warn := color.New(color.FgYellow, color.Bold)
	for _, a := range rep.Advocates {
		if a.Suspicious {
			warn.Fprintf(os.Stderr, "Warning: ")
			fmt.Fprintf(os.Stderr,
				"%s: too few decoys (bin size %d) or requested FDR %g not reached (min FDR %g); PEP estimates may be unreliable\n",
				a.Name, a.NMax, rep.FDR, a.MinFDR)
		}
	}
	if rep.FailedMatches > 0 {
		warn.Fprintf(os.Stderr, "Warning: ")
		fmt.Fprintf(os.Stderr, "%d match(es) could not be imported\n", rep.FailedMatches)
	}
}

func newRootCmd() *cobra.Command {
	var par params
	var verbose, quiet bool
	cmd := &cobra.Command{
		Use:   "mzpep [flags] <mzIdentML file>...",
		Short: "Posterior error probabilities for search engine results",
		Long: `This program estimates the posterior error probability (PEP) and FDR of
peptide-spectrum matches from the target/decoy scores in mzIdentML files.
Files of different search engines for the same spectra are combined, and
the contribution of each engine to the validated matches is reported.

ENVIRONMENT VARIABLES:
    When environment variable MZPEP_DEBUG=1, the score series of each search
    engine is added to the JSON report.

USAGE EXAMPLES:
  mzpep yeast-comet.mzid yeast-tandem.mzid
    Estimate PEPs for both search engines, validate at 1% PEP and write the
    report to yeast-comet-pep.json.`,
		Args:          cobra.MinimumNArgs(1),
		Version:       progVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				par.verbosity = infoVerbose
			}
			if quiet {
				par.verbosity = infoSilent
			}
			par.args = args
			par.changed = cmd.Flags().Changed
			// Check if debug output should be enabled
			par.debug = os.Getenv("MZPEP_DEBUG") == `1`
			return run(cmd.Context(), &par)
		},
	}
	f := cmd.Flags()
	f.StringVar(&par.configFile, "config", "", "YAML `file` with the scoring configuration")
	f.StringVarP(&par.output, "output", "o", "", "`filename` of the JSON report (default <first file>-pep.json)")
	f.StringVar(&par.seriesDir, "series", "", "`directory` where the score series of each engine is written")
	f.StringVar(&par.cacheDir, "cache", "", "match cache `directory` (default in the user cache directory)")
	f.BoolVar(&par.noCache, "no-cache", false, "don't use the match cache")
	f.StringVar(&par.metricsFile, "metrics", "", "write import metrics in Prometheus text format to `file`")
	f.IntVar(&par.threads, "threads", 0, "number of import workers (0: one per CPU)")
	f.DurationVar(&par.timeout, "timeout", 72*time.Hour, "maximum duration of the import")
	f.Float64Var(&par.fdr, "fdr", 0.01, "requested FDR")
	f.Float64Var(&par.maxPEP, "pep", 0.01, "matches with a PEP up to this value are validated")
	f.IntVar(&par.maxErrors, "max-errors", -1, "abort after this many failed matches (-1: never)")
	f.IntVar(&par.minDecoys, "min-decoys", 2, "minimum number of decoys in a bin")
	f.StringVar(&par.debugRange, "debug", "", "print the points of each engine in score index `range` e.g. 0:20")
	f.BoolVar(&verbose, "verbose", false, "Print more verbose progress information")
	f.BoolVar(&quiet, "quiet", false, "Don't print any output except for errors")
	return cmd
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		log.Fatalf("%s: %v", progName, err)
	}
}
