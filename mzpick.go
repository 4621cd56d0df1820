// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"maps"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/524D/mzpick/internal/logging"
	"github.com/524D/mzpick/internal/mzml"
	"github.com/524D/mzpick/internal/peaklist"
	"github.com/524D/mzpick/internal/peakpicker"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Program name and version, appended to software list in mzML output
const progName = "mzPick"

var progVersion = `Unknown`

// CV parameters names
const cvPeakPicking = `MS:1000035`
const cvFTICRSpectrometer = `MS:1000079`
const cvOrbiTrapSpectrometer = `MS:1000484`

// Command line parameters
type params struct {
	mzMLFilename       *string
	mzMLPickedFilename *string
	peaksFilename      *string  // Filename for the list of picked peaks
	intensityType      *string  // peakheight or peakarea
	ms1Only            *bool    // Only pick MS1 spectra
	pickParams         paramMap // Generic key=value picker parameters
	acceptCentroid     *bool    // Also pick spectra that are already centroided
	specFilter         *string  // Range of spectra to pick
	minSpecIdx         int      // Lowest spectrum index to pick
	maxSpecIdx         int      // Highest spectrum index to pick
	verbosity          logging.Verbosity
	args               []string // Additional values passed on the command line
}

var ErrRangeSpec = errors.New("invalid range specified")

// ErrParamSpec means a -param value is not of the form key=value
var ErrParamSpec = errors.New("invalid parameter specified")

// Data processing steps to be added to mzML file
var mzPickProcessing = mzml.DataProcessing{
	ID: progName,
	ProcessingMeth: []mzml.ProcessingMethod{
		{
			Order:       0,
			SoftwareRef: progName,
			CvPar: []mzml.CVParam{
				{
					CvRef:     `MS`,
					Accession: cvPeakPicking,
					Name:      `peak picking`,
				},
			},
		},
	},
}

// paramMap collects repeated -param key=value flags
type paramMap map[string]string

func (m paramMap) String() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%s", k, m[k])
	}
	return b.String()
}

func (m paramMap) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == `` {
		return fmt.Errorf("%w: %q", ErrParamSpec, s)
	}
	m[k] = strings.TrimSpace(v)
	return nil
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

// pickerOptions merges the dedicated flags with the generic -param values,
// the latter take precedence
func pickerOptions(par params) (peakpicker.Options, error) {
	pp := map[string]string{
		peakpicker.ParamIntensityType: *par.intensityType,
		peakpicker.ParamMS1Only:       strconv.FormatBool(*par.ms1Only),
	}
	maps.Copy(pp, par.pickParams)
	return peakpicker.OptionsFromParams(pp)
}

// startPhase prints the name of a processing phase in verbose mode. The
// returned function prints the time it took.
func startPhase(par params, format string, a ...any) func() {
	if par.verbosity != logging.VerbosityVerbose {
		return func() {}
	}
	t := time.Now()
	fmt.Fprintf(os.Stderr, format, a...)
	return func() {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}
}

// stderrProgress reports the progress of peak picking in verbose mode
type stderrProgress struct {
	par   params
	total int
	done  int
	end   func()
}

func (p *stderrProgress) Begin(total int) {
	p.total = total
	p.done = 0
	p.end = startPhase(p.par, "Picking peaks in %d spectra: ", total)
}

func (p *stderrProgress) Advance() {
	p.done++
}

func (p *stderrProgress) End() {
	if p.end != nil {
		p.end()
	}
}

// checkInstrument warns if the data doesn't come from a high resolution
// instrument
func checkInstrument(mzML *mzml.MzML, logger *zap.Logger) {
	instruments, err := mzML.MSInstruments()
	if err != nil {
		logger.Warn("Can't determine instrument type", zap.Error(err))
		return
	}
	for _, instr := range instruments {
		switch instr {
		case cvFTICRSpectrometer, cvOrbiTrapSpectrometer:
			return
		}
	}
	logger.Warn("Peak picking is intended for high resolution FTICR or Orbitrap data",
		zap.Strings("analyzers", instruments))
}

// readExperiment collects the spectra that must be picked. Spectra outside
// the spectrum filter, and centroided spectra (unless accepted), are not
// part of the experiment and are written back unchanged.
func readExperiment(mzML *mzml.MzML, par params, logger *zap.Logger) (peakpicker.Experiment, error) {
	instruments, _ := mzML.MSInstruments()
	exp := peakpicker.Experiment{
		Settings: peakpicker.Settings{
			Name: mzML.RunID(),
			Meta: map[string]string{
				"file":        filepath.Base(*par.mzMLFilename),
				"instruments": strings.Join(instruments, ","),
			},
		},
	}
	warnCentroid := true
	numSpecs := mzML.NumSpecs()
	minIdx := max(par.minSpecIdx, 0)
	maxIdx := min(par.maxSpecIdx, numSpecs-1)
	for i := minIdx; i <= maxIdx; i++ {
		centroid, err := mzML.Centroid(i)
		if err != nil {
			return exp, err
		}
		if centroid && !*par.acceptCentroid {
			if warnCentroid {
				logger.Warn("Input contains centroided spectra, these are not picked",
					zap.Int("spectrum", i))
				warnCentroid = false
			}
			continue
		}
		s, err := readSpectrum(mzML, i)
		if err != nil {
			return exp, err
		}
		if centroid {
			s.Type = peakpicker.TypeCentroid
		}
		exp.Spectra = append(exp.Spectra, s)
	}
	return exp, nil
}

func readSpectrum(mzML *mzml.MzML, i int) (peakpicker.Spectrum, error) {
	s := peakpicker.Spectrum{Index: i}
	var err error
	if s.ID, err = mzML.ScanID(i); err != nil {
		return s, err
	}
	if s.MSLevel, err = mzML.MSLevel(i); err != nil {
		return s, fmt.Errorf("spectrum %s: ms level: %w", s.ID, err)
	}
	if s.RetentionTime, err = mzML.RetentionTime(i); err != nil {
		return s, fmt.Errorf("spectrum %s: retention time: %w", s.ID, err)
	}
	if s.Meta, err = mzML.SpectrumParams(i); err != nil {
		return s, err
	}
	profile, err := mzML.Profile(i)
	if err != nil {
		return s, err
	}
	if profile {
		s.Type = peakpicker.TypeProfile
	}
	peaks, err := mzML.ReadScan(i)
	if err != nil {
		return s, err
	}
	s.Peaks = make([]peakpicker.Peak, len(peaks))
	for j, p := range peaks {
		s.Peaks[j] = peakpicker.Peak{Mz: p.Mz, Intens: p.Intens}
	}
	return s, nil
}

// pickedSpectra returns the spectra of out that were actually picked,
// i.e. not passed through because of the ms1_only option
func pickedSpectra(out peakpicker.Experiment, opts peakpicker.Options) []peakpicker.Spectrum {
	if !opts.MS1Only {
		return out.Spectra
	}
	var picked []peakpicker.Spectrum
	for _, s := range out.Spectra {
		if s.MSLevel == 1 {
			picked = append(picked, s)
		}
	}
	return picked
}

// updateMzML replaces the peaks of picked spectra and marks them centroided
func updateMzML(mzML *mzml.MzML, picked []peakpicker.Spectrum) error {
	for _, s := range picked {
		peaks := make([]mzml.Peak, len(s.Peaks))
		for j, p := range s.Peaks {
			peaks[j] = mzml.Peak{Mz: p.Mz, Intens: p.Intens}
		}
		if err := mzML.UpdateScan(s.Index, peaks, true, true); err != nil {
			return fmt.Errorf("spectrum %s: %w", s.ID, err)
		}
		if err := mzML.SetCentroid(s.Index); err != nil {
			return fmt.Errorf("spectrum %s: %w", s.ID, err)
		}
	}
	mzML.AppendSoftwareInfo(progName, progVersion)
	mzML.AppendDataProcessing(mzPickProcessing)
	return nil
}

func logSummary(in peakpicker.Experiment, picked []peakpicker.Spectrum, logger *zap.Logger) {
	if len(picked) == 0 {
		logger.Info("No spectra picked", zap.Int("spectra", len(in.Spectra)))
		return
	}
	counts := make([]float64, len(picked))
	samples := 0
	for i, s := range picked {
		counts[i] = float64(len(s.Peaks))
	}
	for _, s := range in.Spectra {
		samples += len(s.Peaks)
	}
	mean, std := stat.MeanStdDev(counts, nil)
	if len(counts) < 2 {
		std = 0
	}
	logger.Info("Picked peaks",
		zap.Int("spectra", len(picked)),
		zap.Int("samples", samples),
		zap.Float64("peaksPerSpectrum", mean),
		zap.Float64("peaksPerSpectrumStdDev", std))
}

func writePeakList(filename string, picked []peakpicker.Spectrum, logger *zap.Logger) error {
	format, err := peaklist.FormatFromFilename(filename)
	if err != nil {
		return err
	}
	rows := peaklist.Rows(peakpicker.Experiment{Spectra: picked})
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err = peaklist.Write(f, format, rows); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	sum := peaklist.Summarize(rows)
	logger.Debug("Peak list written",
		zap.String("file", filename),
		zap.String("format", string(format)),
		zap.Int("peaks", sum.Peaks),
		zap.Int("spectra", sum.Spectra),
		zap.Float64("totalIntensity", sum.TotalIntensity),
		zap.Float64("minMz", sum.MinMz),
		zap.Float64("maxMz", sum.MaxMz))
	return nil
}

func writePickedMzML(mzML *mzml.MzML, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err = mzML.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// run reads the mzML file, picks the peaks of all selected spectra and
// writes the results
func run(par params, logger *zap.Logger) error {
	opts, err := pickerOptions(par)
	if err != nil {
		return err
	}

	done := startPhase(par, "Reading MS data from %s: ", *par.mzMLFilename)
	mzFile, err := os.Open(*par.mzMLFilename)
	if err != nil {
		return err
	}
	defer mzFile.Close()
	mzML, err := mzml.Read(mzFile)
	if err != nil {
		return fmt.Errorf("mzml.Read %s: %w", *par.mzMLFilename, err)
	}
	checkInstrument(&mzML, logger)
	in, err := readExperiment(&mzML, par, logger)
	if err != nil {
		return err
	}
	done()

	picker := peakpicker.New(opts,
		peakpicker.WithProgress(&stderrProgress{par: par}),
		peakpicker.WithLogger(logger))
	out := picker.PickExperiment(in)
	picked := pickedSpectra(out, opts)
	debugLogSpecs(in, out, mzML.NumSpecs())
	if par.verbosity != logging.VerbositySilent {
		logSummary(in, picked, logger)
	}

	if *par.peaksFilename != `` {
		done = startPhase(par, "Writing peak list: ")
		if err = writePeakList(*par.peaksFilename, picked, logger); err != nil {
			return err
		}
		done()
	}

	done = startPhase(par, "Writing MS data: ")
	if err = updateMzML(&mzML, picked); err != nil {
		return err
	}
	if err = writePickedMzML(&mzML, *par.mzMLPickedFilename); err != nil {
		return err
	}
	done()
	return nil
}

// sanatizeParams does some checks on parameters, and fills missing
// filenames if possible
func sanatizeParams(par *params) error {
	if len(par.args) != 1 {
		return errors.New(`last argument must be name of mzML file`)
	}

	mzml := par.args[0]
	par.mzMLFilename = &mzml
	var extension = filepath.Ext(mzml)
	var startName = mzml[0 : len(mzml)-len(extension)]

	if *par.mzMLPickedFilename == "" {
		*par.mzMLPickedFilename = startName + "-picked.mzML"
	}
	if *par.peaksFilename != `` {
		if _, err := peaklist.FormatFromFilename(*par.peaksFilename); err != nil {
			return fmt.Errorf("invalid value for parameter 'peaks': %w", err)
		}
	}

	var err error
	par.minSpecIdx, par.maxSpecIdx, err = parseIntRange(*par.specFilter,
		0, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'specfilter': %w", err)
	}
	if _, err = pickerOptions(*par); err != nil {
		return err
	}
	return nil
}

func usage() {
	exeName := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr,
		`USAGE:
  %s [options] <mzMLfile>

  This program performs peak picking on high resolution (FTICR, Orbitrap)
  profile spectra in an mzML file. Each Gaussian shaped peak is replaced
  by a single centroid.

OPTIONS:
`, exeName)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr,
		`
PARAMETERS:
  Option -param accepts the following keys:
    %s: "peakarea" or "peakheight" (same as -intensity)
    %s: "true" or "false" (same as -ms1only)

USAGE EXAMPLES:
  %s yeast.mzML
    Pick peaks in all profile spectra of yeast.mzML, write the result
    to yeast-picked.mzML. Default parameters are used.

  %s -ms1only -intensity peakarea -peaks yeast-peaks.tsv yeast.mzML
    Idem, but only pick MS1 spectra, use the peak area as intensity and
    write a list of all picked peaks to yeast-peaks.tsv

NOTES:
    The mzML file that is produced does not contain an index. If an
    index is required, we recommend post-processing the output file with msconvert
    (http://proteowizard.sourceforge.net/download.html).
`, peakpicker.ParamIntensityType, peakpicker.ParamMS1Only, exeName, exeName)
}

func main() {
	par := params{pickParams: paramMap{}}

	par.mzMLPickedFilename = flag.String("o",
		"",
		"`filename` of peak picked mzML")
	par.peaksFilename = flag.String("peaks",
		"",
		"`filename` for a list of all picked peaks. The format is determined\n"+
			"by the extension: .json, .tsv or .parquet")
	par.intensityType = flag.String("intensity",
		peakpicker.IntensityPeakHeight,
		`intensity of picked peaks: "peakheight" (apex height of the fitted
Gaussian) or "peakarea" (area of the fitted Gaussian)`)
	par.ms1Only = flag.Bool("ms1only", false,
		`Only pick MS1 spectra, other spectra are written unchanged`)
	flag.Var(par.pickParams, "param",
		"picker parameter as `key=value`, may be repeated")
	par.acceptCentroid = flag.Bool("acceptcentroid", false,
		`Also pick spectra that are marked as centroided.
By default, these are written unchanged.`)
	par.specFilter = flag.String("specfilter",
		"",
		"`range`"+` of spectrum indices to pick (e.g. 1000:2000).
Default is all spectra`)
	version := flag.Bool("version", false,
		`Show software version`)
	verbose := flag.Bool("verbose", false,
		`Print more verbose progress information`)
	quiet := flag.Bool("quiet", false,
		`Don't print any output except for errors`)
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
		par.verbosity = logging.VerbosityVerbose
	}
	if *quiet {
		par.verbosity = logging.VerbositySilent
	}
	par.args = flag.Args()

	if err := sanatizeParams(&par); err != nil {
		fmt.Fprintf(os.Stderr, `%v
Type %s --help for usage
`, err, filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	logger := logging.New(logging.WithVerbosity(par.verbosity))
	defer logger.Sync()

	if err := run(par, logger); err != nil {
		logger.Fatal("Peak picking failed", zap.Error(err))
	}
}
