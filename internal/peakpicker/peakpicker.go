// Package peakpicker detects Gaussian shaped peaks in profile mass spectra
// and replaces each of them by a single centroid.
//
// The algorithm is suited for high resolution data (FT-ICR, Orbitrap), where
// ion signals hardly overlap and have a well defined, narrow shape. A peak
// core consists of five consecutive samples with regular m/z spacing that
// rise strictly towards the middle sample. The middle three samples are fed
// to a closed form Gaussian fit; the fitted mean becomes the m/z of the
// picked peak, and the fitted area or apex height its intensity.
//
// Samples must be sorted by ascending m/z.
package peakpicker

import (
	"maps"
	"math"

	"github.com/524D/mzpick/internal/gaussfit"
	"go.uber.org/zap"
)

// Peak is an (m/z, intensity) pair. It is used for raw profile samples as
// well as for picked peaks.
type Peak struct {
	Mz     float64
	Intens float64
}

// SpectrumType tells whether a spectrum contains profile or centroid data
type SpectrumType int

const (
	TypeUnknown SpectrumType = iota
	TypeProfile
	TypeCentroid
)

func (t SpectrumType) String() string {
	switch t {
	case TypeProfile:
		return "profile"
	case TypeCentroid:
		return "centroid"
	}
	return "unknown"
}

// Spectrum holds the peaks of a single scan together with metadata that
// the picker copies to its output without interpreting it.
type Spectrum struct {
	Index         int
	ID            string
	RetentionTime float64
	MSLevel       int
	Type          SpectrumType
	Meta          map[string]string // annotations, e.g. cvParam name/value
	Peaks         []Peak
}

// Minimal intensity of all five samples of a peak core
const minIntensity = 1.0

// Maximal m/z spacing within a peak core, relative to the smallest
// spacing next to the apex
const maxSpacingRatio = 1.5

// Cursor steps. After an accepted peak core the right neighbor of the apex
// has been consumed by the fit and cannot be an apex itself.
const (
	stepRejected = 1
	stepAccepted = 2
)

// Picker picks peaks in spectra and experiments.
// A Picker is safe for concurrent use as long as its Progress is.
type Picker struct {
	opts     Options
	progress Progress
	logger   *zap.Logger
}

// PickerOption configures a Picker
type PickerOption func(*Picker)

// WithProgress sets the progress sink that PickExperiment reports to
func WithProgress(p Progress) PickerOption {
	return func(pp *Picker) {
		if p != nil {
			pp.progress = p
		}
	}
}

// WithLogger sets the logger. Rejected fits are logged at debug level.
func WithLogger(l *zap.Logger) PickerOption {
	return func(pp *Picker) {
		if l != nil {
			pp.logger = l
		}
	}
}

// New returns a Picker using the given options
func New(opts Options, options ...PickerOption) *Picker {
	p := &Picker{
		opts:     opts,
		progress: NopProgress{},
		logger:   zap.NewNop(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Options returns the options of the picker
func (p *Picker) Options() Options {
	return p.opts
}

// copyMeta returns a spectrum with the metadata of in and no peaks
func copyMeta(in Spectrum) Spectrum {
	return Spectrum{
		Index:         in.Index,
		ID:            in.ID,
		RetentionTime: in.RetentionTime,
		MSLevel:       in.MSLevel,
		Type:          in.Type,
		Meta:          maps.Clone(in.Meta),
	}
}

// Pick returns a spectrum with the metadata of in, and one peak for each
// Gaussian peak core found in the samples of in.
// Spectra with less than 5 samples yield no peaks.
func (p *Picker) Pick(in Spectrum) Spectrum {
	out := copyMeta(in)

	useArea := p.opts.useArea()
	s := in.Peaks

	scan(s, func(i int, core bool) {
		if !core {
			return
		}
		r := gaussfit.Fit(
			gaussfit.Point{X: s[i-1].Mz, Y: s[i-1].Intens},
			gaussfit.Point{X: s[i].Mz, Y: s[i].Intens},
			gaussfit.Point{X: s[i+1].Mz, Y: s[i+1].Intens})
		if !r.Valid {
			p.logger.Debug("Gaussian fit rejected",
				zap.String("spectrum", in.ID),
				zap.Int("apex", i),
				zap.Float64("mz", s[i].Mz),
				zap.Float64("area", r.Area))
			return
		}
		intens := r.Area
		if !useArea {
			intens = r.ApexHeight()
		}
		out.Peaks = append(out.Peaks, Peak{Mz: r.Mu, Intens: intens})
	})
	return out
}

// scan moves a cursor over all possible apex positions of s and calls
// visit for each position it examines. core tells whether the window at
// that position passed the shape test.
func scan(s []Peak, visit func(apex int, core bool)) {
	for i := 2; i < len(s)-2; {
		core := isPeakCore(s, i)
		visit(i, core)
		if core {
			i += stepAccepted
		} else {
			i += stepRejected
		}
	}
}

// isPeakCore reports whether the five samples centered at i have the shape
// of a peak: all above the intensity floor, regularly spaced and strictly
// rising towards i from both sides.
func isPeakCore(s []Peak, i int) bool {
	l2, l1, c, r1, r2 := s[i-2], s[i-1], s[i], s[i+1], s[i+2]

	if !(l2.Intens > minIntensity && l1.Intens > minIntensity &&
		c.Intens > minIntensity &&
		r1.Intens > minIntensity && r2.Intens > minIntensity) {
		return false
	}

	l1ToC := math.Abs(c.Mz - l1.Mz)
	l2ToL1 := math.Abs(l1.Mz - l2.Mz)
	cToR1 := math.Abs(r1.Mz - c.Mz)
	r1ToR2 := math.Abs(r2.Mz - r1.Mz)
	maxSpacing := maxSpacingRatio * min(l1ToC, cToR1)

	if !(l1ToC < maxSpacing && l2ToL1 < maxSpacing &&
		cToR1 < maxSpacing && r1ToR2 < maxSpacing) {
		return false
	}

	return l2.Intens < l1.Intens && l1.Intens < c.Intens &&
		r2.Intens < r1.Intens && r1.Intens < c.Intens
}
