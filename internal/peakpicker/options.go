package peakpicker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Values of Options.IntensityType
const (
	IntensityPeakArea   = "peakarea"
	IntensityPeakHeight = "peakheight"
)

// Parameter names understood by OptionsFromParams
const (
	ParamIntensityType = "intensity_type"
	ParamMS1Only       = "ms1_only"
)

// ErrInvalidParam means a parameter has a value that cannot be used
var ErrInvalidParam = errors.New("invalid parameter")

// Options control the peak picker. They are read once per Pick or
// PickExperiment call.
type Options struct {
	// IntensityType selects the intensity of picked peaks: the area of
	// the fitted Gaussian (IntensityPeakArea) or its apex height (any
	// other value)
	IntensityType string
	// MS1Only leaves spectra with MS level other than 1 unchanged in
	// PickExperiment
	MS1Only bool
}

// DefaultOptions returns apex height intensities, picking at all MS levels
func DefaultOptions() Options {
	return Options{
		IntensityType: IntensityPeakHeight,
		MS1Only:       false,
	}
}

func (o Options) useArea() bool {
	return o.IntensityType == IntensityPeakArea
}

// OptionsFromParams resolves options from generic key/value parameters.
// Missing keys keep their default value, unknown keys are ignored.
func OptionsFromParams(params map[string]string) (Options, error) {
	opts := DefaultOptions()
	if v, ok := params[ParamIntensityType]; ok {
		opts.IntensityType = strings.TrimSpace(v)
	}
	if v, ok := params[ParamMS1Only]; ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return opts, fmt.Errorf("%w %s=%q", ErrInvalidParam, ParamMS1Only, v)
		}
		opts.MS1Only = b
	}
	return opts, nil
}
