package peakpicker

import (
	"maps"
)

// Settings contains experiment level metadata
type Settings struct {
	Name string
	Meta map[string]string
}

// Experiment is an ordered list of spectra, e.g. all scans of one LC-MS run
type Experiment struct {
	Settings Settings
	Spectra  []Spectrum
}

// PickExperiment picks the peaks of all spectra in in.
// When Options.MS1Only is set, spectra with an MS level other than 1 are
// copied unchanged, including their raw samples.
// Spectra are independent of each other and are processed in order.
func (p *Picker) PickExperiment(in Experiment) Experiment {
	out := Experiment{
		Settings: Settings{
			Name: in.Settings.Name,
			Meta: maps.Clone(in.Settings.Meta),
		},
		Spectra: make([]Spectrum, len(in.Spectra)),
	}

	ms1Only := p.opts.MS1Only

	p.progress.Begin(len(in.Spectra))
	for i, spec := range in.Spectra {
		if ms1Only && spec.MSLevel != 1 {
			out.Spectra[i] = copySpectrum(spec)
		} else {
			out.Spectra[i] = p.Pick(spec)
		}
		p.progress.Advance()
	}
	p.progress.End()

	return out
}

// copySpectrum returns a deep copy of in
func copySpectrum(in Spectrum) Spectrum {
	out := copyMeta(in)
	if in.Peaks != nil {
		out.Peaks = make([]Peak, len(in.Peaks))
		copy(out.Peaks, in.Peaks)
	}
	return out
}
