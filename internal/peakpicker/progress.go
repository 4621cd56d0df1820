package peakpicker

// Progress receives progress information from PickExperiment.
// Begin is called once with the number of spectra, Advance once per
// processed spectrum and End when all spectra are done.
type Progress interface {
	Begin(total int)
	Advance()
	End()
}

// NopProgress discards all progress information
type NopProgress struct{}

func (NopProgress) Begin(int) {}
func (NopProgress) Advance()  {}
func (NopProgress) End()      {}
