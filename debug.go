// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/524D/mzpick/internal/peakpicker"
)

var debugSpecs *string // Print debug output for given spectrum range

var debugOut io.Writer = os.Stdout

func init() {
	debugSpecs = flag.String("debug", "",
		"Print debug output for given spectrum `range` e.g. 3:6")
}

// debugLogSpecs prints the picked peaks of the spectra in the debug range,
// each with the raw samples next to it
func debugLogSpecs(in, out peakpicker.Experiment, numSpecs int) {
	if *debugSpecs == `` {
		return
	}
	debugMin, debugMax, _ := parseIntRange(*debugSpecs, 0, numSpecs)
	for k, s := range out.Spectra {
		if s.Index < debugMin || s.Index > debugMax {
			continue
		}
		raw := in.Spectra[k].Peaks
		fmt.Fprintf(debugOut, "Spectrum:%d id:%s rt:%f level:%d samples:%d peaks:%d\n",
			s.Index, s.ID, s.RetentionTime, s.MSLevel, len(raw), len(s.Peaks))
		j := 0
		for n, p := range s.Peaks {
			if len(raw) == 0 {
				fmt.Fprintf(debugOut, "%d mz:%f intens:%f\n", n, p.Mz, p.Intens)
				continue
			}
			// Find the raw sample closest to the picked m/z
			for j+1 < len(raw) && raw[j+1].Mz <= p.Mz {
				j++
			}
			if j+1 < len(raw) && raw[j+1].Mz-p.Mz < p.Mz-raw[j].Mz {
				j++
			}
			fmt.Fprintf(debugOut, "%d mz:%f intens:%f sample:%d mzSample:%f intensSample:%f shift:%f\n",
				n, p.Mz, p.Intens, j, raw[j].Mz, raw[j].Intens, p.Mz-raw[j].Mz)
		}
	}
}
