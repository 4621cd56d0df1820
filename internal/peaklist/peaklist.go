// Package peaklist exports picked peaks as a flat table, one row per peak.
package peaklist

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/524D/mzpick/internal/peakpicker"
	parquet "github.com/parquet-go/parquet-go"
	"gonum.org/v1/gonum/floats"
)

// Format is the file format of a peak list
type Format string

const (
	FormatJSON    Format = "json"
	FormatTSV     Format = "tsv"
	FormatParquet Format = "parquet"
)

// ErrUnknownFormat means the peak list format is not supported
var ErrUnknownFormat = errors.New("peaklist: unknown format")

// Row is a single picked peak
type Row struct {
	SpecIndex     int     `json:"specIndex" parquet:"spec_index"`
	SpecID        string  `json:"specID" parquet:"spec_id,dict"`
	RetentionTime float64 `json:"retentionTime" parquet:"retention_time"`
	MSLevel       int     `json:"msLevel" parquet:"ms_level"`
	Mz            float64 `json:"mz" parquet:"mz"`
	Intensity     float64 `json:"intensity" parquet:"intensity"`
}

var tsvHeader = []string{"spec_index", "spec_id", "retention_time", "ms_level", "mz", "intensity"}

// FormatFromFilename derives the format from the file extension
func FormatFromFilename(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, nil
	case ".tsv", ".txt":
		return FormatTSV, nil
	case ".parquet", ".pq":
		return FormatParquet, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// Rows flattens the peaks of all spectra in exp, in spectrum order
func Rows(exp peakpicker.Experiment) []Row {
	n := 0
	for _, s := range exp.Spectra {
		n += len(s.Peaks)
	}
	rows := make([]Row, 0, n)
	for _, s := range exp.Spectra {
		for _, p := range s.Peaks {
			rows = append(rows, Row{
				SpecIndex:     s.Index,
				SpecID:        s.ID,
				RetentionTime: s.RetentionTime,
				MSLevel:       s.MSLevel,
				Mz:            p.Mz,
				Intensity:     p.Intens,
			})
		}
	}
	return rows
}

// Write writes rows to w in the given format
func Write(w io.Writer, format Format, rows []Row) error {
	switch format {
	case FormatJSON:
		e := json.NewEncoder(w)
		e.SetIndent(``, `  `)
		if rows == nil {
			rows = []Row{}
		}
		return e.Encode(rows)
	case FormatTSV:
		return writeTSV(w, rows)
	case FormatParquet:
		pw := parquet.NewGenericWriter[Row](w, parquet.Compression(&parquet.Snappy))
		if _, err := pw.Write(rows); err != nil {
			return err
		}
		return pw.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
}

func writeTSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	if err := cw.Write(tsvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		err := cw.Write([]string{
			strconv.Itoa(r.SpecIndex),
			r.SpecID,
			strconv.FormatFloat(r.RetentionTime, 'f', -1, 64),
			strconv.Itoa(r.MSLevel),
			strconv.FormatFloat(r.Mz, 'f', -1, 64),
			strconv.FormatFloat(r.Intensity, 'g', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary describes a peak list
type Summary struct {
	Peaks          int
	Spectra        int
	TotalIntensity float64
	MinMz          float64
	MaxMz          float64
}

// Summarize computes the summary of rows
func Summarize(rows []Row) Summary {
	if len(rows) == 0 {
		return Summary{}
	}
	mz := make([]float64, len(rows))
	intens := make([]float64, len(rows))
	spectra := make(map[int]struct{})
	for i, r := range rows {
		mz[i] = r.Mz
		intens[i] = r.Intensity
		spectra[r.SpecIndex] = struct{}{}
	}
	return Summary{
		Peaks:          len(rows),
		Spectra:        len(spectra),
		TotalIntensity: floats.Sum(intens),
		MinMz:          floats.Min(mz),
		MaxMz:          floats.Max(mz),
	}
}
