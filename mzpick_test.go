package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/524D/mzpick/internal/logging"
	"github.com/524D/mzpick/internal/mzml"
	"github.com/524D/mzpick/internal/peaklist"
	"github.com/524D/mzpick/internal/peakpicker"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"
)

const testMzML = "testdata/profile.mzML"

func str(s string) *string { return &s }
func boolean(b bool) *bool  { return &b }

// testParams returns the parameters of "mzpick -o <dir>/picked.mzML testdata/profile.mzML"
func testParams(t *testing.T) params {
	t.Helper()
	return params{
		mzMLPickedFilename: str(filepath.Join(t.TempDir(), "picked.mzML")),
		peaksFilename:      str(""),
		intensityType:      str(peakpicker.IntensityPeakHeight),
		ms1Only:            boolean(false),
		pickParams:         paramMap{},
		acceptCentroid:     boolean(false),
		specFilter:         str(""),
		args:               []string{testMzML},
	}
}

func readMzML(t *testing.T, filename string) mzml.MzML {
	t.Helper()
	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("Open %s: %v", filename, err)
	}
	defer f.Close()
	mzML, err := mzml.Read(f)
	if err != nil {
		t.Fatalf("mzml.Read %s: %v", filename, err)
	}
	return mzML
}

func readScan(t *testing.T, mzML *mzml.MzML, i int) []mzml.Peak {
	t.Helper()
	p, err := mzML.ReadScan(i)
	if err != nil {
		t.Fatalf("ReadScan(%d): %v", i, err)
	}
	return p
}

func runTest(t *testing.T, par params, logger *zap.Logger) mzml.MzML {
	t.Helper()
	if err := sanatizeParams(&par); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if err := run(par, logger); err != nil {
		t.Fatalf("run: %v", err)
	}
	return readMzML(t, *par.mzMLPickedFilename)
}

var approxPeaks = cmpopts.EquateApprox(1e-5, 0)

// The Gaussians in the test file, on top of their baseline
var wantMS1 = []mzml.Peak{{Mz: 400.2, Intens: 1e5 + 2}, {Mz: 401.07, Intens: 4e4 + 2}, {Mz: 402.5, Intens: 2e3 + 2}}
var wantMS2 = []mzml.Peak{{Mz: 150.51, Intens: 5e3 + 1.5}, {Mz: 151.3007, Intens: 800 + 1.5}}

func TestRun(t *testing.T) {
	par := testParams(t)
	*par.peaksFilename = filepath.Join(t.TempDir(), "peaks.json")
	var logBuf bytes.Buffer
	logger := logging.New(logging.WithOutput(&logBuf))

	orig := readMzML(t, testMzML)
	out := runTest(t, par, logger)

	if out.NumSpecs() != orig.NumSpecs() {
		t.Fatalf("NumSpecs: %d, should be %d", out.NumSpecs(), orig.NumSpecs())
	}
	if diff := cmp.Diff(wantMS1, readScan(t, &out, 0), approxPeaks); diff != "" {
		t.Errorf("MS1 peaks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantMS2, readScan(t, &out, 1), approxPeaks); diff != "" {
		t.Errorf("MS2 peaks mismatch (-want +got):\n%s", diff)
	}
	// Centroided input is not touched
	if diff := cmp.Diff(readScan(t, &orig, 2), readScan(t, &out, 2)); diff != "" {
		t.Errorf("centroid spectrum changed (-want +got):\n%s", diff)
	}
	// Too short for a peak: a single dummy peak is written
	if diff := cmp.Diff([]mzml.Peak{{}}, readScan(t, &out, 3)); diff != "" {
		t.Errorf("short spectrum mismatch (-want +got):\n%s", diff)
	}
	for i := 0; i < out.NumSpecs(); i++ {
		centroid, _ := out.Centroid(i)
		profile, _ := out.Profile(i)
		if !centroid || profile {
			t.Errorf("spectrum %d: centroid %v profile %v", i, centroid, profile)
		}
		id1, _ := orig.ScanID(i)
		id2, _ := out.ScanID(i)
		rt1, _ := orig.RetentionTime(i)
		rt2, _ := out.RetentionTime(i)
		if id1 != id2 || rt1 != rt2 {
			t.Errorf("spectrum %d: id %q rt %v, should be %q %v", i, id2, rt2, id1, rt1)
		}
	}

	written, err := os.ReadFile(*par.mzMLPickedFilename)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{`<software id="mzPick"`, `accession="MS:1000035"`, `softwareRef="mzPick"`} {
		if !bytes.Contains(written, []byte(s)) {
			t.Errorf("output mzML doesn't contain %s", s)
		}
	}

	if !strings.Contains(logBuf.String(), "centroided spectra") {
		t.Errorf("no warning about centroided input: %q", logBuf.String())
	}
	if strings.Contains(logBuf.String(), "high resolution") {
		t.Errorf("unexpected instrument warning for Orbitrap data: %q", logBuf.String())
	}

	pf, err := os.Open(*par.peaksFilename)
	if err != nil {
		t.Fatal(err)
	}
	defer pf.Close()
	var rows []peaklist.Row
	if err := json.NewDecoder(pf).Decode(&rows); err != nil {
		t.Fatalf("decoding peak list: %v", err)
	}
	if len(rows) != len(wantMS1)+len(wantMS2) {
		t.Fatalf("peak list has %d rows, should be %d", len(rows), len(wantMS1)+len(wantMS2))
	}
	if rows[0].SpecIndex != 0 || rows[0].MSLevel != 1 || rows[0].RetentionTime != 30 ||
		rows[3].SpecIndex != 1 || rows[3].MSLevel != 2 ||
		rows[3].SpecID != "controllerType=0 controllerNumber=1 scan=2" {
		t.Errorf("peak list rows %+v", rows)
	}
}

func TestRunMS1Only(t *testing.T) {
	par := testParams(t)
	*par.ms1Only = true
	*par.peaksFilename = filepath.Join(t.TempDir(), "peaks.parquet")

	orig := readMzML(t, testMzML)
	out := runTest(t, par, zap.NewNop())

	if diff := cmp.Diff(wantMS1, readScan(t, &out, 0), approxPeaks); diff != "" {
		t.Errorf("MS1 peaks mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(readScan(t, &orig, 1), readScan(t, &out, 1)); diff != "" {
		t.Errorf("MS2 spectrum changed (-want +got):\n%s", diff)
	}
	if centroid, _ := out.Centroid(1); centroid {
		t.Errorf("MS2 spectrum marked as centroid")
	}
	if fi, err := os.Stat(*par.peaksFilename); err != nil || fi.Size() == 0 {
		t.Errorf("parquet peak list not written: %v", err)
	}
}

func TestRunPeakArea(t *testing.T) {
	par := testParams(t)
	if err := par.pickParams.Set("intensity_type=peakarea"); err != nil {
		t.Fatal(err)
	}
	orig := readMzML(t, testMzML)
	out := runTest(t, par, zap.NewNop())

	// Same result as picking the spectrum directly
	var s peakpicker.Spectrum
	for _, p := range readScan(t, &orig, 0) {
		s.Peaks = append(s.Peaks, peakpicker.Peak{Mz: p.Mz, Intens: p.Intens})
	}
	picked := peakpicker.New(peakpicker.Options{IntensityType: peakpicker.IntensityPeakArea}).Pick(s)
	var want []mzml.Peak
	for _, p := range picked.Peaks {
		want = append(want, mzml.Peak{Mz: p.Mz, Intens: p.Intens})
	}
	got := readScan(t, &out, 0)
	if diff := cmp.Diff(want, got, approxPeaks); diff != "" {
		t.Errorf("peak area mismatch (-want +got):\n%s", diff)
	}
	for i := 0; i < len(got) && i < len(wantMS1); i++ {
		if got[i].Intens >= wantMS1[i].Intens {
			t.Errorf("peak %d: area %v not below apex height %v of narrow peak",
				i, got[i].Intens, wantMS1[i].Intens)
		}
	}
}

func TestRunSpecFilter(t *testing.T) {
	par := testParams(t)
	*par.specFilter = "1:1"
	orig := readMzML(t, testMzML)
	out := runTest(t, par, zap.NewNop())

	for _, i := range []int{0, 2, 3} {
		if diff := cmp.Diff(readScan(t, &orig, i), readScan(t, &out, i)); diff != "" {
			t.Errorf("spectrum %d changed (-want +got):\n%s", i, diff)
		}
	}
	if diff := cmp.Diff(wantMS2, readScan(t, &out, 1), approxPeaks); diff != "" {
		t.Errorf("MS2 peaks mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAcceptCentroid(t *testing.T) {
	par := testParams(t)
	*par.acceptCentroid = true
	out := runTest(t, par, zap.NewNop())
	// Three isolated centroids don't form a peak core
	if diff := cmp.Diff([]mzml.Peak{{}}, readScan(t, &out, 2)); diff != "" {
		t.Errorf("centroid spectrum mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMissingFile(t *testing.T) {
	par := testParams(t)
	par.args = []string{filepath.Join(t.TempDir(), "missing.mzML")}
	if err := sanatizeParams(&par); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if err := run(par, zap.NewNop()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("run: error %v, should be os.ErrNotExist", err)
	}
}

func TestDebugLogSpecs(t *testing.T) {
	var buf bytes.Buffer
	debugOut = &buf
	*debugSpecs = "0:0"
	defer func() {
		debugOut = os.Stdout
		*debugSpecs = ""
	}()

	runTest(t, testParams(t), zap.NewNop())
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1+len(wantMS1) {
		t.Fatalf("debug output has %d lines, should be %d:\n%s", len(lines), 1+len(wantMS1), buf.String())
	}
	if !strings.HasPrefix(lines[0], "Spectrum:0 ") || !strings.Contains(lines[0], "samples:2000 peaks:3") {
		t.Errorf("debug header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0 mz:400.200000 ") {
		t.Errorf("debug peak %q", lines[1])
	}
}

func TestSanatizeParams(t *testing.T) {
	par := testParams(t)
	*par.mzMLPickedFilename = ""
	par.args = []string{"data/yeast.mzML"}
	if err := sanatizeParams(&par); err != nil {
		t.Fatalf("sanatizeParams: %v", err)
	}
	if *par.mzMLFilename != "data/yeast.mzML" || *par.mzMLPickedFilename != "data/yeast-picked.mzML" {
		t.Errorf("filenames %q %q", *par.mzMLFilename, *par.mzMLPickedFilename)
	}
	if par.minSpecIdx != 0 || par.maxSpecIdx != math.MaxInt32 {
		t.Errorf("spectrum range %d:%d", par.minSpecIdx, par.maxSpecIdx)
	}

	tests := []struct {
		name   string
		modify func(*params)
		err    error
	}{
		{"no file", func(p *params) { p.args = nil }, nil},
		{"two files", func(p *params) { p.args = []string{"a.mzML", "b.mzML"} }, nil},
		{"peak list format", func(p *params) { *p.peaksFilename = "peaks.xlsx" }, peaklist.ErrUnknownFormat},
		{"spectrum range", func(p *params) { *p.specFilter = "5:2" }, ErrRangeSpec},
		{"ms1 only", func(p *params) { p.pickParams["ms1_only"] = "maybe" }, peakpicker.ErrInvalidParam},
	}
	for _, tt := range tests {
		par := testParams(t)
		tt.modify(&par)
		err := sanatizeParams(&par)
		if err == nil {
			t.Errorf("%s: no error", tt.name)
			continue
		}
		if tt.err != nil && !errors.Is(err, tt.err) {
			t.Errorf("%s: error %v, should be %v", tt.name, err, tt.err)
		}
	}
}

func TestPickerOptions(t *testing.T) {
	par := testParams(t)
	*par.intensityType = peakpicker.IntensityPeakArea
	*par.ms1Only = true
	opts, err := pickerOptions(par)
	if err != nil {
		t.Fatalf("pickerOptions: %v", err)
	}
	if diff := cmp.Diff(peakpicker.Options{IntensityType: peakpicker.IntensityPeakArea, MS1Only: true}, opts); diff != "" {
		t.Errorf("pickerOptions (-want +got):\n%s", diff)
	}

	// -param wins
	par.pickParams.Set("ms1_only=false")
	par.pickParams.Set("intensity_type = peakheight")
	opts, err = pickerOptions(par)
	if err != nil {
		t.Fatalf("pickerOptions: %v", err)
	}
	if diff := cmp.Diff(peakpicker.Options{IntensityType: peakpicker.IntensityPeakHeight}, opts); diff != "" {
		t.Errorf("pickerOptions (-want +got):\n%s", diff)
	}
}

func TestParamMap(t *testing.T) {
	m := paramMap{}
	for _, s := range []string{"ms1_only=true", "intensity_type=peakarea", "empty="} {
		if err := m.Set(s); err != nil {
			t.Errorf("Set(%q): %v", s, err)
		}
	}
	if got, want := m.String(), "empty=,intensity_type=peakarea,ms1_only=true"; got != want {
		t.Errorf("String: %q, should be %q", got, want)
	}
	for _, s := range []string{"ms1_only", "=true", ""} {
		if err := m.Set(s); !errors.Is(err, ErrParamSpec) {
			t.Errorf("Set(%q): error %v, should be ErrParamSpec", s, err)
		}
	}
}

func TestParseIntRange(t *testing.T) {
	tests := []struct {
		r        string
		min, max int
		wantMin  int
		wantMax  int
		err      error
	}{
		{"3:6", 0, 10, 3, 6, nil},
		{"", 0, 10, 0, 10, nil},
		{":", 0, 10, 0, 10, nil},
		{":4", 0, 10, 0, 4, nil},
		{"4:", 0, 10, 4, 10, nil},
		{"-12:6", -20, 20, -12, 6, nil},
		{"-12:60", -5, 20, -5, 20, nil},
		{"8:2", 0, 10, 2, 2, ErrRangeSpec},
	}
	for _, tt := range tests {
		min, max, err := parseIntRange(tt.r, tt.min, tt.max)
		if min != tt.wantMin || max != tt.wantMax || !errors.Is(err, tt.err) {
			t.Errorf("parseIntRange(%q, %d, %d) = %d, %d, %v, should be %d, %d, %v",
				tt.r, tt.min, tt.max, min, max, err, tt.wantMin, tt.wantMax, tt.err)
		}
	}
}
