// Package mzml reads and writes the spectra of mzML files.
//
// Only the parts of the file that peak picking touches are decoded: spectrum
// attributes, cvParams, retention time and the m/z and intensity arrays.
// Everything else is kept as raw XML so that it is written back unchanged.
package mzml

import (
	"encoding/xml"
	"errors"
)

// MzML wraps the contents of the mzML file
type MzML struct {
	content  mzMLContent
	index2id []string
	id2Index map[string]int
}

// Peak contains the actual ms peak info
type Peak struct {
	Mz     float64
	Intens float64
}

// CV terms used by this package
const (
	cvMSLevel          = `MS:1000511`
	cvCentroidSpectrum = `MS:1000127`
	cvProfileSpectrum  = `MS:1000128`
	cvTotalIonCurrent  = `MS:1000285`
	cvScanStartTime    = `MS:1000016`
	cvMzArray          = `MS:1000514`
	cvIntensityArray   = `MS:1000515`
	cv64BitFloat       = `MS:1000523`
	cvZlibCompression  = `MS:1000574`
	cvUnitMinute       = `UO:0000031`
	cvUnitMinuteMS     = `MS:1000038`
)

// The mzML content that we read. Not all fields are parsed,
// but we need to store them in order to write the result mzML.
type mzMLContent struct {
	XMLName         xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	CvList          cvList   `xml:"cvList"`
	FileDescription struct {
		FileDescriptionXML string `xml:",innerxml"`
	} `xml:"fileDescription"`
	ReferenceableParamGroupList *rawList            `xml:"referenceableParamGroupList"`
	SampleList                  *rawList            `xml:"sampleList"`
	SoftwareList                *softwareList       `xml:"softwareList"`
	ScanSettingsList            *rawList            `xml:"scanSettingsList"`
	InstrumentConfigurationList *rawList            `xml:"instrumentConfigurationList"`
	DataProcessingList          *dataProcessingList `xml:"dataProcessingList"`
	Run                         run                 `xml:"run"`
}

// mzMLContentWrite adds the namespace attributes, which encoding/xml
// cannot write otherwise
type mzMLContentWrite struct {
	XMLName         xml.Name `xml:"http://psi.hupo.org/ms/mzml mzML"`
	Sl1             string   `xml:"xsi:schemaLocation,attr"`
	Version         string   `xml:"version,attr"`
	Sl2             string   `xml:"xmlns:xsi,attr"`
	CvList          cvList   `xml:"cvList"`
	FileDescription struct {
		FileDescriptionXML string `xml:",innerxml"`
	} `xml:"fileDescription"`
	ReferenceableParamGroupList *rawList            `xml:"referenceableParamGroupList,omitempty"`
	SampleList                  *rawList            `xml:"sampleList,omitempty"`
	SoftwareList                *softwareList       `xml:"softwareList"`
	ScanSettingsList            *rawList            `xml:"scanSettingsList,omitempty"`
	InstrumentConfigurationList *rawList            `xml:"instrumentConfigurationList"`
	DataProcessingList          *dataProcessingList `xml:"dataProcessingList"`
	Run                         run                 `xml:"run"`
}

type cvList struct {
	Count     int    `xml:"count,attr,omitempty"`
	CvListXML []byte `xml:",innerxml"`
}

// rawList is a list element that is passed through without decoding
type rawList struct {
	Count int    `xml:"count,attr,omitempty"`
	XML   []byte `xml:",innerxml"`
}

type softwareList struct {
	Count    int        `xml:"count,attr,omitempty"`
	Software []software `xml:"software"`
}

type software struct {
	ID      string    `xml:"id,attr,omitempty"`
	Version string    `xml:"version,attr,omitempty"`
	CvPar   []CVParam `xml:"cvParam,omitempty"`
}

type dataProcessingList struct {
	Count          int              `xml:"count,attr,omitempty"`
	DataProcessing []DataProcessing `xml:"dataProcessing,omitempty"`
}

// DataProcessing contains info for the correspondingly named
// tag in mzML
type DataProcessing struct {
	ID             string             `xml:"id,attr,omitempty"`
	ProcessingMeth []ProcessingMethod `xml:"processingMethod"`
}

// ProcessingMethod contains info for the correspondingly named
// tag in mzML
type ProcessingMethod struct {
	Order       int         `xml:"order,attr"`
	SoftwareRef string      `xml:"softwareRef,attr,omitempty"`
	CvPar       []CVParam   `xml:"cvParam,omitempty"`
	UserPar     []userParam `xml:"userParam,omitempty"`
}

type run struct {
	ID                                string            `xml:"id,attr,omitempty"`
	DefaultInstrumentConfigurationRef string            `xml:"defaultInstrumentConfigurationRef,attr,omitempty"`
	StartTimeStamp                    string            `xml:"startTimeStamp,attr,omitempty"`
	DefaultSourceFileRef              string            `xml:"defaultSourceFileRef,attr,omitempty"`
	SampleRef                         string            `xml:"sampleRef,attr,omitempty"`
	SpectrumList                      spectrumList      `xml:"spectrumList"`
	ChromatogramList                  *chromatogramList `xml:"chromatogramList,omitempty"`
}

type spectrumList struct {
	Count                    int        `xml:"count,attr"`
	DefaultDataProcessingRef string     `xml:"defaultDataProcessingRef,attr,omitempty"`
	Spectrum                 []spectrum `xml:"spectrum,omitempty"`
}

type chromatogramList struct {
	Count                    int    `xml:"count,attr"`
	DefaultDataProcessingRef string `xml:"defaultDataProcessingRef,attr,omitempty"`
	ChromatogramListXML      []byte `xml:",innerxml"`
}

type spectrum struct {
	Index              int         `xml:"index,attr"`
	ID                 string      `xml:"id,attr"`
	DefaultArrayLength int64       `xml:"defaultArrayLength,attr"`
	DataProcessingRef  string      `xml:"dataProcessingRef,attr,omitempty"`
	CvPar              []CVParam   `xml:"cvParam,omitempty"`
	UserPar            []userParam `xml:"userParam,omitempty"`
	ScanList           scanList    `xml:"scanList"`
	// Precursor and product lists are slices, because encoding/xml
	// ignores "omitempty" on structs, and MS1 spectra have neither
	PrecursorList       []rawList           `xml:"precursorList,omitempty"`
	ProductList         []rawList           `xml:"productList,omitempty"`
	BinaryDataArrayList binaryDataArrayList `xml:"binaryDataArrayList"`
}

type binaryDataArrayList struct {
	Count           int               `xml:"count,attr,omitempty"`
	BinaryDataArray []binaryDataArray `xml:"binaryDataArray"`
}

type binaryDataArray struct {
	EncodedLength int       `xml:"encodedLength,attr,omitempty"`
	ArrayLength   int       `xml:"arrayLength,attr,omitempty"`
	CvPar         []CVParam `xml:"cvParam,omitempty"`
	Binary        string    `xml:"binary"`
}

type scanList struct {
	Count int       `xml:"count,attr,omitempty"`
	CvPar []CVParam `xml:"cvParam,omitempty"`
	Scan  []scan    `xml:"scan"`
}

type scan struct {
	InstrConfRef   string          `xml:"instrumentConfigurationRef,attr,omitempty"`
	CvPar          []CVParam       `xml:"cvParam,omitempty"`
	UserPar        []userParam     `xml:"userParam,omitempty"`
	ScanWindowList *scanWindowList `xml:"scanWindowList,omitempty"`
}

type scanWindowList struct {
	Count          int    `xml:"count,attr,omitempty"`
	ScanWindowList string `xml:",innerxml"`
}

type userParam struct {
	Name  string `xml:"name,attr,omitempty"`
	Value string `xml:"value,attr,omitempty"`
	Type  string `xml:"type,attr,omitempty"`
}

// CVParam contains values and attributes of a mzML Controlled Vocabulary term
// (http://www.peptideatlas.org/tmp/mzML1.1.0.html)
type CVParam struct {
	CvRef         string `xml:"cvRef,attr,omitempty"`
	Accession     string `xml:"accession,attr,omitempty"`
	Name          string `xml:"name,attr,omitempty"`
	Value         string `xml:"value,attr,omitempty"`
	UnitCvRef     string `xml:"unitCvRef,attr,omitempty"`
	UnitAccession string `xml:"unitAccession,attr,omitempty"`
	UnitName      string `xml:"unitName,attr,omitempty"`
}

var (
	// ErrInvalidScanID means an invalid scan id is supplied
	ErrInvalidScanID = errors.New("MzML: invalid scan id")
	// ErrInvalidScanIndex means an invalid scan index is supplied
	ErrInvalidScanIndex = errors.New("MzML: invalid scan index")
	// ErrUnknownUnit means the file contains a unit that the software cannot handle
	ErrUnknownUnit = errors.New("MzML: can't handle unit")
	// ErrUnsupportedCompression means the binary data uses a compression
	// that cannot be decoded (MS-Numpress)
	ErrUnsupportedCompression = errors.New("MzML: unsupported binary data compression")
)
