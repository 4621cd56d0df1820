package mzml

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Write writes the mzML content, including all modifications, to writer.
// The index of indexedmzML is not written.
func (f *MzML) Write(writer io.Writer) error {
	_, err := io.WriteString(writer, `<?xml version="1.0" encoding="utf-8"?>
`)
	if err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(` `, `  `)
	var content mzMLContentWrite

	content.XMLName = f.content.XMLName
	content.Sl1 = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	content.Version = "1.1.0"
	content.Sl2 = "http://www.w3.org/2001/XMLSchema-instance"
	content.CvList = f.content.CvList
	content.FileDescription = f.content.FileDescription
	content.ReferenceableParamGroupList = f.content.ReferenceableParamGroupList
	content.SampleList = f.content.SampleList
	content.SoftwareList = f.content.SoftwareList
	content.ScanSettingsList = f.content.ScanSettingsList
	content.InstrumentConfigurationList = f.content.InstrumentConfigurationList
	content.DataProcessingList = f.content.DataProcessingList
	content.Run = f.content.Run

	if err = enc.Encode(&content); err != nil {
		return err
	}
	_, err = io.WriteString(writer, "\n")
	return err
}

// AppendSoftwareInfo adds info to the SoftwareList tag of the mzML file
func (f *MzML) AppendSoftwareInfo(id string, version string, cvPar ...CVParam) {
	if f.content.SoftwareList == nil {
		f.content.SoftwareList = &softwareList{}
	}
	sw := software{
		ID:      id,
		Version: version,
		CvPar:   cvPar,
	}
	f.content.SoftwareList.Software = append(f.content.SoftwareList.Software, sw)
	f.content.SoftwareList.Count = len(f.content.SoftwareList.Software)
}

// AppendDataProcessing adds info to the DataProcessing tag of the mzML file
func (f *MzML) AppendDataProcessing(proc DataProcessing) {
	if f.content.DataProcessingList == nil {
		f.content.DataProcessingList = &dataProcessingList{}
	}
	f.content.DataProcessingList.DataProcessing =
		append(f.content.DataProcessingList.DataProcessing, proc)
	f.content.DataProcessingList.Count = len(f.content.DataProcessingList.DataProcessing)
}

// SetCentroid marks a spectrum as containing centroid peaks, replacing
// the profile spectrum CV term if present
func (f *MzML) SetCentroid(scanIndex int) error {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return ErrInvalidScanIndex
	}
	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	for i := range spec.CvPar {
		switch spec.CvPar[i].Accession {
		case cvCentroidSpectrum:
			return nil
		case cvProfileSpectrum:
			spec.CvPar[i] = CVParam{
				CvRef:     spec.CvPar[i].CvRef,
				Accession: cvCentroidSpectrum,
				Name:      "centroid spectrum",
			}
			return nil
		}
	}
	spec.CvPar = append(spec.CvPar, CVParam{
		CvRef:     "MS",
		Accession: cvCentroidSpectrum,
		Name:      "centroid spectrum",
	})
	return nil
}

// UpdateScan sets the mz/intensity info of a scan
func (f *MzML) UpdateScan(scanIndex int, p []Peak,
	updateMz bool, updateIntens bool) error {
	if scanIndex < 0 || scanIndex >= f.NumSpecs() {
		return ErrInvalidScanIndex
	}
	// Workaround for msConvert:
	// Insert a dummy peak if there is none, otherwise msConvert generates an error
	if len(p) == 0 {
		p = []Peak{{}}
	}

	spec := &f.content.Run.SpectrumList.Spectrum[scanIndex]
	spec.DefaultArrayLength = int64(len(p))
	for i := range spec.BinaryDataArrayList.BinaryDataArray {
		bda := &spec.BinaryDataArrayList.BinaryDataArray[i]
		enc, err := binaryDataPars(bda)
		if err != nil {
			return err
		}
		// We are only interested in mz and intensity
		if (enc.mz && updateMz) || (enc.intensity && updateIntens) {
			b64, err := encodeBinary(p, enc.zlib, enc.bits64, enc.mz)
			if err != nil {
				return err
			}
			bda.Binary = b64
			bda.ArrayLength = 0 // only needed when it differs from defaultArrayLength
			bda.EncodedLength = len(b64)
		}
	}
	return nil
}

func encodeBinary(p []Peak, zlibCompression bool, bits64 bool, mzArray bool) (
	string, error) {

	var data []byte
	var rawUncompressed []byte

	// Some code duplication below in order to optimize loops
	if bits64 {
		rawUncompressed = make([]byte, len(p)*8)
		if mzArray {
			for i, peak := range p {
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], math.Float64bits(peak.Mz))
			}
		} else {
			for i, peak := range p {
				binary.LittleEndian.PutUint64(rawUncompressed[(8*i):], math.Float64bits(peak.Intens))
			}
		}
	} else {
		rawUncompressed = make([]byte, len(p)*4)
		if mzArray {
			for i, peak := range p {
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], math.Float32bits(float32(peak.Mz)))
			}
		} else {
			for i, peak := range p {
				binary.LittleEndian.PutUint32(rawUncompressed[(4*i):], math.Float32bits(float32(peak.Intens)))
			}
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(rawUncompressed); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise the result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		data = b.Bytes()
	} else {
		data = rawUncompressed
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
