package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, err
	}
	mzIdentML.buildIndexes()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

func (m *MzIdentML) buildIndexes() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
	m.evidenceID2Idx = make(map[string]int, len(m.content.PeptideEvidence))
	for i, e := range m.content.PeptideEvidence {
		m.evidenceID2Idx[e.ID] = i
	}
	m.spectraID2Idx = make(map[string]int, len(m.content.SpectraData))
	for i, s := range m.content.SpectraData {
		m.spectraID2Idx[s.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{resultIdx: i, itemIdx: j})
		}
	}
}

// NumIdents returns the total number of identifications in the mzIdentML file
// Note that for some spectra, multiple identifications may be present
// The identifications can be accessed using the Ident() method, which takes
// an index as argument. The index runs from 0 to NumIdents()-1
func (m *MzIdentML) NumIdents() int {
	return len(m.identList)
}

// Software returns the names of the analysis software listed in the file,
// in file order. The name attribute is preferred over the SoftwareName
// parameter.
func (m *MzIdentML) Software() []string {
	var names []string
	for _, s := range m.content.AnalysisSoftware {
		name := s.Name
		for _, p := range append(s.SoftwareName, s.UserName...) {
			if name != "" {
				break
			}
			name = p.Name
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].itemIdx]

	pepIdx, ok := m.pepID2Idx[item.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w %q", ErrUnknownPeptide, item.PeptideRef)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.Rank = item.Rank
	ident.SpecID = result.SpectrumID
	if j, ok := m.spectraID2Idx[result.SpectraDataRef]; ok {
		sd := m.content.SpectraData[j]
		ident.SpectraFile = sd.Name
		if ident.SpectraFile == "" {
			ident.SpectraFile = path.Base(strings.ReplaceAll(sd.Location, `\`, "/"))
		}
	}
	ident.IsDecoy = m.isDecoy(item)

	// Collect CV terms/values for the identification, the scores are in there
	ident.Cv = append(ident.Cv, item.CvPar...)
	ident.Cv = append(ident.Cv, item.UserPar...)
	return ident, nil
}

func (m *MzIdentML) isDecoy(item *spectrumIdentificationItem) bool {
	if len(item.PeptideEvidenceRef) == 0 {
		return false
	}
	for _, ref := range item.PeptideEvidenceRef {
		j, ok := m.evidenceID2Idx[ref.PeptideEvidenceRef]
		if !ok || !m.content.PeptideEvidence[j].IsDecoy {
			return false
		}
	}
	return true
}

// Score returns the value of the first parameter whose accession or name
// equals key
func (ident *Identification) Score(key string) (float64, bool) {
	for _, cv := range ident.Cv {
		if cv.Accession == key || (cv.Name != "" && cv.Name == key) {
			v, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return 0, false
			}
			return v, true
		}
	}
	return 0, false
}
