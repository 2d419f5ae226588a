package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	pepID2Idx      map[string]int
	evidenceID2Idx map[string]int
	spectraID2Idx  map[string]int
	identList      []identRef
	content        mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is one peptide assumption for one spectrum
type Identification struct {
	PepSeq string
	PepID  string
	Rank   int
	SpecID string
	// Name (or base name of the location) of the spectrum file
	SpectraFile string
	// True when all peptide evidences of the peptide are decoys
	IsDecoy bool
	Cv      []CvParam
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	AnalysisSoftware             []analysisSoftware             `xml:"AnalysisSoftwareList>AnalysisSoftware"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	PeptideEvidence              []peptideEvidence              `xml:"SequenceCollection>PeptideEvidence"`
	SpectraData                  []spectraData                  `xml:"DataCollection>Inputs>SpectraData"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type analysisSoftware struct {
	ID           string    `xml:"id,attr"`
	Name         string    `xml:"name,attr"`
	Version      string    `xml:"version,attr"`
	SoftwareName []CvParam `xml:"SoftwareName>cvParam"`
	UserName     []CvParam `xml:"SoftwareName>userParam"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
}

type peptideEvidence struct {
	ID         string `xml:"id,attr"`
	PeptideRef string `xml:"peptide_ref,attr"`
	IsDecoy    bool   `xml:"isDecoy,attr"`
}

type spectraData struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	Location string `xml:"location,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectraDataRef             string `xml:"spectraData_ref,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
}

type spectrumIdentificationItem struct {
	Rank               int                  `xml:"rank,attr"`
	PeptideRef         string               `xml:"peptide_ref,attr"`
	PeptideEvidenceRef []peptideEvidenceRef `xml:"PeptideEvidenceRef"`
	CvPar              []CvParam            `xml:"cvParam"`
	UserPar            []CvParam            `xml:"userParam"`
}

type peptideEvidenceRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

// CvParam is a cvParam or userParam element. userParams have no accession.
type CvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	ErrUnknownPeptide    = errors.New("mzIdentML: unknown peptide reference")
)
