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
	evidenceDecoys map[string]bool
	identList      []identRef
	content        mzIdentMLContent
}

type identRef struct {
	resultIdx int // Index into SpectrumIdentificationResult
	itemIdx   int // Index into its SpectrumIdentificationItem
}

// Identification is one spectrum identification item, with the peptide it
// refers to resolved
type Identification struct {
	PepSeq  string
	PepID   string
	Charge  int
	Rank    int
	ModMass float64
	NumMods int
	SpecID  string
	Decoy   bool
	Cv      []CvParam
	User    []UserParam
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	PeptideEvidence              []peptideEvidence              `xml:"SequenceCollection>PeptideEvidence"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
}

type peptideEvidence struct {
	ID         string `xml:"id,attr"`
	PeptideRef string `xml:"peptide_ref,attr"`
	IsDecoy    bool   `xml:"isDecoy,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
}

type spectrumIdentificationItem struct {
	ChargeState        int                  `xml:"chargeState,attr"`
	Rank               int                  `xml:"rank,attr"`
	PeptideRef         string               `xml:"peptide_ref,attr"`
	PeptideEvidenceRef []peptideEvidenceRef `xml:"PeptideEvidenceRef"`
	CvPar              []CvParam            `xml:"cvParam"`
	UserPar            []UserParam          `xml:"userParam"`
}

type peptideEvidenceRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

// CvParam is a controlled vocabulary term with its value
type CvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

// UserParam is a search engine specific name/value pair
type UserParam struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

var (
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	ErrNoIdentifications = errors.New("mzIdentML: no spectrum identifications found")
	ErrUnknownPeptide    = errors.New("mzIdentML: reference to unknown peptide")
)
