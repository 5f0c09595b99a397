package mzidentml

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

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
	mzIdentML.buildPepID2Idx()
	mzIdentML.buildEvidenceDecoys()
	mzIdentML.buildIdentList()
	if len(mzIdentML.identList) == 0 {
		return mzIdentML, ErrNoIdentifications
	}
	return mzIdentML, nil
}

func (m *MzIdentML) buildPepID2Idx() {
	m.pepID2Idx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2Idx[p.ID] = i
	}
}

func (m *MzIdentML) buildEvidenceDecoys() {
	m.evidenceDecoys = make(map[string]bool, len(m.content.PeptideEvidence))
	for _, pe := range m.content.PeptideEvidence {
		m.evidenceDecoys[pe.ID] = pe.IsDecoy
	}
}

func (m *MzIdentML) buildIdentList() {
	for i, sir := range m.content.SpectrumIdentificationResult {
		for j := range sir.SpectrumIdentificationItem {
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

// Ident returns a spectrum identification from the mzIdentML file.
// Parameter i is the index of the identification to return. The index runs
// from 0 to NumIdents()-1
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	sir := &m.content.SpectrumIdentificationResult[m.identList[i].resultIdx]
	sii := &sir.SpectrumIdentificationItem[m.identList[i].itemIdx]

	pepIdx, ok := m.pepID2Idx[sii.PeptideRef]
	if !ok {
		return ident, fmt.Errorf("%w %q in spectrum %s", ErrUnknownPeptide, sii.PeptideRef, sir.SpectrumID)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.NumMods = len(pep.Modification)
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}
	ident.Charge = sii.ChargeState
	ident.Rank = sii.Rank
	ident.SpecID = sir.SpectrumID
	ident.Decoy = m.isDecoy(sii)
	ident.Cv = append(ident.Cv, sii.CvPar...)
	ident.User = append(ident.User, sii.UserPar...)
	return ident, nil
}

// isDecoy tells if the peptide of an item only occurs in decoy proteins
func (m *MzIdentML) isDecoy(sii *spectrumIdentificationItem) bool {
	if len(sii.PeptideEvidenceRef) == 0 {
		return false
	}
	for _, ref := range sii.PeptideEvidenceRef {
		if !m.evidenceDecoys[ref.PeptideEvidenceRef] {
			return false
		}
	}
	return true
}

// Scores returns the numeric cvParam and userParam values of the
// identification. cvParams can be looked up both by accession and by name.
// Parameters that have no numeric value are skipped.
func (ident *Identification) Scores() map[string]float64 {
	s := make(map[string]float64, 2*len(ident.Cv)+len(ident.User))
	for _, cv := range ident.Cv {
		v, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			continue
		}
		if cv.Accession != "" {
			s[cv.Accession] = v
		}
		if cv.Name != "" {
			s[cv.Name] = v
		}
	}
	for _, up := range ident.User {
		v, err := strconv.ParseFloat(up.Value, 64)
		if err != nil || up.Name == "" {
			continue
		}
		s[up.Name] = v
	}
	return s
}
