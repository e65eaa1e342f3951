package mzidentml

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/html/charset"
)

// Read reads mzIdentML content from io.reader
func Read(reader io.Reader) (MzIdentML, error) {
	var mzIdentML MzIdentML
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	err := d.Decode(&mzIdentML.content)
	if err != nil {
		return mzIdentML, errors.Wrap(err, "mzIdentML")
	}
	mzIdentML.buildIndexes()
	mzIdentML.buildIdentList()
	return mzIdentML, nil
}

func (m *MzIdentML) buildIndexes() {
	m.pepID2PepIdx = make(map[string]int, len(m.content.Peptide))
	for i, p := range m.content.Peptide {
		m.pepID2PepIdx[p.ID] = i
	}
	m.evidenceID2EvIdx = make(map[string]int, len(m.content.PeptideEvidence))
	for i, e := range m.content.PeptideEvidence {
		m.evidenceID2EvIdx[e.ID] = i
	}
}

func (m *MzIdentML) buildIdentList() {
	for i := range m.content.SpectrumIdentificationResult {
		for j := range m.content.SpectrumIdentificationResult[i].SpectrumIdentificationItem {
			m.identList = append(m.identList, identRef{specResultIdx: i, specItemIdx: j})
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
// A PSM is a decoy when all of its peptide evidences are decoys.
func (m *MzIdentML) Ident(i int) (Identification, error) {
	var ident Identification

	if i < 0 || i >= len(m.identList) {
		return ident, ErrInvalidIdentIndex
	}
	result := &m.content.SpectrumIdentificationResult[m.identList[i].specResultIdx]
	item := &result.SpectrumIdentificationItem[m.identList[i].specItemIdx]

	pepIdx, ok := m.pepID2PepIdx[item.PeptideRef]
	if !ok {
		return ident, errors.Wrapf(ErrUnknownPeptide, "%q in %q", item.PeptideRef, item.ID)
	}
	pep := &m.content.Peptide[pepIdx]
	ident.ID = item.ID
	ident.PepSeq = pep.PeptideSequence
	ident.PepID = pep.ID
	ident.Charge = item.ChargeState
	ident.Rank = item.Rank
	ident.ExpMz = item.ExperimentalMassToCharge
	ident.CalcMz = item.CalculatedMassToCharge
	for _, mod := range pep.Modification {
		ident.ModMass += mod.MonoisotopicMassDelta
	}

	decoys := 0
	for _, ref := range item.PeptideEvidenceRef {
		evIdx, ok := m.evidenceID2EvIdx[ref.PeptideEvidenceRef]
		if !ok {
			continue
		}
		ev := &m.content.PeptideEvidence[evIdx]
		ident.Proteins = append(ident.Proteins, ev.DBSequenceRef)
		if ev.IsDecoy {
			decoys++
		}
	}
	ident.IsDecoy = decoys > 0 && decoys == len(ident.Proteins)

	ident.SpecID = result.SpectrumID
	ident.RetentionTime = float64(-1)
	prio := math.MaxInt32
	for _, cv := range result.CvPar {
		// There are multiple CV terms that can be used to report the
		// retention time. In order of decreasing preference we use:
		// 1. MS:1000016 - scan start time
		// 2. MS:1000894 - retention time
		// 3. MS:1000826 - elution time
		// 4. MS:1001114 - retention time (deprecated)
		p := rtPriority(cv.Accession)
		if p >= prio {
			continue
		}
		retentionTime, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil {
			return ident, errors.Wrapf(err, "retention time of %q", result.SpectrumID)
		}
		// Check if the retention time is in minutes, otherwise assume it's seconds
		if cv.UnitAccession == "UO:0000031" || cv.UnitAccession == "MS:1000038" {
			retentionTime *= 60
		}
		ident.RetentionTime = retentionTime
		prio = p
	}
	// Collect CV terms/values for the identification, the scores are in there
	ident.Cv = append(ident.Cv, item.CvPar...)
	ident.Cv = append(ident.Cv, item.UserPar...)

	return ident, nil
}

func rtPriority(accession string) int {
	switch accession {
	case "MS:1000016":
		return 1
	case "MS:1000894":
		return 2
	case "MS:1000826":
		return 3
	case "MS:1001114":
		return 4
	}
	return math.MaxInt32
}

// Scores returns the parameters of the identification that have a
// numeric value, keyed by name (or accession when the name is empty)
func (ident *Identification) Scores() map[string]float64 {
	scores := make(map[string]float64, len(ident.Cv))
	for _, cv := range ident.Cv {
		v, err := strconv.ParseFloat(cv.Value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		key := cv.Name
		if key == "" {
			key = cv.Accession
		}
		scores[key] = v
	}
	return scores
}

// MassError returns the difference between the experimental and the
// calculated mass of the precursor in Dalton
func (ident *Identification) MassError() float64 {
	return (ident.ExpMz - ident.CalcMz) * float64(ident.Charge)
}
