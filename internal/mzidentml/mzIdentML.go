package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	pepID2PepIdx     map[string]int
	evidenceID2EvIdx map[string]int
	identList        []identRef
	content          mzIdentMLContent
}

type identRef struct {
	specResultIdx int // Index into SpectrumIdentificationResult
	specItemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is one peptide-spectrum match
type Identification struct {
	ID            string // id of the SpectrumIdentificationItem
	PepSeq        string
	PepID         string
	Charge        int
	Rank          int
	IsDecoy       bool
	ModMass       float64
	ExpMz         float64
	CalcMz        float64
	SpecID        string
	RetentionTime float64
	Proteins      []string
	Cv            []CvParam
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
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift, as other
	// corresponding cvParam's don't carry this info either
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
}

type peptideEvidence struct {
	ID            string `xml:"id,attr"`
	PeptideRef    string `xml:"peptide_ref,attr"`
	DBSequenceRef string `xml:"dBSequence_ref,attr"`
	IsDecoy       bool   `xml:"isDecoy,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []CvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ID                       string               `xml:"id,attr"`
	ChargeState              int                  `xml:"chargeState,attr"`
	Rank                     int                  `xml:"rank,attr"`
	PeptideRef               string               `xml:"peptide_ref,attr"`
	ExperimentalMassToCharge float64              `xml:"experimentalMassToCharge,attr"`
	CalculatedMassToCharge   float64              `xml:"calculatedMassToCharge,attr"`
	PeptideEvidenceRef       []peptideEvidenceRef `xml:"PeptideEvidenceRef"`
	CvPar                    []CvParam            `xml:"cvParam"`
	UserPar                  []CvParam            `xml:"userParam"`
}

type peptideEvidenceRef struct {
	PeptideEvidenceRef string `xml:"peptideEvidence_ref,attr"`
}

// CvParam is a cvParam or userParam element
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
