package mzidentml

import (
	"errors"
	"math"
	"strings"
	"testing"
)

const testDoc = `<?xml version="1.0" encoding="ISO-8859-1"?>
<MzIdentML id="test" version="1.1.0" xmlns="http://psidev.info/psi/pi/mzIdentML/1.1">
 <SequenceCollection>
  <Peptide id="pep1"><PeptideSequence>PEPTIDEK</PeptideSequence>
   <Modification location="2" monoisotopicMassDelta="15.994915"/>
  </Peptide>
  <Peptide id="pep2"><PeptideSequence>KEDITPEP</PeptideSequence></Peptide>
  <Peptide id="pep3"><PeptideSequence>SHAREDR</PeptideSequence></Peptide>
  <PeptideEvidence id="ev1" peptide_ref="pep1" dBSequence_ref="PROT1" isDecoy="false"/>
  <PeptideEvidence id="ev2" peptide_ref="pep2" dBSequence_ref="DECOY_PROT1" isDecoy="true"/>
  <PeptideEvidence id="ev3a" peptide_ref="pep3" dBSequence_ref="PROT2" isDecoy="false"/>
  <PeptideEvidence id="ev3b" peptide_ref="pep3" dBSequence_ref="DECOY_PROT2" isDecoy="true"/>
 </SequenceCollection>
 <DataCollection><AnalysisData><SpectrumIdentificationList id="sil">
  <SpectrumIdentificationResult id="sir1" spectrumID="scan=1">
   <SpectrumIdentificationItem id="sii1" rank="1" chargeState="2" peptide_ref="pep1"
     experimentalMassToCharge="500.26" calculatedMassToCharge="500.25">
    <PeptideEvidenceRef peptideEvidence_ref="ev1"/>
    <cvParam accession="MS:1002049" name="MS-GF:RawScore" value="120"/>
    <cvParam accession="MS:1002053" name="MS-GF:EValue" value="1.5e-8"/>
    <userParam name="comment" value="not a number"/>
   </SpectrumIdentificationItem>
   <SpectrumIdentificationItem id="sii2" rank="2" chargeState="2" peptide_ref="pep2"
     experimentalMassToCharge="500.26" calculatedMassToCharge="500.3">
    <PeptideEvidenceRef peptideEvidence_ref="ev2"/>
    <cvParam accession="MS:1002049" name="MS-GF:RawScore" value="12"/>
   </SpectrumIdentificationItem>
   <cvParam accession="MS:1000894" name="retention time" value="1200"/>
   <cvParam accession="MS:1000016" name="scan start time" value="20.5" unitAccession="UO:0000031"/>
  </SpectrumIdentificationResult>
  <SpectrumIdentificationResult id="sir2" spectrumID="scan=2">
   <SpectrumIdentificationItem id="sii3" rank="1" chargeState="3" peptide_ref="pep3">
    <PeptideEvidenceRef peptideEvidence_ref="ev3a"/>
    <PeptideEvidenceRef peptideEvidence_ref="ev3b"/>
    <cvParam accession="MS:1002049" name="" value="77"/>
   </SpectrumIdentificationItem>
  </SpectrumIdentificationResult>
  <SpectrumIdentificationResult id="sir3" spectrumID="scan=3">
   <SpectrumIdentificationItem id="sii4" rank="1" chargeState="2" peptide_ref="nope"/>
  </SpectrumIdentificationResult>
 </SpectrumIdentificationList></AnalysisData></DataCollection>
</MzIdentML>`

func TestRead(t *testing.T) {
	f, err := Read(strings.NewReader(testDoc))
	if err != nil {
		t.Fatalf("Read: error return %v", err)
	}
	n := f.NumIdents()
	if n != 4 {
		t.Errorf("NumIdents is %d, expected 4", n)
	}

	ident, err := f.Ident(0)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if ident.PepSeq != "PEPTIDEK" || ident.ID != "sii1" || ident.SpecID != "scan=1" {
		t.Errorf("Ident 0: unexpected %+v", ident)
	}
	if ident.IsDecoy {
		t.Errorf("Ident 0 should be a target")
	}
	if ident.Rank != 1 || ident.Charge != 2 {
		t.Errorf("Ident 0: rank %d charge %d", ident.Rank, ident.Charge)
	}
	if math.Abs(ident.ModMass-15.994915) > 1e-9 {
		t.Errorf("Ident 0: ModMass %v", ident.ModMass)
	}
	// scan start time wins over retention time, and is converted from minutes
	if ident.RetentionTime != 20.5*60 {
		t.Errorf("Ident 0: RetentionTime %v, expected %v", ident.RetentionTime, 20.5*60)
	}
	if math.Abs(ident.MassError()-0.02) > 1e-9 {
		t.Errorf("Ident 0: MassError %v", ident.MassError())
	}
	scores := ident.Scores()
	if len(scores) != 2 {
		t.Errorf("Ident 0: scores %v, expected 2 numeric values", scores)
	}
	if scores["MS-GF:RawScore"] != 120 || scores["MS-GF:EValue"] != 1.5e-8 {
		t.Errorf("Ident 0: scores %v", scores)
	}

	ident, err = f.Ident(1)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if !ident.IsDecoy || ident.Rank != 2 {
		t.Errorf("Ident 1: IsDecoy %v rank %d", ident.IsDecoy, ident.Rank)
	}
	if len(ident.Proteins) != 1 || ident.Proteins[0] != "DECOY_PROT1" {
		t.Errorf("Ident 1: proteins %v", ident.Proteins)
	}

	// A peptide shared between a target and a decoy protein is a target
	ident, err = f.Ident(2)
	if err != nil {
		t.Fatalf("Ident: error return %v", err)
	}
	if ident.IsDecoy {
		t.Errorf("Ident 2 should be a target")
	}
	if ident.RetentionTime != -1 {
		t.Errorf("Ident 2: RetentionTime %v, expected -1", ident.RetentionTime)
	}
	if ident.Scores()["MS:1002049"] != 77 {
		t.Errorf("Ident 2: scores %v", ident.Scores())
	}

	_, err = f.Ident(3)
	if !errors.Is(err, ErrUnknownPeptide) {
		t.Errorf("Ident 3: error return %v, should be ErrUnknownPeptide", err)
	}
	_, err = f.Ident(4)
	if err != ErrInvalidIdentIndex {
		t.Errorf("Ident: error return %v, should be ErrInvalidIdentIndex", err)
	}
}

func TestReadInvalid(t *testing.T) {
	_, err := Read(strings.NewReader("<MzIdentML><unclosed>"))
	if err == nil {
		t.Errorf("Read: expected an error for truncated input")
	}
}
