// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
)

// psmResult is the outcome for one PSM
type psmResult struct {
	ID       string
	Peptide  string
	Proteins []string `json:",omitempty"`
	Decoy    bool
	Score    float64
	QValue   float64
	PEP      float64
}

type foldWeights struct {
	Fold int
	// Normalized weights apply to the features after centring and
	// scaling, Raw weights to the features as read. The bias is last.
	Normalized []float64
	Raw        []float64
}

// rescoreReport is written as JSON
type rescoreReport struct {
	// Version of the report, used when loading reports written by
	// different versions of the software
	MzRescoreVersion    string
	FormatVersion       string
	Input               string
	FeatureNames        []string
	QValueMethod        string
	PEPMethod           string
	Pi0                 float64
	NumPSMs             int // after target-decoy competition
	NumTargets          int
	NumDecoys           int
	TestFDR             float64
	TargetsBelowTestFDR int
	Weights             []foldWeights
	PSMs                []psmResult
	DebugInfo           []iterationInfo `json:",omitempty"`
}

func newReport(par params, set settings, data *dataset, norm stdvNormalizer,
	cv *crossValidation, scores []float64, cal calibration) rescoreReport {
	r := rescoreReport{
		MzRescoreVersion: progVersion,
		FormatVersion:    outputFormatVersion,
		Input:            *par.inputFilename,
		FeatureNames:     append(append([]string(nil), data.featureNames...), "bias"),
		QValueMethod:     set.FDR.Mode.String(),
		PEPMethod:        set.PEP,
		Pi0:              cal.pi0,
		NumPSMs:          len(cal.order),
		TestFDR:          set.Train.TestFDR,
		PSMs:             make([]psmResult, len(cal.order)),
		DebugInfo:        debugIterations(par, cv),
	}
	for f, w := range cv.w {
		r.Weights = append(r.Weights, foldWeights{
			Fold:       f,
			Normalized: w,
			Raw:        norm.rawWeights(w),
		})
	}
	for k, i := range cal.order {
		p := &data.psms[i]
		r.PSMs[k] = psmResult{
			ID:       p.id,
			Peptide:  p.peptide,
			Proteins: p.proteins,
			Decoy:    p.decoy,
			Score:    scores[i],
			QValue:   cal.q[k],
			PEP:      cal.pep[k],
		}
		if p.decoy {
			r.NumDecoys++
			continue
		}
		r.NumTargets++
		if cal.q[k] <= set.Train.TestFDR {
			r.TargetsBelowTestFDR++
		}
	}
	return r
}

func writeReport(report rescoreReport, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	e := json.NewEncoder(f)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	err = e.Encode(report)
	if err != nil {
		return err
	}
	return f.Close()
}

// resultRow is one line of the tab delimited results
type resultRow struct {
	PSMId    string  `csv:"PSMId"`
	Label    int     `csv:"label"`
	Score    float64 `csv:"score"`
	QValue   float64 `csv:"q-value"`
	PEP      float64 `csv:"posterior_error_prob"`
	Peptide  string  `csv:"peptide"`
	Proteins string  `csv:"proteinIds"`
}

func writeResults(psms []psmResult, filename string) error {
	rows := make([]resultRow, len(psms))
	for i, p := range psms {
		label := 1
		if p.Decoy {
			label = -1
		}
		rows[i] = resultRow{
			PSMId:    p.ID,
			Label:    label,
			Score:    p.Score,
			QValue:   p.QValue,
			PEP:      p.PEP,
			Peptide:  p.Peptide,
			Proteins: strings.Join(p.Proteins, ","),
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Comma = '\t'
	err = gocsv.MarshalCSV(&rows, gocsv.NewSafeCSVWriter(w))
	if err != nil {
		return err
	}
	return f.Close()
}
