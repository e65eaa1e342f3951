// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/524D/mzrescore/internal/mzidentml"
	"github.com/524D/mzrescore/internal/pin"
)

// ErrNoPSMs is returned for input without any usable PSM
var ErrNoPSMs = errors.New("no PSMs in input")

// psm is a peptide-spectrum match with its raw features
type psm struct {
	id       string
	specID   string // PSMs with the same specID compete for the spectrum
	peptide  string
	proteins []string
	decoy    bool
	features []float64
}

// dataset is the input of the rescoring
type dataset struct {
	featureNames []string
	psms         []psm
	// initDir holds one weight per feature or is nil
	initDir []float64
}

// Score names containing one of these are probabilities or expectation
// values, which are used as -log10 of the value
var logScoreNames = []string{"evalue", "e-value", "expect", "pvalue", "p-value"}

const minLogScore = 1e-300

func readInput(filename string, logger *zap.Logger) (*dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var data *dataset
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mzid", ".mzidentml":
		mzIdentML, err := mzidentml.Read(f)
		if err != nil {
			return nil, err
		}
		data, err = fromMzIdentML(&mzIdentML, logger)
		if err != nil {
			return nil, err
		}
	default:
		p, err := pin.Read(f)
		if err != nil {
			return nil, err
		}
		data = fromPin(p)
	}
	if len(data.psms) == 0 {
		return nil, errors.Wrap(ErrNoPSMs, filename)
	}
	logger.Info("read input",
		zap.String("file", filename),
		zap.Int("psms", len(data.psms)),
		zap.Int("features", len(data.featureNames)))
	return data, nil
}

func fromPin(p *pin.File) *dataset {
	data := &dataset{
		featureNames: p.FeatureNames,
		initDir:      p.DefaultDirection,
		psms:         make([]psm, len(p.PSMs)),
	}
	for i := range p.PSMs {
		r := &p.PSMs[i]
		specID := r.ID
		if p.HasScanNr {
			specID = strconv.Itoa(r.ScanNr) + "_" + strconv.FormatFloat(r.ExpMass, 'g', -1, 64)
		}
		data.psms[i] = psm{
			id:       r.ID,
			specID:   specID,
			peptide:  r.Peptide,
			proteins: r.Proteins,
			decoy:    r.IsDecoy(),
			features: r.Features,
		}
	}
	return data
}

func isLogScore(name string) bool {
	n := strings.ToLower(name)
	for _, s := range logScoreNames {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// fromMzIdentML uses the numeric scores of the identifications as
// features. A score that is missing for an identification is set to the
// lowest value the score has in the file.
func fromMzIdentML(m *mzidentml.MzIdentML, logger *zap.Logger) (*dataset, error) {
	n := m.NumIdents()
	idents := make([]mzidentml.Identification, 0, n)
	scores := make([]map[string]float64, 0, n)
	present := make(map[string]int)
	for i := 0; i < n; i++ {
		ident, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		s := ident.Scores()
		for k := range s {
			present[k]++
		}
		idents = append(idents, ident)
		scores = append(scores, s)
	}
	scoreNames := make([]string, 0, len(present))
	for k := range present {
		scoreNames = append(scoreNames, k)
	}
	sort.Strings(scoreNames)

	minScore := make([]float64, len(scoreNames))
	for j, name := range scoreNames {
		minScore[j] = math.Inf(1)
		for _, s := range scores {
			if v, ok := s[name]; ok {
				minScore[j] = math.Min(minScore[j], featureValue(name, v))
			}
		}
		if present[name] < n {
			logger.Debug("score missing for some identifications",
				zap.String("score", name), zap.Int("missing", n-present[name]))
		}
	}

	data := &dataset{}
	for _, name := range scoreNames {
		if isLogScore(name) {
			name = "-log10 " + name
		}
		data.featureNames = append(data.featureNames, name)
	}
	data.featureNames = append(data.featureNames, "rank", "charge", "peptideLength", "absMassError")

	for i, ident := range idents {
		features := make([]float64, 0, len(data.featureNames))
		for j, name := range scoreNames {
			v, ok := scores[i][name]
			if ok {
				features = append(features, featureValue(name, v))
			} else {
				features = append(features, minScore[j])
			}
		}
		features = append(features,
			float64(ident.Rank),
			float64(ident.Charge),
			float64(len(ident.PepSeq)),
			math.Abs(ident.MassError()))
		data.psms = append(data.psms, psm{
			id:       ident.ID,
			specID:   ident.SpecID,
			peptide:  ident.PepSeq,
			proteins: ident.Proteins,
			decoy:    ident.IsDecoy,
			features: features,
		})
	}
	return data, nil
}

func featureValue(name string, v float64) float64 {
	if isLogScore(name) {
		return -math.Log10(math.Max(v, minLogScore))
	}
	return v
}

// competition keeps the best scoring PSM of each spectrum; on equal
// scores the first one wins. The returned indices are in input order.
func competition(specIDs []string, scores []float64) []int {
	best := make(map[string]int, len(specIDs))
	for i, id := range specIDs {
		j, ok := best[id]
		if !ok || scores[i] > scores[j] {
			best[id] = i
		}
	}
	idx := make([]int, 0, len(best))
	for _, i := range best {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}
