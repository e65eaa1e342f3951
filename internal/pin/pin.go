// Package pin reads PSMs from tab delimited feature files in the layout
// used by Percolator:
//
//	SpecId <tab> Label <tab> ScanNr <tab> feature... <tab> Peptide <tab> Proteins...
//
// Label is 1 for targets and -1 for decoys. All columns after Peptide are
// protein accessions. The optional ExpMass and CalcMass columns are read
// but not used as features. A second line starting with DefaultDirection
// holds an initial weight for each feature.
package pin

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Errors returned by Read
var (
	ErrMissingColumn  = errors.New("pin: missing required column")
	ErrNoFeatures     = errors.New("pin: no feature columns")
	ErrInvalidLabel   = errors.New("pin: label must be 1 or -1")
	ErrInvalidFeature = errors.New("pin: feature value is not a finite number")
	ErrShortRow       = errors.New("pin: row has fewer columns than the header")
)

const defaultDirection = "defaultdirection"

// PSM is one row of a pin file
type PSM struct {
	ID       string
	Label    int // 1 target, -1 decoy
	ScanNr   int
	ExpMass  float64
	CalcMass float64
	Features []float64
	Peptide  string
	Proteins []string
}

// IsDecoy reports whether the row is labelled as decoy
func (p *PSM) IsDecoy() bool {
	return p.Label < 0
}

// File holds the content of a pin file
type File struct {
	FeatureNames []string
	PSMs         []PSM
	HasScanNr    bool
	// DefaultDirection has one weight per feature, or is nil when the
	// file has no DefaultDirection line
	DefaultDirection []float64
}

type layout struct {
	id, label, scanNr int
	expMass, calcMass int
	peptide           int
	features          []int
}

// Read parses a pin file
func Read(reader io.Reader) (*File, error) {
	r := csv.NewReader(reader)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrap(err, "pin: header")
	}
	l, names, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	f := &File{FeatureNames: names, HasScanNr: l.scanNr >= 0}

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "pin")
		}
		line, _ := r.FieldPos(0)
		if strings.ToLower(strings.TrimSpace(rec[0])) == defaultDirection {
			f.DefaultDirection, err = l.parseDirection(rec)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", line)
			}
			continue
		}
		psm, err := l.parseRow(rec)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		f.PSMs = append(f.PSMs, psm)
	}
	return f, nil
}

func parseHeader(header []string) (layout, []string, error) {
	l := layout{id: -1, label: -1, scanNr: -1, expMass: -1, calcMass: -1, peptide: -1}
	var names []string
	for i, h := range header {
		h = strings.TrimSpace(h)
		switch strings.ToLower(h) {
		case "specid", "psmid", "id":
			l.id = i
			continue
		case "label":
			l.label = i
			continue
		case "scannr":
			l.scanNr = i
			continue
		case "expmass":
			l.expMass = i
			continue
		case "calcmass":
			l.calcMass = i
			continue
		case "peptide":
			l.peptide = i
		case "proteins", "proteinids":
			continue
		}
		if l.peptide >= 0 {
			// Everything from Peptide on is not a feature
			continue
		}
		l.features = append(l.features, i)
		names = append(names, h)
	}
	switch {
	case l.id < 0:
		return l, nil, errors.Wrap(ErrMissingColumn, "SpecId")
	case l.label < 0:
		return l, nil, errors.Wrap(ErrMissingColumn, "Label")
	case l.peptide < 0:
		return l, nil, errors.Wrap(ErrMissingColumn, "Peptide")
	case len(l.features) == 0:
		return l, nil, ErrNoFeatures
	}
	return l, names, nil
}

func (l *layout) parseRow(rec []string) (PSM, error) {
	var psm PSM
	if len(rec) <= l.peptide {
		return psm, errors.Wrapf(ErrShortRow, "%d columns", len(rec))
	}
	psm.ID = rec[l.id]
	label, err := strconv.Atoi(strings.TrimSpace(rec[l.label]))
	if err != nil || (label != 1 && label != -1) {
		return psm, errors.Wrapf(ErrInvalidLabel, "%q", rec[l.label])
	}
	psm.Label = label
	if l.scanNr >= 0 {
		psm.ScanNr, err = strconv.Atoi(strings.TrimSpace(rec[l.scanNr]))
		if err != nil {
			return psm, errors.Wrap(err, "pin: ScanNr")
		}
	}
	if l.expMass >= 0 {
		psm.ExpMass, err = parseValue(rec[l.expMass])
		if err != nil {
			return psm, errors.Wrap(err, "ExpMass")
		}
	}
	if l.calcMass >= 0 {
		psm.CalcMass, err = parseValue(rec[l.calcMass])
		if err != nil {
			return psm, errors.Wrap(err, "CalcMass")
		}
	}
	psm.Features = make([]float64, len(l.features))
	for j, col := range l.features {
		psm.Features[j], err = parseValue(rec[col])
		if err != nil {
			return psm, errors.Wrapf(err, "column %d", col+1)
		}
	}
	psm.Peptide = rec[l.peptide]
	for _, p := range rec[l.peptide+1:] {
		if p = strings.TrimSpace(p); p != "" {
			psm.Proteins = append(psm.Proteins, p)
		}
	}
	return psm, nil
}

func (l *layout) parseDirection(rec []string) ([]float64, error) {
	w := make([]float64, len(l.features))
	for j, col := range l.features {
		if col >= len(rec) {
			return nil, errors.Wrap(ErrShortRow, "DefaultDirection")
		}
		v, err := parseValue(rec[col])
		if err != nil {
			return nil, errors.Wrap(err, "DefaultDirection")
		}
		w[j] = v
	}
	return w, nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Wrapf(ErrInvalidFeature, "%q", s)
	}
	return v, nil
}
