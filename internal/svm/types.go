// Package svm trains the linear PSM classifier: an L2 regularised support
// vector machine with squared hinge loss, minimised by the Modified Finite
// Newton method (L2-SVM-MFN, Keerthi & DeCoste 2005) with a CGLS inner
// solver and an exact line search.
package svm

import (
	"errors"

	"github.com/524D/mzrescore/internal/linalg"
)

// Default optimisation constants
const (
	DefaultCGIterMax       = 10000 // maximum number of CGLS iterations
	DefaultSmallCGIterMax  = 10    // CGLS cap for the first, loose pass
	DefaultEpsilon         = 1e-7  // tight tolerance
	DefaultBigEpsilon      = 0.01  // loose tolerance of the first pass
	DefaultRelativeStopEps = 1e-9  // relative change of the objective to stop on
	DefaultMFNIterMax      = 50    // maximum number of Newton iterations
)

var (
	ErrEmptyTrainingSet       = errors.New("svm: empty training set")
	ErrDimensionMismatch      = errors.New("svm: feature vector has wrong dimension")
	ErrInvalidLabel           = errors.New("svm: label must be +1 or -1")
	ErrInvalidHyperparameters = errors.New("svm: invalid hyperparameters")
)

// Hyperparameters controls a single training run
type Hyperparameters struct {
	Lambda          float64 `yaml:"lambda"`            // regularisation weight
	Epsilon         float64 `yaml:"epsilon"`           // tight CGLS/optimality tolerance
	BigEpsilon      float64 `yaml:"big_epsilon"`       // loose tolerance for the first pass
	RelativeStopEps float64 `yaml:"relative_stop_eps"` // relative objective change to stop on
	CGIterMax       int     `yaml:"cg_iter_max"`
	SmallCGIterMax  int     `yaml:"small_cg_iter_max"`
	MFNIterMax      int     `yaml:"mfn_iter_max"`
	Cpos            float64 `yaml:"cpos"` // misclassification cost of positives
	Cneg            float64 `yaml:"cneg"` // misclassification cost of negatives
}

// DefaultHyperparameters returns the settings used when nothing else is
// configured
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{
		Lambda:          1.0,
		Epsilon:         DefaultEpsilon,
		BigEpsilon:      DefaultBigEpsilon,
		RelativeStopEps: DefaultRelativeStopEps,
		CGIterMax:       DefaultCGIterMax,
		SmallCGIterMax:  DefaultSmallCGIterMax,
		MFNIterMax:      DefaultMFNIterMax,
		Cpos:            1.0,
		Cneg:            1.0,
	}
}

// Validate checks that the hyperparameters can be used for training
func (hp Hyperparameters) Validate() error {
	if hp.Lambda <= 0 || hp.Epsilon <= 0 || hp.BigEpsilon <= 0 ||
		hp.RelativeStopEps < 0 || hp.CGIterMax <= 0 || hp.SmallCGIterMax <= 0 ||
		hp.MFNIterMax <= 0 || hp.Cpos <= 0 || hp.Cneg <= 0 {
		return ErrInvalidHyperparameters
	}
	return nil
}

// TrainingSet holds the labelled feature vectors. Every row has a trailing
// bias coordinate fixed to 1, so the dimension is the number of features
// plus one.
type TrainingSet struct {
	X         *linalg.Matrix
	Y         []float64 // labels, +1 or -1
	C         []float64 // cost of each example
	Positives int
	Negatives int
}

// NewTrainingSet creates an empty set for vectors with numFeatures features
func NewTrainingSet(numFeatures int) (*TrainingSet, error) {
	x, err := linalg.NewMatrix(0, numFeatures+1)
	if err != nil {
		return nil, ErrDimensionMismatch
	}
	return &TrainingSet{X: x}, nil
}

// Add appends an example. The features are copied, the bias coordinate is
// added here. The cost is set to 1 until SetCost is called.
func (s *TrainingSet) Add(features []float64, label int) error {
	_, n := s.X.Dims()
	if len(features) != n-1 {
		return ErrDimensionMismatch
	}
	switch label {
	case 1:
		s.Positives++
	case -1:
		s.Negatives++
	default:
		return ErrInvalidLabel
	}
	row := make([]float64, n)
	copy(row, features)
	row[n-1] = 1
	if err := s.X.AppendRow(row); err != nil {
		return ErrDimensionMismatch
	}
	s.Y = append(s.Y, float64(label))
	s.C = append(s.C, 1)
	return nil
}

// Len returns the number of examples
func (s *TrainingSet) Len() int {
	return len(s.Y)
}

// Dim returns the dimension of the vectors, bias included
func (s *TrainingSet) Dim() int {
	_, n := s.X.Dims()
	return n
}

// SetCost assigns cpos to all positive and cneg to all negative examples
func (s *TrainingSet) SetCost(cpos, cneg float64) {
	for i, y := range s.Y {
		if y > 0 {
			s.C[i] = cpos
		} else {
			s.C[i] = cneg
		}
	}
}

// Status tells how training ended
type Status int

const (
	MaxIterations Status = iota // iteration cap reached before the tolerance
	Optimal                     // primal and dual optimality conditions hold
	RelativeStop                // objective no longer changed significantly
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case RelativeStop:
		return "relative-stop"
	}
	return "max-iterations"
}

// Model is the result of a training run
type Model struct {
	W          []float64 // weights, last element is the bias
	Status     Status
	Iterations int       // outer (Newton) iterations done
	Objective  []float64 // objective after initialisation and each accepted step

	// Tolerances reached by the last iteration
	Residual       float64 // CGLS residual ratio, compared against the epsilon in use
	RelativeChange float64 // |dF|/|F| of the last line search step
}

// Converged is false if training stopped on the iteration cap
func (m *Model) Converged() bool {
	return m.Status != MaxIterations
}

// Score returns the classifier score of a feature vector. x holds the
// features without the bias coordinate, so len(x) must be len(w)-1.
func Score(w []float64, x []float64) float64 {
	n := len(w) - 1
	return linalg.Dot(w[:n], x) + w[n]
}

// ScoreAll scores all rows of a matrix that includes the bias column
func (m *Model) ScoreAll(x *linalg.Matrix) []float64 {
	rows, _ := x.Dims()
	scores := make([]float64, rows)
	x.MulVec(m.W, scores)
	return scores
}
