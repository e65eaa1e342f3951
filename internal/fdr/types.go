// Package fdr estimates false discovery rates from target/decoy
// competition: p-values and Storey's pi0, q-values by mix-max or plain
// target-decoy counting, and posterior error probabilities.
package fdr

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Errors returned by the estimators
var (
	ErrEmptyList   = errors.New("fdr: empty list")
	ErrNoPValues   = errors.New("fdr: no p-values")
	ErrNoDecoys    = errors.New("fdr: list contains no decoys")
	ErrInvalidPi0  = errors.New("fdr: pi0 must be in (0,1]")
	ErrSeparation  = errors.New("fdr: insufficient separation between target and decoy populations")
	ErrTooFewBins  = errors.New("fdr: too few distinct score bins for logistic PEP estimation")
	ErrUnknownMode = errors.New("fdr: unknown q-value mode")
)

// ScoredPSM is a score with its target/decoy label
type ScoredPSM struct {
	Score   float64
	IsDecoy bool
}

// CombinedList holds targets and decoys together. Most functions in this
// package expect it sorted best first, see SortBestFirst.
type CombinedList []ScoredPSM

// SortBestFirst sorts by descending score, or ascending when lowBetter.
// Equal scores keep their order.
func (l CombinedList) SortBestFirst(lowBetter bool) {
	if lowBetter {
		sort.SliceStable(l, func(i, j int) bool { return l[i].Score < l[j].Score })
		return
	}
	sort.SliceStable(l, func(i, j int) bool { return l[i].Score > l[j].Score })
}

// Counts returns the number of targets and decoys
func (l CombinedList) Counts() (targets, decoys int) {
	for _, psm := range l {
		if psm.IsDecoy {
			decoys++
		} else {
			targets++
		}
	}
	return targets, decoys
}

// Mode selects how q-values are computed
type Mode int

const (
	// ModeMixMax corrects the decoy count for the fraction of null
	// targets pi0
	ModeMixMax Mode = iota
	// ModeTDC counts decoys as false targets, with a +1 correction
	ModeTDC
)

func (m Mode) String() string {
	switch m {
	case ModeMixMax:
		return "mix-max"
	case ModeTDC:
		return "tdc"
	}
	return "unknown"
}

// ParseMode accepts the names returned by Mode.String
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "mix-max", "mixmax":
		return ModeMixMax, nil
	case "tdc":
		return ModeTDC, nil
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", s)
}

// UnmarshalYAML reads a mode by name
func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	mode, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// MarshalYAML writes the mode name
func (m Mode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// Defaults for Config
const (
	DefaultNumLambda   = 100
	DefaultMaxLambda   = 0.5
	DefaultNumBoot     = 200
	DefaultMaxBootSize = 1000
	DefaultIntervals   = 500
	DefaultSeed        = 1
)

// Config holds the settings of one calibration. Rand and Logger are not
// shared between concurrent calibrations.
type Config struct {
	NumLambda   int     `yaml:"num_lambda"`    // pi0 grid size
	MinLambda   float64 `yaml:"min_lambda"`    // grid points below this are skipped
	MaxLambda   float64 `yaml:"max_lambda"`    // largest grid point
	NumBoot     int     `yaml:"num_boot"`      // bootstrap draws for pi0
	MaxBootSize int     `yaml:"max_boot_size"` // cap on the bootstrap sample size
	Intervals   int     `yaml:"intervals"`     // bins for the logistic PEP

	// NoTerminate replaces calibration errors on degenerate input by a
	// fallback: pi0 = 1, or jittered scores for binning
	NoTerminate bool `yaml:"no_terminate"`
	Mode        Mode `yaml:"mode"`
	// SkipDecoysPlusOne drops the +1 correction of ModeTDC
	SkipDecoysPlusOne bool `yaml:"skip_decoys_plus_one"`

	Rand   *rand.Rand  `yaml:"-"`
	Logger *zap.Logger `yaml:"-"`
}

// DefaultConfig returns the default settings with a generator seeded
// with DefaultSeed
func DefaultConfig() Config {
	return Config{
		NumLambda:   DefaultNumLambda,
		MaxLambda:   DefaultMaxLambda,
		NumBoot:     DefaultNumBoot,
		MaxBootSize: DefaultMaxBootSize,
		Intervals:   DefaultIntervals,
		Mode:        ModeMixMax,
		Rand:        rand.New(rand.NewSource(DefaultSeed)),
	}
}

func (c *Config) rng() *rand.Rand {
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(DefaultSeed))
	}
	return c.Rand
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
