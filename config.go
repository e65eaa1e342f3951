// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/524D/mzrescore/internal/fdr"
	"github.com/524D/mzrescore/internal/svm"
)

// settings holds everything that controls a run. It can be read from a
// YAML file, command line options override the values from the file.
type settings struct {
	SVM   svm.Hyperparameters `yaml:"svm"`
	Train trainConfig         `yaml:"train"`
	FDR   fdr.Config          `yaml:"fdr"`
	// TDC selects target-decoy competition per spectrum
	TDC bool `yaml:"tdc"`
	// QValue is the q-value method; empty selects from TDC
	QValue string `yaml:"qvalue"`
	PEP    string `yaml:"pep"`
}

func defaultSettings() settings {
	return settings{
		SVM:   svm.DefaultHyperparameters(),
		Train: defaultTrainConfig(),
		FDR:   fdr.DefaultConfig(),
		TDC:   true,
		PEP:   pepIsotonic,
	}
}

// load overrides the settings with the values from a YAML file.
// Unknown keys are an error.
func (s *settings) load(filename string) error {
	b, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return s.parse(b)
}

func (s *settings) parse(b []byte) error {
	err := yaml.UnmarshalStrict(b, s)
	if err != nil {
		return errors.Wrap(err, "config")
	}
	return nil
}

// newRand returns the generator for one calibration or fold assignment
func (s *settings) newRand() *rand.Rand {
	return rand.New(rand.NewSource(s.Train.Seed))
}
