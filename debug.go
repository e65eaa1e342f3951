// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"regexp"
	"strconv"

	flag "github.com/spf13/pflag"
)

var debugPSMs *string // Print debug output for given PSM range

func init() {
	debugPSMs = flag.String("debug", "",
		"Print debug output for given PSM index `range` e.g. 3:6")
}

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// debugLogPSMs prints raw and normalized features, fold and final score
// of the PSMs in the debug range
func debugLogPSMs(data *dataset, x [][]float64, scores []float64, fold []int) {
	if *debugPSMs == `` {
		return
	}
	debugMin, debugMax, _ := parseIntRange(*debugPSMs, 0, len(data.psms)-1)
	for i := debugMin; i <= debugMax; i++ {
		p := &data.psms[i]
		fmt.Printf("PSM:%d id:%s spec:%s decoy:%v fold:%d score:%f\n",
			i, p.id, p.specID, p.decoy, fold[i], scores[i])
		for j, name := range data.featureNames {
			fmt.Printf("  %s raw:%g normalized:%f\n", name, p.features[j], x[i][j])
		}
	}
}

// debugIterations returns the training details for the report when
// MZRESCORE_DEBUG=1
func debugIterations(par params, cv *crossValidation) []iterationInfo {
	if !par.debug {
		return nil
	}
	return cv.info
}
