package grading

import (
	"math"
	"strconv"
	"strings"
)

// numericMatch compares a response against a numeric reference answer.
// The reference may carry tolerances after the value:
//
//	"3.14159 tol=0.01"   absolute tolerance
//	"100 reltol=0.05"    5% relative tolerance
//
// ok is false when either side is not a number, so the caller falls back to
// text matching.
func numericMatch(reference, response string) (pass, ok bool) {
	fields := strings.Fields(reference)
	if len(fields) == 0 {
		return false, false
	}
	tv, tOK := parseFloatLoose(fields[0])
	rv, rOK := parseFloatLoose(response)
	if !tOK || !rOK {
		return false, false
	}

	absTol, relTol := parseTolerances(fields[1:])
	diff := math.Abs(rv - tv)
	switch {
	case diff == 0:
		return true, true
	case absTol >= 0 && diff <= absTol:
		return true, true
	case relTol >= 0 && diff <= relTol*math.Abs(tv):
		return true, true
	}
	return false, true
}

func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	// "42 cm"
	if sp := strings.Fields(s); len(sp) == 2 {
		if v, err := strconv.ParseFloat(sp[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func parseTolerances(keys []string) (absTol float64, relTol float64) {
	absTol, relTol = -1, -1
	for _, k := range keys {
		k = strings.TrimSpace(strings.ToLower(k))
		if v, found := strings.CutPrefix(k, "tol="); found {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				absTol = f
			}
		}
		if v, found := strings.CutPrefix(k, "reltol="); found {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				relTol = f
			}
		}
	}
	return
}
