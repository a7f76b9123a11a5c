// internal/cutter/policy.go - Tile completeness policies
package cutter

import (
	"bytes"
	"fmt"
)

// CompletenessPolicy decides from a tile's validity mask whether it is written
type CompletenessPolicy interface {
	Complete(alpha []byte) bool
}

// AnyNullPolicy rejects a tile containing any no-data pixel
type AnyNullPolicy struct{}

// Complete reports whether no mask sample is zero
func (AnyNullPolicy) Complete(alpha []byte) bool {
	return bytes.IndexByte(alpha, 0) < 0
}

// CoveragePolicy accepts a tile when at least MinFraction of its pixels hold data
type CoveragePolicy struct {
	MinFraction float64
}

// Complete reports whether the valid fraction reaches MinFraction
func (p CoveragePolicy) Complete(alpha []byte) bool {
	if len(alpha) == 0 {
		return false
	}
	valid := len(alpha) - bytes.Count(alpha, []byte{0})
	return float64(valid)/float64(len(alpha)) >= p.MinFraction
}

// NewPolicy returns the named policy. minCoverage is used by "coverage" only.
func NewPolicy(name string, minCoverage float64) (CompletenessPolicy, error) {
	switch name {
	case "", "any-null":
		return AnyNullPolicy{}, nil
	case "coverage":
		if minCoverage <= 0 || minCoverage > 1 {
			return nil, fmt.Errorf("min coverage must be in (0, 1], got %v", minCoverage)
		}
		return CoveragePolicy{MinFraction: minCoverage}, nil
	default:
		return nil, fmt.Errorf("unknown completeness policy %q", name)
	}
}
