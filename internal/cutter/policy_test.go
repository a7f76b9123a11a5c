// internal/cutter/policy_test.go - Unit tests for completeness policies
package cutter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnyNullPolicy(t *testing.T) {
	require.True(t, AnyNullPolicy{}.Complete([]byte{255, 255, 1}))
	require.False(t, AnyNullPolicy{}.Complete([]byte{255, 0, 255}))
}

func TestCoveragePolicy(t *testing.T) {
	p := CoveragePolicy{MinFraction: 0.5}
	require.True(t, p.Complete([]byte{255, 0, 255, 0}))
	require.False(t, p.Complete([]byte{255, 0, 0, 0}))
	require.False(t, p.Complete(nil))
}

func TestNewPolicy(t *testing.T) {
	p, err := NewPolicy("any-null", 0)
	require.NoError(t, err)
	require.Equal(t, AnyNullPolicy{}, p)

	p, err = NewPolicy("coverage", 0.9)
	require.NoError(t, err)
	require.Equal(t, CoveragePolicy{MinFraction: 0.9}, p)

	_, err = NewPolicy("coverage", 0)
	require.Error(t, err)

	_, err = NewPolicy("most", 1)
	require.Error(t, err)
}
