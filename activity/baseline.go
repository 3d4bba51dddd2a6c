package activity

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrEmptyWindow is returned when a baseline is requested before any sample exists.
var ErrEmptyWindow = errors.New("activity: baseline requested on an empty window")

// Policy names a baseline statistic.
type Policy string

const (
	// PolicyMidRange uses (min + max) / 2 of the window values.
	PolicyMidRange Policy = "midrange"
	// PolicyMean uses the arithmetic mean of the window values.
	PolicyMean Policy = "mean"
)

// DefaultPolicy is the baseline used when none is configured.
const DefaultPolicy = PolicyMidRange

// Estimator computes the reference value the latest sample is compared against.
type Estimator interface {
	// Estimate returns the baseline of values. It is pure: the same input always
	// yields the same output. An empty input fails with ErrEmptyWindow.
	Estimate(values []int) (float64, error)
	// Policy reports which statistic the estimator computes.
	Policy() Policy
}

// ParsePolicy converts a configuration string into a Policy.
//
// Arguments:
//   - s: Policy name, case-insensitive. An empty string selects DefaultPolicy.
//
// Returns:
//   - Policy: The parsed policy.
//   - error: An error if the name is unknown.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultPolicy, nil
	case PolicyMidRange, "mid_range", "mid-range":
		return PolicyMidRange, nil
	case PolicyMean, "average":
		return PolicyMean, nil
	default:
		return "", errors.Errorf("activity: unknown baseline policy %q", s)
	}
}

// NewEstimator returns the estimator for the given policy.
func NewEstimator(p Policy) (Estimator, error) {
	switch p {
	case PolicyMidRange:
		return MidRange{}, nil
	case PolicyMean:
		return Mean{}, nil
	default:
		return nil, errors.Errorf("activity: unknown baseline policy %q", p)
	}
}

// MidRange is the midpoint between the smallest and largest value.
type MidRange struct{}

// Estimate implements Estimator.
func (MidRange) Estimate(values []int) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyWindow
	}

	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	return (float64(lo) + float64(hi)) / 2, nil
}

// Policy implements Estimator.
func (MidRange) Policy() Policy { return PolicyMidRange }

// Mean is the arithmetic mean of the values.
type Mean struct{}

// Estimate implements Estimator.
func (Mean) Estimate(values []int) (float64, error) {
	if len(values) == 0 {
		return 0, ErrEmptyWindow
	}

	var sum float64
	for _, v := range values {
		sum += float64(v)
	}

	return sum / float64(len(values)), nil
}

// Policy implements Estimator.
func (Mean) Policy() Policy { return PolicyMean }
