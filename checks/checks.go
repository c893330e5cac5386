//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package checks contains checks for differentially private functions.
package checks

import (
	"fmt"
	"math"

	log "github.com/golang/glog"
)

// CheckEpsilonVeryStrict returns an error if ε is +∞, NaN, or less than 2⁻⁵⁰.
//
// The 2⁻⁵⁰ limit is required by the secure noise generation: smaller epsilon
// values break the accuracy guarantees of the geometric sampler.
func CheckEpsilonVeryStrict(epsilon float64) error {
	if epsilon < math.Exp2(-50.0) || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("Epsilon is %f, must be at least 2^-50 and finite", epsilon)
	}
	return nil
}

// CheckEpsilonStrict returns an error if ε is nonpositive, +∞, or NaN.
func CheckEpsilonStrict(epsilon float64) error {
	if epsilon <= 0 || math.IsInf(epsilon, 0) || math.IsNaN(epsilon) {
		return fmt.Errorf("Epsilon is %f, must be strictly positive and finite", epsilon)
	}
	return nil
}

// CheckSensitivity returns an error if the sensitivity is nonpositive, +∞, or NaN.
func CheckSensitivity(sensitivity float64) error {
	if sensitivity <= 0 || math.IsInf(sensitivity, 0) || math.IsNaN(sensitivity) {
		return fmt.Errorf("Sensitivity is %f, must be strictly positive and finite", sensitivity)
	}
	return nil
}

// CheckPrivacyBudget returns an error if the privacy budget fraction is not
// contained in (0, 1].
func CheckPrivacyBudget(budget float64) error {
	if math.IsNaN(budget) || budget <= 0 || budget > 1 {
		return fmt.Errorf("PrivacyBudget is %f, must be within (0, 1]", budget)
	}
	return nil
}

// CheckConfidenceLevel returns an error if the confidence level is not
// contained in (0, 1).
func CheckConfidenceLevel(confidenceLevel float64) error {
	if math.IsNaN(confidenceLevel) || confidenceLevel <= 0 || confidenceLevel >= 1 {
		return fmt.Errorf("ConfidenceLevel is %f, must be within (0, 1)", confidenceLevel)
	}
	return nil
}

// CheckBounds returns an error if lower is larger than upper or if either
// bound is NaN or infinite. Bounds are passed as float64 regardless of the
// summand type; integer bounds convert losslessly for the magnitudes where
// the check matters.
func CheckBounds(lower, upper float64) error {
	if math.IsNaN(lower) {
		return fmt.Errorf("Lower bound cannot be NaN")
	}
	if math.IsNaN(upper) {
		return fmt.Errorf("Upper bound cannot be NaN")
	}
	if math.IsInf(lower, 0) {
		return fmt.Errorf("Lower bound cannot be infinity")
	}
	if math.IsInf(upper, 0) {
		return fmt.Errorf("Upper bound cannot be infinity")
	}
	if lower > upper {
		return fmt.Errorf("Upper bound (%f) must be larger than lower bound (%f)", upper, lower)
	}
	if lower == upper {
		log.Warningf("Lower bound is equal to upper bound: all added elements will be clamped to %f", upper)
	}
	return nil
}

// CheckLowerBoundMagnitude returns an error if lower is more negative than
// -maxMagnitude, the largest magnitude representable by the summand type.
// Such a lower bound cannot be negated without overflow when computing the
// sensitivity of the sum.
func CheckLowerBoundMagnitude(lower, maxMagnitude float64) error {
	if lower < -maxMagnitude {
		return fmt.Errorf(
			"Lower bound (%f) cannot be higher in magnitude than the max numeric limit (%f). "+
				"If manually bounding, please increase it by at least 1", lower, maxMagnitude)
	}
	return nil
}

// CheckNumBins returns an error if the histogram bin count is not positive.
func CheckNumBins(numBins int) error {
	if numBins < 1 {
		return fmt.Errorf("NumBins is %d, must be at least 1", numBins)
	}
	return nil
}

// CheckBase returns an error if the histogram base is not finite and larger than 1.
func CheckBase(base float64) error {
	if math.IsNaN(base) || math.IsInf(base, 0) || base <= 1 {
		return fmt.Errorf("Base is %f, must be greater than 1 and finite", base)
	}
	return nil
}

// CheckScale returns an error if the histogram scale is not finite and positive.
func CheckScale(scale float64) error {
	if math.IsNaN(scale) || math.IsInf(scale, 0) || scale <= 0 {
		return fmt.Errorf("Scale is %f, must be strictly positive and finite", scale)
	}
	return nil
}

// CheckSuccessProbability returns an error if the bound-inference success
// probability is not contained in (0, 1).
func CheckSuccessProbability(successProbability float64) error {
	if math.IsNaN(successProbability) || successProbability <= 0 || successProbability >= 1 {
		return fmt.Errorf("SuccessProbability is %f, must be within (0, 1)", successProbability)
	}
	return nil
}
