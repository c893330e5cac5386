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

package noise

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/privacykit/dpsum/checks"
	"github.com/privacykit/dpsum/rand"
)

// granularityParam determines the resolution of the numerical noise that is
// being generated relative to the sensitivity and privacy parameter epsilon.
// Larger values result in more fine grained noise, but increase the chance of
// sampling inaccuracies due to overflows. The probability of an overflow is
// less than 2⁻¹⁰⁰⁰, if the granularity parameter is set to a value of 2⁴⁰ or
// less and the epsilon passed to AddNoise is at least 2⁻⁵⁰.
//
// This parameter should be a power of 2.
var granularityParam = math.Exp2(40)

// LaplaceMechanism adds Laplace noise calibrated to a fixed epsilon and
// sensitivity. The noise is based on a geometric sampling mechanism that is
// robust against unintentional privacy leaks due to artifacts of floating
// point arithmetic.
type LaplaceMechanism struct {
	epsilon     float64
	sensitivity float64
}

// NewLaplaceMechanism validates epsilon and sensitivity and returns a
// LaplaceMechanism calibrated to them. It is the default MechanismBuilder of
// the aggregations in this module.
func NewLaplaceMechanism(epsilon, sensitivity float64) (Mechanism, error) {
	if err := checks.CheckEpsilonVeryStrict(epsilon); err != nil {
		return nil, fmt.Errorf("NewLaplaceMechanism: %w", err)
	}
	if err := checks.CheckSensitivity(sensitivity); err != nil {
		return nil, fmt.Errorf("NewLaplaceMechanism: %w", err)
	}
	return &LaplaceMechanism{epsilon: epsilon, sensitivity: sensitivity}, nil
}

// Epsilon returns the epsilon the mechanism was calibrated to.
func (lm *LaplaceMechanism) Epsilon() float64 {
	return lm.epsilon
}

// Sensitivity returns the sensitivity the mechanism was calibrated to.
func (lm *LaplaceMechanism) Sensitivity() float64 {
	return lm.sensitivity
}

// AddNoise adds Laplace noise to x, spending the given fraction of the
// mechanism's epsilon.
func (lm *LaplaceMechanism) AddNoise(x, budget float64) (float64, error) {
	if err := checks.CheckPrivacyBudget(budget); err != nil {
		return 0, fmt.Errorf("AddNoise: %w", err)
	}
	return addLaplaceFloat64(x, lm.epsilon*budget, lm.sensitivity), nil
}

// NoiseConfidenceInterval returns the interval around zero that contains the
// noise added by AddNoise with probability confidenceLevel for the given
// budget fraction.
func (lm *LaplaceMechanism) NoiseConfidenceInterval(confidenceLevel, budget float64) (ConfidenceInterval, error) {
	if err := checks.CheckConfidenceLevel(confidenceLevel); err != nil {
		return ConfidenceInterval{}, fmt.Errorf("NoiseConfidenceInterval: %w", err)
	}
	if err := checks.CheckPrivacyBudget(budget); err != nil {
		return ConfidenceInterval{}, fmt.Errorf("NoiseConfidenceInterval: %w", err)
	}
	lambda := lm.sensitivity / (lm.epsilon * budget)
	return computeConfidenceIntervalLaplace(0, lambda, 1-confidenceLevel), nil
}

// MemoryUsed returns the memory footprint of the mechanism in bytes.
func (lm *LaplaceMechanism) MemoryUsed() int64 {
	return int64(unsafe.Sizeof(*lm))
}

func (lm *LaplaceMechanism) String() string {
	return fmt.Sprintf("Laplace mechanism (epsilon=%f, sensitivity=%f)", lm.epsilon, lm.sensitivity)
}

// addLaplaceFloat64 adds Laplace noise scaled to the given epsilon and
// l1Sensitivity to the specified float64. The sample is drawn from a discrete
// distribution over a power-of-two grid, which avoids the privacy leaks of
// naive floating point Laplace sampling.
func addLaplaceFloat64(x, epsilon, l1Sensitivity float64) float64 {
	granularity := ceilPowerOfTwo((l1Sensitivity / epsilon) / granularityParam)
	sample := twoSidedGeometric(granularity * epsilon / (l1Sensitivity + granularity))
	return roundToMultipleOfPowerOfTwo(x, granularity) + float64(sample)*granularity
}

// computeConfidenceIntervalLaplace computes a confidence interval that
// contains the raw value x from which float64 noisedX is computed with a
// probability equal to 1 - alpha with the given lambda.
func computeConfidenceIntervalLaplace(noisedX, lambda, alpha float64) ConfidenceInterval {
	z := inverseCDFLaplace(lambda, alpha/2)
	// Because of the symmetry of the Laplace distribution, -z corresponds to
	// the (1 - alpha/2)-quantile of the distribution, meaning that the
	// interval [z, -z] contains 1-alpha of the probability mass. Deriving the
	// (1 - alpha/2)-quantile from the (alpha/2)-quantile and not vice versa is
	// a deliberate choice: alpha tends to be very small and alpha/2 is more
	// accurately representable as a float64 than 1 - alpha/2.
	return ConfidenceInterval{LowerBound: noisedX + z, UpperBound: noisedX - z}
}

// inverseCDFLaplace computes the quantile z satisfying Pr[Y <= z] = p for a
// random variable Y that is Laplace distributed with the specified lambda
// and a mean of zero.
func inverseCDFLaplace(lambda, p float64) float64 {
	if p < 0.5 {
		return lambda * math.Log(2*p)
	}
	return -lambda * math.Log(2*(1-p))
}

// geometric draws a sample from a geometric distribution with parameter
//
//	p = 1 - e^-λ.
//
// More precisely, it returns the number of Bernoulli trials until the first
// success where the success probability is p = 1 - e^-λ. The returned sample
// is truncated to the max int64 value.
//
// Note that to ensure that a truncation happens with probability less than
// 10⁻⁶, λ must be greater than 2⁻⁵⁹.
func geometric(lambda float64) int64 {
	// Return truncated sample in the case that the sample exceeds the max int64.
	if rand.Uniform() > -1.0*math.Expm1(-1.0*lambda*math.MaxInt64) {
		return math.MaxInt64
	}

	// Perform a binary search for the sample in the interval from 1 to max
	// int64. Each iteration splits the interval in two and randomly keeps
	// either the left or the right subinterval depending on the respective
	// probability of the sample being contained in them. The search ends once
	// the interval only contains a single sample.
	var left int64 = 0              // exclusive bound
	var right int64 = math.MaxInt64 // inclusive bound

	for left+1 < right {
		// Compute a midpoint that divides the probability mass of the current
		// interval approximately evenly between the left and right
		// subinterval. The resulting midpoint will be less or equal to the
		// arithmetic mean of the interval, which reduces the expected number
		// of iterations of the binary search.
		mid := left - int64(math.Floor((math.Log(0.5)+math.Log1p(math.Exp(lambda*float64(left-right))))/lambda))
		// Ensure that mid is contained in the search interval. This is a
		// safeguard to account for potential mathematical inaccuracies due to
		// finite precision arithmetic.
		if mid <= left {
			mid = left + 1
		} else if mid >= right {
			mid = right - 1
		}

		// Probability that the sample is at most mid, i.e.,
		//   q = Pr[X ≤ mid | left < X ≤ right]
		// where X denotes the sample. The value of q should be approximately
		// one half.
		q := math.Expm1(lambda*float64(left-mid)) / math.Expm1(lambda*float64(left-right))
		if rand.Uniform() <= q {
			right = mid
		} else {
			left = mid
		}
	}
	return right
}

// twoSidedGeometric draws a sample from a geometric distribution that is
// mirrored at 0. The non-negative part of the distribution's PDF matches
// the PDF of a geometric distribution of parameter p = 1 - e^-λ that is
// shifted to the left by 1 and scaled accordingly.
func twoSidedGeometric(lambda float64) int64 {
	var sample int64 = 0
	var sign int64 = -1
	// Keep a sample of 0 only if the sign is positive. Otherwise, the
	// probability of 0 would be twice as high as it should be.
	for sample == 0 && sign == -1 {
		sample = geometric(lambda) - 1
		sign = int64(rand.Sign())
	}
	return sample * sign
}
