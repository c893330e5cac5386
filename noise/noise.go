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

// Package noise contains additive noise mechanisms used to achieve
// differential privacy.
package noise

// ConfidenceInterval holds the lower and upper bounds of an interval that
// contains the added noise with the requested confidence level.
type ConfidenceInterval struct {
	LowerBound, UpperBound float64
}

// Mechanism is an additive noise mechanism calibrated to a fixed epsilon and
// a fixed sensitivity. Implementations are immutable after construction; each
// noise operation consumes only the fraction of the privacy budget passed to
// it.
type Mechanism interface {
	// AddNoise adds noise to x so that the output is differentially private
	// with respect to the mechanism's sensitivity, spending the given fraction
	// of the mechanism's epsilon.
	AddNoise(x, budget float64) (float64, error)

	// NoiseConfidenceInterval returns an interval that contains the noise
	// added by AddNoise with probability confidenceLevel, for the given
	// budget fraction. The interval is centered at zero.
	NoiseConfidenceInterval(confidenceLevel, budget float64) (ConfidenceInterval, error)

	// MemoryUsed returns the memory footprint of the mechanism in bytes.
	MemoryUsed() int64
}

// MechanismBuilder constructs a Mechanism once the epsilon and the
// sensitivity of a statistic are known. Builders are plain function values
// and therefore trivially cloneable; aggregations hold on to one and invoke
// it whenever a change of bounds invalidates the previously built mechanism.
type MechanismBuilder func(epsilon, sensitivity float64) (Mechanism, error)
