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

// Package dpagg contains differentially private aggregation primitives.
package dpagg

import (
	"fmt"
	"math"
	"unsafe"

	log "github.com/golang/glog"
	"github.com/privacykit/dpsum/checks"
	"github.com/privacykit/dpsum/noise"
)

// boundsBudgetFraction is the fraction of the privacy budget that
// GenerateResult spends on bound inference when bounds were not supplied
// manually; the remainder noises the sum itself. The even split is a fixed
// accuracy trade-off, not a tunable parameter.
const boundsBudgetFraction = 0.5

// defaultConfidenceLevel is the confidence level of the advisory noise
// interval attached to results.
const defaultConfidenceLevel = 0.95

// BoundedSum calculates a differentially private sum of a stream of numeric
// values, bounding the influence any single value can have on the result.
//
// When clamping bounds are supplied at construction, every entry is clamped
// into [lower, upper] as it arrives and added to a single running total.
// When they are not, entries instead feed a privacy-preserving magnitude
// histogram (ApproxBounds) together with per-bin partial sums; GenerateResult
// then spends part of its budget inferring bounds from the histogram and
// reconstructs the clamped sum from the partials before noising it.
//
// For distributed aggregation, per-shard instances accumulate independently
// and are combined via Serialize and Merge into a single instance, on which
// GenerateResult is called exactly once.
//
// Not thread-safe.
type BoundedSum[T Summand] struct {
	// Parameters
	epsilon          float64
	lower, upper     T
	boundsFixed      bool
	mechanismBuilder noise.MechanismBuilder
	// approxBounds is present exactly when bounds were not supplied manually;
	// its presence discriminates the two accumulation modes.
	approxBounds *ApproxBounds[T]

	// State variables
	//
	// With manual bounds posSum holds a single element, the running clamped
	// total, and negSum is empty. With automatic bounds both mirror the
	// histogram's bins: posSum[i] accumulates partial contributions of
	// nonnegative entries in magnitude bin i, negSum[i] those of negative
	// entries.
	posSum []T
	negSum []T
	count  int64
	// mechanism is built once the sensitivity, i.e. max(|lower|, |upper|), is
	// known, and discarded whenever the bounds change.
	mechanism noise.Mechanism
	state     aggregationState
}

// BoundedSumOptions contains the options necessary to initialize a BoundedSum.
type BoundedSumOptions[T Summand] struct {
	Epsilon float64 // Privacy parameter ε. Required.
	// Lower and Upper are the clamping bounds. Supply both to clamp entries on
	// arrival, or neither to have bounds inferred privately at result time;
	// supplying exactly one is a configuration error.
	Lower *T
	Upper *T
	// ApproxBounds is the histogram used for bound inference. It may only be
	// set when Lower and Upper are not; when all three are unset, a default
	// histogram with the same ε is used.
	ApproxBounds *ApproxBounds[T]
	// MechanismBuilder constructs the mechanism that noises the sum. Defaults
	// to noise.NewLaplaceMechanism.
	MechanismBuilder noise.MechanismBuilder
}

// NewBoundedSum returns a new BoundedSum with a zero total.
func NewBoundedSum[T Summand](opt *BoundedSumOptions[T]) (*BoundedSum[T], error) {
	if opt == nil {
		opt = &BoundedSumOptions[T]{} // Prevents panicking due to a nil pointer dereference.
	}
	if err := checks.CheckEpsilonStrict(opt.Epsilon); err != nil {
		return nil, fmt.Errorf("NewBoundedSum: %w", err)
	}
	mechBuilder := opt.MechanismBuilder
	if mechBuilder == nil {
		mechBuilder = noise.NewLaplaceMechanism
	}

	if (opt.Lower == nil) != (opt.Upper == nil) {
		return nil, fmt.Errorf("NewBoundedSum: Lower and Upper must be set together or not at all")
	}
	if opt.Lower != nil {
		if opt.ApproxBounds != nil {
			return nil, fmt.Errorf("NewBoundedSum: ApproxBounds must not be set when Lower and Upper are")
		}
		lower, upper := *opt.Lower, *opt.Upper
		if err := checks.CheckBounds(float64(lower), float64(upper)); err != nil {
			return nil, fmt.Errorf("NewBoundedSum: %w", err)
		}
		if err := checkLowerBound(lower); err != nil {
			return nil, fmt.Errorf("NewBoundedSum: %w", err)
		}
		bs := &BoundedSum[T]{
			epsilon:          opt.Epsilon,
			lower:            lower,
			upper:            upper,
			boundsFixed:      true,
			mechanismBuilder: mechBuilder,
			posSum:           make([]T, 1),
			state:            defaultState,
		}
		// Building eagerly surfaces mechanism configuration errors at
		// construction time instead of at result time.
		if err := bs.ensureMechanism(); err != nil {
			return nil, fmt.Errorf("NewBoundedSum: %w", err)
		}
		return bs, nil
	}

	ab := opt.ApproxBounds
	if ab == nil {
		var err error
		ab, err = NewApproxBounds[T](&ApproxBoundsOptions[T]{Epsilon: opt.Epsilon})
		if err != nil {
			return nil, fmt.Errorf("NewBoundedSum: %w", err)
		}
	}
	numBins := ab.NumPositiveBins()
	return &BoundedSum[T]{
		epsilon:          opt.Epsilon,
		mechanismBuilder: mechBuilder,
		approxBounds:     ab,
		posSum:           make([]T, numBins),
		negSum:           make([]T, numBins),
		state:            defaultState,
	}, nil
}

// ensureMechanism builds the noise mechanism from the current bounds if it
// has not been built yet.
func (bs *BoundedSum[T]) ensureMechanism() error {
	if bs.mechanism != nil {
		return nil
	}
	sensitivity := math.Max(math.Abs(float64(bs.lower)), math.Abs(float64(bs.upper)))
	mechanism, err := bs.mechanismBuilder(bs.epsilon, sensitivity)
	if err != nil {
		return err
	}
	bs.mechanism = mechanism
	return nil
}

// AddEntry adds a value to the sum. NaN values are silently ignored.
func (bs *BoundedSum[T]) AddEntry(e T) error {
	if bs.state != defaultState {
		return fmt.Errorf("BoundedSum cannot accept new entries: %s", bs.state.errorMessage())
	}
	if isNaN(e) {
		return nil
	}
	bs.count++
	if bs.approxBounds == nil {
		clamped, err := Clamp(e, bs.lower, bs.upper)
		if err != nil {
			return fmt.Errorf("BoundedSum.AddEntry: %w", err)
		}
		bs.posSum[0] += clamped
		return nil
	}
	bs.approxBounds.AddEntry(e)
	if e >= 0 {
		bs.approxBounds.AddToPartialSums(bs.posSum, e)
	} else {
		bs.approxBounds.AddToPartialSums(bs.negSum, e)
	}
	return nil
}

// Output holds the noised result of a bounded sum, together with an optional
// error report describing the inferred bounds and the expected noise spread.
type Output[T Summand] struct {
	Value       T
	ErrorReport *ErrorReport[T]
}

// ErrorReport carries advisory accuracy information attached to an Output:
// a bounding report when bounds were inferred automatically, and a confidence
// interval for the added noise when one could be computed. Both fields may be
// nil; their absence is never an error.
type ErrorReport[T Summand] struct {
	BoundingReport          *BoundingReport[T]
	NoiseConfidenceInterval *noise.ConfidenceInterval
}

// GenerateResult computes the differentially private sum, spending the given
// fraction of the privacy budget. A zero budget returns an empty Output
// without performing any computation or spending anything.
//
// When bounds are inferred automatically, half of the budget pays for the
// bound inference and the remainder noises the sum. The inferred bounds are
// symmetrized around zero towards the larger magnitude before clamping, which
// reduces clamping error without changing the sensitivity.
//
// GenerateResult finalizes the privacy epoch: it can be called at most once
// between construction (or ResetState) and the next ResetState.
func (bs *BoundedSum[T]) GenerateResult(budget float64) (Output[T], error) {
	if bs.state != defaultState {
		return Output[T]{}, fmt.Errorf("BoundedSum cannot generate a result: %s", bs.state.errorMessage())
	}
	if budget == 0 {
		return Output[T]{}, nil
	}
	if err := checks.CheckPrivacyBudget(budget); err != nil {
		return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
	}

	remainingBudget := budget
	sum := bs.posSum[0]
	var boundingReport *BoundingReport[T]
	if bs.approxBounds != nil {
		boundsBudget := budget * boundsBudgetFraction
		remainingBudget = budget - boundsBudget

		inferredLower, inferredUpper, err := bs.approxBounds.GenerateResult(boundsBudget)
		if err != nil {
			return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
		}
		lower := min(inferredLower, -inferredUpper)
		upper := max(inferredUpper, -inferredLower)
		if err := checkLowerBound(lower); err != nil {
			return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
		}
		bs.lower, bs.upper, bs.boundsFixed = lower, upper, true
		// Sensitivity changed with the bounds, so any previously built
		// mechanism is stale.
		bs.mechanism = nil

		sum, err = bs.approxBounds.ComputeFromPartials(bs.posSum, bs.negSum, func(x T) T { return x }, lower, upper, bs.count)
		if err != nil {
			return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
		}
		report := bs.approxBounds.GetBoundingReport(lower, upper)
		boundingReport = &report
	}

	if err := bs.ensureMechanism(); err != nil {
		return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
	}

	// The confidence interval is advisory; failing to compute one does not
	// fail the result.
	var confidenceInterval *noise.ConfidenceInterval
	if interval, err := bs.mechanism.NoiseConfidenceInterval(defaultConfidenceLevel, remainingBudget); err == nil {
		confidenceInterval = &interval
	} else {
		log.Warningf("BoundedSum.GenerateResult: omitting noise confidence interval: %v", err)
	}

	noised, err := bs.mechanism.AddNoise(float64(sum), remainingBudget)
	if err != nil {
		return Output[T]{}, fmt.Errorf("BoundedSum.GenerateResult: %w", err)
	}
	bs.state = resultReturned

	var value T
	if isIntegral[T]() {
		value = T(math.Round(noised))
	} else {
		value = T(noised)
	}
	output := Output[T]{Value: value}
	if boundingReport != nil || confidenceInterval != nil {
		output.ErrorReport = &ErrorReport[T]{
			BoundingReport:          boundingReport,
			NoiseConfidenceInterval: confidenceInterval,
		}
	}
	return output, nil
}

// NoiseConfidenceInterval returns an interval containing the noise that
// GenerateResult would add to the sum with probability confidenceLevel, for
// the given budget fraction. It is only answerable when the bounds, and
// therefore the mechanism, are fixed in advance; with automatic bounds the
// interval depends on bounds that are not determined until result time, so
// the call always fails.
func (bs *BoundedSum[T]) NoiseConfidenceInterval(confidenceLevel, budget float64) (noise.ConfidenceInterval, error) {
	if bs.approxBounds != nil {
		return noise.ConfidenceInterval{}, fmt.Errorf(
			"BoundedSum.NoiseConfidenceInterval: not available with automatic bounds before the result is generated")
	}
	if bs.mechanism == nil {
		return noise.ConfidenceInterval{}, fmt.Errorf("BoundedSum.NoiseConfidenceInterval: the noise mechanism has not been built yet")
	}
	return bs.mechanism.NoiseConfidenceInterval(confidenceLevel, budget)
}

// Lower returns the lower clamping bound. It fails when bounds are inferred
// automatically and no result has been generated yet.
func (bs *BoundedSum[T]) Lower() (T, error) {
	if !bs.boundsFixed {
		return 0, fmt.Errorf("BoundedSum.Lower: bounds have not been determined yet")
	}
	return bs.lower, nil
}

// Upper returns the upper clamping bound. It fails when bounds are inferred
// automatically and no result has been generated yet.
func (bs *BoundedSum[T]) Upper() (T, error) {
	if !bs.boundsFixed {
		return 0, fmt.Errorf("BoundedSum.Upper: bounds have not been determined yet")
	}
	return bs.upper, nil
}

// encodableBoundedSum can be encoded by the gob package.
type encodableBoundedSum[T Summand] struct {
	PosSum []T
	NegSum []T
	Count  int64
	// BoundsData is the embedded histogram summary; empty with manual bounds.
	BoundsData []byte
}

// Serialize packs the accumulated partial state into a Summary payload. The
// payload contains no noised data, so serializing spends no privacy budget.
func (bs *BoundedSum[T]) Serialize() (Summary, error) {
	enc := encodableBoundedSum[T]{PosSum: bs.posSum, NegSum: bs.negSum, Count: bs.count}
	if bs.approxBounds != nil {
		boundsSummary, err := bs.approxBounds.Serialize()
		if err != nil {
			return Summary{}, fmt.Errorf("BoundedSum.Serialize: %w", err)
		}
		enc.BoundsData = boundsSummary.Data
	}
	data, err := encode(enc)
	if err != nil {
		return Summary{}, fmt.Errorf("BoundedSum.Serialize: %w", err)
	}
	return Summary{Kind: BoundedSumSummary, Data: data}, nil
}

// Merge adds the partial state of a serialized BoundedSum into this one. The
// serialized instance must stem from a BoundedSum of identical configuration:
// same mode and, with automatic bounds, an identical histogram setup. The
// receiver is left unchanged when Merge fails.
//
// Feeding all entries into one instance and splitting them across instances
// that are merged afterwards yield the same accumulated state.
func (bs *BoundedSum[T]) Merge(s Summary) error {
	if bs.state != defaultState {
		return fmt.Errorf("BoundedSum cannot merge: %s", bs.state.errorMessage())
	}
	if len(s.Data) == 0 {
		return fmt.Errorf("BoundedSum.Merge: cannot merge a summary with no sum data")
	}
	if s.Kind != BoundedSumSummary {
		return fmt.Errorf("BoundedSum.Merge: summary of kind %v cannot be decoded as BoundedSum data", s.Kind)
	}
	var enc encodableBoundedSum[T]
	if err := decode(&enc, s.Data); err != nil {
		return fmt.Errorf("BoundedSum.Merge: summary unable to be decoded: %w", err)
	}
	if len(enc.PosSum) != len(bs.posSum) || len(enc.NegSum) != len(bs.negSum) {
		return fmt.Errorf(
			"BoundedSum.Merge: merged partial sums must have %d positive and %d negative elements, got %d and %d",
			len(bs.posSum), len(bs.negSum), len(enc.PosSum), len(enc.NegSum))
	}
	if (bs.approxBounds == nil) != (len(enc.BoundsData) == 0) {
		return fmt.Errorf("BoundedSum.Merge: merged instance must use the same bounding mode")
	}
	if bs.approxBounds != nil {
		// The histogram validates its part of the payload before mutating, so
		// merging it first keeps the whole operation atomic.
		if err := bs.approxBounds.Merge(Summary{Kind: ApproxBoundsSummary, Data: enc.BoundsData}); err != nil {
			return fmt.Errorf("BoundedSum.Merge: %w", err)
		}
	}
	for i := range bs.posSum {
		bs.posSum[i] += enc.PosSum[i]
	}
	for i := range bs.negSum {
		bs.negSum[i] += enc.NegSum[i]
	}
	bs.count += enc.Count
	return nil
}

// ResetState discards all accumulated entries and starts a new privacy epoch,
// returning the instance to its post-construction state. With automatic
// bounds the histogram is reset as well and the bounds become undetermined
// again, forcing the mechanism to be rebuilt once new bounds are known.
func (bs *BoundedSum[T]) ResetState() {
	for i := range bs.posSum {
		bs.posSum[i] = 0
	}
	for i := range bs.negSum {
		bs.negSum[i] = 0
	}
	bs.count = 0
	if bs.approxBounds != nil {
		bs.approxBounds.ResetState()
		bs.lower, bs.upper, bs.boundsFixed = 0, 0, false
		bs.mechanism = nil
	}
	bs.state = defaultState
}

// MemoryUsed returns the memory footprint of the accumulator in bytes,
// including its histogram and noise mechanism.
func (bs *BoundedSum[T]) MemoryUsed() int64 {
	var t T
	memory := int64(unsafe.Sizeof(*bs))
	memory += int64(cap(bs.posSum)+cap(bs.negSum)) * int64(unsafe.Sizeof(t))
	if bs.approxBounds != nil {
		memory += bs.approxBounds.MemoryUsed()
	}
	if bs.mechanism != nil {
		memory += bs.mechanism.MemoryUsed()
	}
	return memory
}
