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

package dpagg

import (
	"fmt"
	"math"
	"sort"
	"unsafe"

	"github.com/privacykit/dpsum/checks"
	"github.com/privacykit/dpsum/noise"
)

// defaultSuccessProbability is the probability with which bound inference
// avoids selecting a histogram bin that contains no inputs.
const defaultSuccessProbability = 1 - 1e-9

// ApproxBounds privately infers clamping bounds for a stream of numeric
// values whose range is unknown in advance. It maintains a logarithmic
// histogram over input magnitudes, split into a positive and a negative side:
// bin 0 covers magnitudes in [0, scale] and bin i covers magnitudes in
// (scale·baseⁱ⁻¹, scale·baseⁱ]. When a result is requested, every bin count
// is noised and the largest-magnitude bin whose noised count clears a
// threshold determines the bound estimate.
//
// ApproxBounds also does the partial-sum bookkeeping for aggregations built
// on top of it: AddToPartialSums splits a value's contribution across the
// bins it spans, so that the aggregation can later be reconstructed exactly
// for any pair of bin-boundary clamping bounds via ComputeFromPartials.
//
// Not thread-safe.
type ApproxBounds[T Summand] struct {
	// Parameters
	epsilon            float64
	numBins            int
	scale              float64
	base               float64
	successProbability float64
	mechanism          noise.Mechanism

	// boundaries[i] is the upper magnitude boundary of bin i, capped so that
	// it stays representable in T.
	boundaries []float64

	// State variables
	posBins []int64
	negBins []int64
	// Noised bin counts from the most recent GenerateResult call, kept for
	// GetBoundingReport.
	noisedPosBins []float64
	noisedNegBins []float64
}

// ApproxBoundsOptions contains the options necessary to initialize an
// ApproxBounds instance.
type ApproxBoundsOptions[T Summand] struct {
	Epsilon float64 // Privacy parameter ε. Required.
	// NumBins is the number of histogram bins per side. Defaults to enough
	// bins for the top boundary to reach T's largest magnitude.
	NumBins int
	// Base of the logarithmic bin boundaries. Defaults to 2.
	Base float64
	// Scale is the boundary of the smallest bin. Defaults to 1.
	Scale float64
	// SuccessProbability is the probability that bound inference does not
	// select an empty bin. Defaults to 1-10⁻⁹.
	SuccessProbability float64
	// MechanismBuilder constructs the mechanism that noises the bin counts.
	// Defaults to noise.NewLaplaceMechanism.
	MechanismBuilder noise.MechanismBuilder
}

// NewApproxBounds returns a new ApproxBounds instance with empty histograms.
func NewApproxBounds[T Summand](opt *ApproxBoundsOptions[T]) (*ApproxBounds[T], error) {
	if opt == nil {
		opt = &ApproxBoundsOptions[T]{} // Prevents panicking due to a nil pointer dereference.
	}
	if err := checks.CheckEpsilonStrict(opt.Epsilon); err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}
	base := opt.Base
	if base == 0 {
		base = 2
	}
	if err := checks.CheckBase(base); err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}
	scale := opt.Scale
	if scale == 0 {
		scale = 1
	}
	if err := checks.CheckScale(scale); err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}
	numBins := opt.NumBins
	if numBins == 0 {
		numBins = defaultNumBins[T](scale, base)
	}
	if err := checks.CheckNumBins(numBins); err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}
	successProbability := opt.SuccessProbability
	if successProbability == 0 {
		successProbability = defaultSuccessProbability
	}
	if err := checks.CheckSuccessProbability(successProbability); err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}
	mechBuilder := opt.MechanismBuilder
	if mechBuilder == nil {
		mechBuilder = noise.NewLaplaceMechanism
	}
	// Bin counts change by at most 1 when a single entry changes.
	mechanism, err := mechBuilder(opt.Epsilon, 1)
	if err != nil {
		return nil, fmt.Errorf("NewApproxBounds: %w", err)
	}

	maxB := maxBoundary[T]()
	boundaries := make([]float64, numBins)
	b := scale
	for i := range boundaries {
		boundaries[i] = math.Min(b, maxB)
		b *= base
	}

	return &ApproxBounds[T]{
		epsilon:            opt.Epsilon,
		numBins:            numBins,
		scale:              scale,
		base:               base,
		successProbability: successProbability,
		mechanism:          mechanism,
		boundaries:         boundaries,
		posBins:            make([]int64, numBins),
		negBins:            make([]int64, numBins),
	}, nil
}

// defaultNumBins returns the number of bins needed for the top bin boundary
// to reach the largest magnitude of T that is exactly representable as a
// boundary. The strict comparison keeps the top boundary convertible to T
// without overflow.
func defaultNumBins[T Summand](scale, base float64) int {
	maxB := maxBoundary[T]()
	numBins := 1
	for b := scale * base; b < maxB && !math.IsInf(b, 0); b *= base {
		numBins++
	}
	return numBins
}

// NumPositiveBins returns the number of histogram bins on each side.
// Aggregations built on ApproxBounds size their partial-sum vectors to it.
func (ab *ApproxBounds[T]) NumPositiveBins() int {
	return ab.numBins
}

// binIndex returns the bin that the given magnitude falls in. Magnitudes
// beyond the top boundary are capped into the top bin.
func (ab *ApproxBounds[T]) binIndex(magnitude float64) int {
	i := sort.SearchFloat64s(ab.boundaries, magnitude)
	if i >= ab.numBins {
		return ab.numBins - 1
	}
	return i
}

// binUpperBoundary returns the upper magnitude boundary of bin i as a T.
// Boundaries are capped at construction, so the conversion cannot overflow.
func (ab *ApproxBounds[T]) binUpperBoundary(i int) T {
	return T(ab.boundaries[i])
}

// binLowerBoundary returns the lower magnitude boundary of bin i as a T.
func (ab *ApproxBounds[T]) binLowerBoundary(i int) T {
	if i == 0 {
		return 0
	}
	return T(ab.boundaries[i-1])
}

// AddEntry records e in the magnitude histogram. NaN entries are ignored.
func (ab *ApproxBounds[T]) AddEntry(e T) {
	if isNaN(e) {
		return
	}
	i := ab.binIndex(math.Abs(float64(e)))
	if e >= 0 {
		ab.posBins[i]++
	} else {
		ab.negBins[i]++
	}
}

// AddToPartialSums splits e's contribution across the bins it spans and adds
// the pieces to the corresponding slots of partials. Piece i is the part of
// |e| lying between the boundaries of bin i, negated for negative entries.
// Summing the pieces of bins 0..k therefore yields e clamped to bin k's
// boundary, which is what lets ComputeFromPartials reconstruct the aggregate
// for bounds that are only fixed at result time. NaN entries are ignored.
func (ab *ApproxBounds[T]) AddToPartialSums(partials []T, e T) {
	if isNaN(e) {
		return
	}
	negative := e < 0
	magnitude := e
	if negative {
		magnitude = -e
		if magnitude < 0 {
			// Negation overflowed (e.g. math.MinInt64); treat the magnitude
			// as the top boundary.
			magnitude = ab.binUpperBoundary(ab.numBins - 1)
		}
	}
	top := ab.binIndex(float64(magnitude))
	for i := 0; i <= top; i++ {
		piece := min(magnitude, ab.binUpperBoundary(i)) - ab.binLowerBoundary(i)
		if negative {
			partials[i] -= piece
		} else {
			partials[i] += piece
		}
	}
}

// threshold returns the smallest noised bin count that is accepted as
// evidence of the bin being populated. It is calibrated so that, with
// probability successProbability, no empty bin among the 2·numBins bins
// exceeds it under the budget-scaled Laplace noise.
func (ab *ApproxBounds[T]) threshold(budget float64) float64 {
	perBinFailure := (1 - ab.successProbability) / float64(2*ab.numBins)
	lambda := 1 / (ab.epsilon * budget)
	return -lambda * math.Log(2*perBinFailure)
}

// GenerateResult noises every bin count with the given privacy budget
// fraction and returns the inferred lower and upper bounds: the boundary of
// the largest-magnitude bin on each side whose noised count clears the
// success threshold. It fails when no bin clears the threshold, which
// happens when too few values were added for the chosen epsilon and budget.
func (ab *ApproxBounds[T]) GenerateResult(budget float64) (lower, upper T, err error) {
	if err := checks.CheckPrivacyBudget(budget); err != nil {
		return 0, 0, fmt.Errorf("ApproxBounds.GenerateResult: %w", err)
	}
	noisedPos := make([]float64, ab.numBins)
	noisedNeg := make([]float64, ab.numBins)
	for i := 0; i < ab.numBins; i++ {
		if noisedPos[i], err = ab.mechanism.AddNoise(float64(ab.posBins[i]), budget); err != nil {
			return 0, 0, fmt.Errorf("ApproxBounds.GenerateResult: %w", err)
		}
		if noisedNeg[i], err = ab.mechanism.AddNoise(float64(ab.negBins[i]), budget); err != nil {
			return 0, 0, fmt.Errorf("ApproxBounds.GenerateResult: %w", err)
		}
	}
	ab.noisedPosBins, ab.noisedNegBins = noisedPos, noisedNeg
	threshold := ab.threshold(budget)

	// The upper bound is the boundary of the largest populated positive bin.
	// If the positive side is empty, it is the closest-to-zero boundary of
	// the populated negative bins, i.e. a negative upper bound.
	haveUpper := false
	for i := ab.numBins - 1; i >= 0; i-- {
		if noisedPos[i] >= threshold {
			upper = ab.binUpperBoundary(i)
			haveUpper = true
			break
		}
	}
	if !haveUpper {
		for i := 0; i < ab.numBins; i++ {
			if noisedNeg[i] >= threshold {
				upper = -ab.binLowerBoundary(i)
				haveUpper = true
				break
			}
		}
	}
	// Symmetrically for the lower bound.
	haveLower := false
	for i := ab.numBins - 1; i >= 0; i-- {
		if noisedNeg[i] >= threshold {
			lower = -ab.binUpperBoundary(i)
			haveLower = true
			break
		}
	}
	if !haveLower {
		for i := 0; i < ab.numBins; i++ {
			if noisedPos[i] >= threshold {
				lower = ab.binLowerBoundary(i)
				haveLower = true
				break
			}
		}
	}
	if !haveUpper || !haveLower {
		return 0, 0, fmt.Errorf(
			"ApproxBounds.GenerateResult: unable to infer bounds; adding more entries or increasing "+
				"epsilon (%f) or the privacy budget (%f) may help", ab.epsilon, budget)
	}
	return lower, upper, nil
}

// ComputeFromPartials reconstructs an aggregate from the partial vectors
// accumulated via AddToPartialSums, as if every entry had been clamped to
// [lower, upper] upon addition. The bounds must be bin boundaries, typically
// the ones returned by GenerateResult. valueTransform maps a clamping bound
// to its contribution; for a plain sum it is the identity.
//
// When lower and upper straddle zero the reconstruction is exact and count
// is unused. When both bounds share a sign, every entry contributes at least
// the near bound, so the total number of entries must be supplied.
func (ab *ApproxBounds[T]) ComputeFromPartials(posPartials, negPartials []T, valueTransform func(T) T, lower, upper T, count int64) (T, error) {
	if len(posPartials) != ab.numBins || len(negPartials) != ab.numBins {
		return 0, fmt.Errorf(
			"ComputeFromPartials: partial vectors must have %d elements, got %d positive and %d negative",
			ab.numBins, len(posPartials), len(negPartials))
	}
	if lower > upper {
		return 0, fmt.Errorf("ComputeFromPartials: lower (%v) must not be larger than upper (%v)", lower, upper)
	}

	var result T
	switch {
	case lower <= 0 && upper >= 0:
		if upper > 0 {
			for i := 0; i <= ab.binIndex(float64(upper)); i++ {
				result += posPartials[i]
			}
		}
		if lower < 0 {
			for i := 0; i <= ab.binIndex(math.Abs(float64(lower))); i++ {
				result += negPartials[i]
			}
		}
	case lower > 0:
		// Every entry is raised to at least lower, which the partial vectors
		// cannot express; the entry count supplies the missing information.
		if count <= 0 {
			return 0, fmt.Errorf("ComputeFromPartials: a positive count is required when both bounds are positive")
		}
		result = T(count) * valueTransform(lower)
		for i := ab.binIndex(float64(lower)) + 1; i <= ab.binIndex(float64(upper)); i++ {
			result += posPartials[i]
		}
	default: // upper < 0
		if count <= 0 {
			return 0, fmt.Errorf("ComputeFromPartials: a positive count is required when both bounds are negative")
		}
		result = T(count) * valueTransform(upper)
		for i := ab.binIndex(math.Abs(float64(upper))) + 1; i <= ab.binIndex(math.Abs(float64(lower))); i++ {
			result += negPartials[i]
		}
	}
	return result, nil
}

// BoundingReport describes the outcome of a bound inference pass: the
// inferred bounds together with the noised count of all inputs and the
// noised count of inputs falling outside the bounds. The counts are derived
// from the noised histogram, so reporting them consumes no additional
// privacy budget.
type BoundingReport[T Summand] struct {
	Lower, Upper T
	NumInputs    float64
	NumOutside   float64
}

// GetBoundingReport returns a report for the given final bounds based on the
// noised bin counts of the most recent GenerateResult call.
func (ab *ApproxBounds[T]) GetBoundingReport(lower, upper T) BoundingReport[T] {
	report := BoundingReport[T]{Lower: lower, Upper: upper}
	lowerF, upperF := float64(lower), float64(upper)
	for i := 0; i < ab.numBins; i++ {
		binLower := float64(ab.binLowerBoundary(i))
		if i < len(ab.noisedPosBins) {
			report.NumInputs += ab.noisedPosBins[i]
			// A positive bin lies outside when all of its magnitudes exceed
			// upper, or when upper itself is not positive.
			if upperF <= 0 || binLower >= upperF {
				report.NumOutside += ab.noisedPosBins[i]
			}
		}
		if i < len(ab.noisedNegBins) {
			report.NumInputs += ab.noisedNegBins[i]
			if lowerF >= 0 || binLower >= -lowerF {
				report.NumOutside += ab.noisedNegBins[i]
			}
		}
	}
	return report
}

// encodableApproxBounds can be encoded by the gob package.
type encodableApproxBounds struct {
	PosBins []int64
	NegBins []int64
}

// Serialize packs the histogram's bin counts into a Summary payload.
func (ab *ApproxBounds[T]) Serialize() (Summary, error) {
	data, err := encode(encodableApproxBounds{PosBins: ab.posBins, NegBins: ab.negBins})
	if err != nil {
		return Summary{}, fmt.Errorf("ApproxBounds.Serialize: %w", err)
	}
	return Summary{Kind: ApproxBoundsSummary, Data: data}, nil
}

// Merge adds the bin counts of a serialized histogram into this one. The
// serialized histogram must stem from an instance with an identical bin
// configuration. The receiver is left unchanged when Merge fails.
func (ab *ApproxBounds[T]) Merge(s Summary) error {
	if len(s.Data) == 0 {
		return fmt.Errorf("ApproxBounds.Merge: cannot merge a summary with no histogram data")
	}
	if s.Kind != ApproxBoundsSummary {
		return fmt.Errorf("ApproxBounds.Merge: summary of kind %v cannot be decoded as ApproxBounds data", s.Kind)
	}
	var enc encodableApproxBounds
	if err := decode(&enc, s.Data); err != nil {
		return fmt.Errorf("ApproxBounds.Merge: summary unable to be decoded: %w", err)
	}
	if len(enc.PosBins) != ab.numBins || len(enc.NegBins) != ab.numBins {
		return fmt.Errorf(
			"ApproxBounds.Merge: merged histogram must have %d bins per side, got %d positive and %d negative",
			ab.numBins, len(enc.PosBins), len(enc.NegBins))
	}
	for i := 0; i < ab.numBins; i++ {
		ab.posBins[i] += enc.PosBins[i]
		ab.negBins[i] += enc.NegBins[i]
	}
	return nil
}

// ResetState discards all recorded entries, returning the histogram to its
// post-construction state.
func (ab *ApproxBounds[T]) ResetState() {
	for i := range ab.posBins {
		ab.posBins[i] = 0
		ab.negBins[i] = 0
	}
	ab.noisedPosBins, ab.noisedNegBins = nil, nil
}

// MemoryUsed returns the memory footprint of the histogram in bytes,
// including its noise mechanism.
func (ab *ApproxBounds[T]) MemoryUsed() int64 {
	memory := int64(unsafe.Sizeof(*ab))
	memory += int64(cap(ab.boundaries)) * 8
	memory += int64(cap(ab.posBins)+cap(ab.negBins)) * 8
	memory += int64(cap(ab.noisedPosBins)+cap(ab.noisedNegBins)) * 8
	if ab.mechanism != nil {
		memory += ab.mechanism.MemoryUsed()
	}
	return memory
}
