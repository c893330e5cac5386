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
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/privacykit/dpsum/stattestutils"
)

// getNoiselessBSum returns a manually bounded sum whose noise mechanism is a
// passthrough.
func getNoiselessBSum(t *testing.T, lower, upper float64) *BoundedSum[float64] {
	t.Helper()
	bs, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon:          ln3,
		Lower:            ptr(lower),
		Upper:            ptr(upper),
		MechanismBuilder: noNoiseBuilder,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	return bs
}

// getNoiselessAutoBSum returns an automatically bounded sum backed by the
// deterministic 4-bin histogram, with passthrough noise everywhere.
func getNoiselessAutoBSum(t *testing.T) *BoundedSum[float64] {
	t.Helper()
	bs, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon:          tenten,
		ApproxBounds:     getNoiselessAB(t),
		MechanismBuilder: noNoiseBuilder,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	return bs
}

func TestNewBoundedSumArgumentChecking(t *testing.T) {
	for _, tc := range []struct {
		desc    string
		opt     *BoundedSumOptions[float64]
		wantErr bool
	}{
		{"manual bounds", &BoundedSumOptions[float64]{Epsilon: ln3, Lower: ptr(-1.0), Upper: ptr(5.0)}, false},
		{"automatic bounds", &BoundedSumOptions[float64]{Epsilon: ln3}, false},
		{"nil options", nil, true},
		{"zero epsilon", &BoundedSumOptions[float64]{Lower: ptr(-1.0), Upper: ptr(5.0)}, true},
		{"infinite epsilon", &BoundedSumOptions[float64]{Epsilon: math.Inf(1), Lower: ptr(-1.0), Upper: ptr(5.0)}, true},
		{"only lower bound", &BoundedSumOptions[float64]{Epsilon: ln3, Lower: ptr(-1.0)}, true},
		{"only upper bound", &BoundedSumOptions[float64]{Epsilon: ln3, Upper: ptr(5.0)}, true},
		{"lower bound larger than upper", &BoundedSumOptions[float64]{Epsilon: ln3, Lower: ptr(5.0), Upper: ptr(-1.0)}, true},
		{"NaN lower bound", &BoundedSumOptions[float64]{Epsilon: ln3, Lower: ptr(math.NaN()), Upper: ptr(5.0)}, true},
		{"infinite upper bound", &BoundedSumOptions[float64]{Epsilon: ln3, Lower: ptr(-1.0), Upper: ptr(math.Inf(1))}, true},
	} {
		_, err := NewBoundedSum[float64](tc.opt)
		if (err != nil) != tc.wantErr {
			t.Errorf("NewBoundedSum: when %s got error %v, wantErr %t", tc.desc, err, tc.wantErr)
		}
	}
}

func TestNewBoundedSumRejectsManualBoundsTogetherWithHistogram(t *testing.T) {
	_, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon:      tenten,
		Lower:        ptr(-1.0),
		Upper:        ptr(5.0),
		ApproxBounds: getNoiselessAB(t),
	})
	if err == nil {
		t.Errorf("NewBoundedSum: manual bounds together with a histogram, didn't return an error")
	}
}

func TestNewBoundedSumRejectsPathologicalLowerBound(t *testing.T) {
	// The most negative value of an integer type cannot be negated within the
	// type, so the sensitivity of the sum would overflow.
	_, err := NewBoundedSum[int32](&BoundedSumOptions[int32]{
		Epsilon: ln3,
		Lower:   ptr(int32(math.MinInt32)),
		Upper:   ptr(int32(5)),
	})
	if err == nil {
		t.Errorf("NewBoundedSum: lower bound of math.MinInt32, didn't return an error")
	}
	// math.MinInt64 converts to the float64 2⁶³, which compares equal to the
	// rounded type limit, so this case needs the exact integer-domain check.
	_, err = NewBoundedSum[int64](&BoundedSumOptions[int64]{
		Epsilon: ln3,
		Lower:   ptr(int64(math.MinInt64)),
		Upper:   ptr(int64(5)),
	})
	if err == nil {
		t.Errorf("NewBoundedSum: lower bound of math.MinInt64, didn't return an error")
	}
	// -max(T) itself is the allowed borderline.
	_, err = NewBoundedSum[int64](&BoundedSumOptions[int64]{
		Epsilon: ln3,
		Lower:   ptr(int64(math.MinInt64 + 1)),
		Upper:   ptr(int64(5)),
	})
	if err != nil {
		t.Errorf("NewBoundedSum: lower bound of math.MinInt64+1 got unexpected error: %v", err)
	}
}

func TestNewBoundedSumSurfacesMechanismErrorsAtConstruction(t *testing.T) {
	_, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon:          ln3,
		Lower:            ptr(0.0),
		Upper:            ptr(10.0),
		MechanismBuilder: failingBuilder,
	})
	if err == nil {
		t.Errorf("NewBoundedSum: failing mechanism builder with manual bounds, didn't return an error")
	}
}

func TestBoundedSumClampsEntriesAndIgnoresNaN(t *testing.T) {
	bs := getNoiselessBSum(t, 0, 10)
	for _, e := range []float64{3, 7, math.NaN(), 15} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	// 15 is clamped to 10, the NaN contributes nothing.
	if got.Value != 20 {
		t.Errorf("GenerateResult: got %f, want 20", got.Value)
	}
}

func TestBoundedSumNegativeEntriesAreClampedToLower(t *testing.T) {
	bs := getNoiselessBSum(t, -5, 5)
	for _, e := range []float64{-7, 2} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	if got.Value != -3 {
		t.Errorf("GenerateResult: got %f, want -3", got.Value)
	}
}

func TestBoundedSumInt64RoundsNoisedResult(t *testing.T) {
	bs, err := NewBoundedSum[int64](&BoundedSumOptions[int64]{
		Epsilon: tenten,
		Lower:   ptr(int64(0)),
		Upper:   ptr(int64(10)),
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	for _, e := range []int64{3, 7, 15} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	// With ε = 10¹⁰ the noise is almost surely below the rounding threshold.
	if got.Value != 20 {
		t.Errorf("GenerateResult: got %d, want 20", got.Value)
	}
}

func TestBoundedSumGenerateResultWithZeroBudgetReturnsEmptyOutput(t *testing.T) {
	bs := getNoiselessBSum(t, 0, 10)
	if err := bs.AddEntry(3); err != nil {
		t.Fatalf("AddEntry: got unexpected error: %v", err)
	}
	got, err := bs.GenerateResult(0)
	if err != nil {
		t.Fatalf("GenerateResult: zero budget got unexpected error: %v", err)
	}
	if diff := cmp.Diff(Output[float64]{}, got); diff != "" {
		t.Errorf("GenerateResult: zero budget output differs (-want +got):\n%s", diff)
	}
	// A zero budget spends nothing and does not finalize the epoch.
	if _, err := bs.GenerateResult(1); err != nil {
		t.Errorf("GenerateResult: after a zero-budget call got unexpected error: %v", err)
	}
}

func TestBoundedSumGenerateResultInvalidBudgetReturnsError(t *testing.T) {
	for _, budget := range []float64{-0.5, 1.5, math.NaN()} {
		bs := getNoiselessBSum(t, 0, 10)
		if _, err := bs.GenerateResult(budget); err == nil {
			t.Errorf("GenerateResult: budget %f, didn't return an error", budget)
		}
	}
}

func TestBoundedSumIsNotReenterableAfterResult(t *testing.T) {
	bs := getNoiselessBSum(t, 0, 10)
	if _, err := bs.GenerateResult(1); err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	if err := bs.AddEntry(3); err == nil {
		t.Errorf("AddEntry: after GenerateResult, didn't return an error")
	}
	if _, err := bs.GenerateResult(1); err == nil {
		t.Errorf("GenerateResult: repeated call, didn't return an error")
	}
	s, err := getNoiselessBSum(t, 0, 10).Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	if err := bs.Merge(s); err == nil {
		t.Errorf("Merge: after GenerateResult, didn't return an error")
	}
}

func TestBoundedSumResetStateStartsAFreshEpoch(t *testing.T) {
	bs := getNoiselessBSum(t, 0, 10)
	for _, e := range []float64{3, 7} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	if _, err := bs.GenerateResult(1); err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	bs.ResetState()
	for _, e := range []float64{3, 7} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: after ResetState got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: after ResetState got unexpected error: %v", err)
	}
	if got.Value != 10 {
		t.Errorf("GenerateResult: after ResetState got %f, want 10", got.Value)
	}
}

func TestBoundedSumMergeCombinesShards(t *testing.T) {
	shardA := getNoiselessBSum(t, -5, 5)
	shardB := getNoiselessBSum(t, -5, 5)
	for _, e := range []float64{1, 2} {
		if err := shardA.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	if err := shardB.AddEntry(-4); err != nil {
		t.Fatalf("AddEntry: got unexpected error: %v", err)
	}
	s, err := shardB.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	if err := shardA.Merge(s); err != nil {
		t.Fatalf("Merge: got unexpected error: %v", err)
	}
	got, err := shardA.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	if got.Value != -1 {
		t.Errorf("GenerateResult: merged shards got %f, want -1", got.Value)
	}
}

func TestBoundedSumMergeMatchesSingleAccumulator(t *testing.T) {
	entriesA := []float64{1, 2, -3, 7}
	entriesB := []float64{-5, 0.5}

	single := getNoiselessAutoBSum(t)
	for _, e := range append(append([]float64{}, entriesA...), entriesB...) {
		if err := single.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	shardA := getNoiselessAutoBSum(t)
	for _, e := range entriesA {
		if err := shardA.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	shardB := getNoiselessAutoBSum(t)
	for _, e := range entriesB {
		if err := shardB.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	s, err := shardB.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	if err := shardA.Merge(s); err != nil {
		t.Fatalf("Merge: got unexpected error: %v", err)
	}

	wantSummary, err := single.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	gotSummary, err := shardA.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	if diff := cmp.Diff(wantSummary, gotSummary); diff != "" {
		t.Errorf("merged shards and single accumulator serialize differently (-want +got):\n%s", diff)
	}
}

func TestBoundedSumSerializeRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		desc  string
		newBS func() *BoundedSum[float64]
	}{
		{"manual bounds", func() *BoundedSum[float64] { return getNoiselessBSum(t, -5, 5) }},
		{"automatic bounds", func() *BoundedSum[float64] { return getNoiselessAutoBSum(t) }},
	} {
		bs := tc.newBS()
		for _, e := range []float64{1, 2, -3} {
			if err := bs.AddEntry(e); err != nil {
				t.Fatalf("AddEntry: when %s got unexpected error: %v", tc.desc, err)
			}
		}
		s1, err := bs.Serialize()
		if err != nil {
			t.Fatalf("Serialize: when %s got unexpected error: %v", tc.desc, err)
		}
		zeroed := tc.newBS()
		if err := zeroed.Merge(s1); err != nil {
			t.Fatalf("Merge: when %s got unexpected error: %v", tc.desc, err)
		}
		s2, err := zeroed.Serialize()
		if err != nil {
			t.Fatalf("Serialize: when %s got unexpected error: %v", tc.desc, err)
		}
		if diff := cmp.Diff(s1, s2); diff != "" {
			t.Errorf("serialize-merge-serialize round trip differs when %s (-want +got):\n%s", tc.desc, diff)
		}
	}
}

func TestBoundedSumMergeCompatibilityChecking(t *testing.T) {
	manual := getNoiselessBSum(t, -5, 5)
	auto := getNoiselessAutoBSum(t)
	manualSummary, err := manual.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	autoSummary, err := auto.Serialize()
	if err != nil {
		t.Fatalf("Serialize: got unexpected error: %v", err)
	}
	for _, tc := range []struct {
		desc     string
		receiver *BoundedSum[float64]
		summary  Summary
	}{
		{"empty data", manual, Summary{Kind: BoundedSumSummary}},
		{"wrong kind", manual, Summary{Kind: ApproxBoundsSummary, Data: []byte{1}}},
		{"undecodable data", manual, Summary{Kind: BoundedSumSummary, Data: []byte{0xff}}},
		{"automatic payload into manual instance", manual, autoSummary},
		{"manual payload into automatic instance", auto, manualSummary},
	} {
		if err := tc.receiver.Merge(tc.summary); err == nil {
			t.Errorf("Merge: when %s, didn't return an error", tc.desc)
		}
	}
}

func TestBoundedSumAutoBoundsEndToEnd(t *testing.T) {
	bs := getNoiselessAutoBSum(t)
	for _, e := range []float64{1, 2, 3, 7, math.NaN()} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	// The histogram infers bounds (0, 8), symmetrized to (-8, 8); no entry is
	// clamped, so the noiseless result is the exact sum.
	if got.Value != 13 {
		t.Errorf("GenerateResult: got %f, want 13", got.Value)
	}
	if got.ErrorReport == nil || got.ErrorReport.BoundingReport == nil {
		t.Fatalf("GenerateResult: missing bounding report for automatic bounds")
	}
	wantReport := BoundingReport[float64]{Lower: -8, Upper: 8, NumInputs: 4, NumOutside: 0}
	if diff := cmp.Diff(wantReport, *got.ErrorReport.BoundingReport, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("GenerateResult: bounding report differs (-want +got):\n%s", diff)
	}

	lower, err := bs.Lower()
	if err != nil {
		t.Fatalf("Lower: got unexpected error: %v", err)
	}
	upper, err := bs.Upper()
	if err != nil {
		t.Fatalf("Upper: got unexpected error: %v", err)
	}
	if lower != -8 || upper != 8 {
		t.Errorf("bounds after GenerateResult: got (%f, %f), want (-8, 8)", lower, upper)
	}
}

func TestBoundedSumAutoBoundsSymmetrizeTowardsLargerMagnitude(t *testing.T) {
	bs := getNoiselessAutoBSum(t)
	// Negative entries dominate in magnitude.
	for _, e := range []float64{1, -5} {
		if err := bs.AddEntry(e); err != nil {
			t.Fatalf("AddEntry: got unexpected error: %v", err)
		}
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	// Inferred bounds (-8, 1) symmetrize to (-8, 8): nothing is clamped.
	if got.Value != -4 {
		t.Errorf("GenerateResult: got %f, want -4", got.Value)
	}
	lower, err := bs.Lower()
	if err != nil {
		t.Fatalf("Lower: got unexpected error: %v", err)
	}
	upper, err := bs.Upper()
	if err != nil {
		t.Fatalf("Upper: got unexpected error: %v", err)
	}
	if lower != -8 || upper != 8 {
		t.Errorf("bounds after GenerateResult: got (%f, %f), want (-8, 8)", lower, upper)
	}
}

func TestBoundedSumAutoBoundsHandlesExtremeInt64Entries(t *testing.T) {
	// A histogram whose top bin reaches the int64 limit: the inferred upper
	// bound must stay convertible and the symmetrized lower bound negatable.
	ab, err := NewApproxBounds[int64](&ApproxBoundsOptions[int64]{
		Epsilon:          tenten,
		NumBins:          64,
		MechanismBuilder: noNoiseBuilder,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize ApproxBounds: %v", err)
	}
	bs, err := NewBoundedSum[int64](&BoundedSumOptions[int64]{
		Epsilon:          tenten,
		ApproxBounds:     ab,
		MechanismBuilder: noNoiseBuilder,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	if err := bs.AddEntry(math.MaxInt64); err != nil {
		t.Fatalf("AddEntry: got unexpected error: %v", err)
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	want := int64(maxBoundary[int64]())
	if got.Value != want {
		t.Errorf("GenerateResult: got %d, want %d", got.Value, want)
	}
	lower, err := bs.Lower()
	if err != nil {
		t.Fatalf("Lower: got unexpected error: %v", err)
	}
	upper, err := bs.Upper()
	if err != nil {
		t.Fatalf("Upper: got unexpected error: %v", err)
	}
	if lower != -want || upper != want {
		t.Errorf("bounds after GenerateResult: got (%d, %d), want (%d, %d)", lower, upper, -want, want)
	}
}

func TestBoundedSumAutoBoundsWithoutEntriesReturnsError(t *testing.T) {
	bs := getNoiselessAutoBSum(t)
	if _, err := bs.GenerateResult(1); err == nil {
		t.Errorf("GenerateResult: automatic bounds without entries, didn't return an error")
	}
}

func TestBoundedSumAutoBoundsPropagatesMechanismErrors(t *testing.T) {
	bs, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon:          tenten,
		ApproxBounds:     getNoiselessAB(t),
		MechanismBuilder: failingBuilder,
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	if err := bs.AddEntry(3); err != nil {
		t.Fatalf("AddEntry: got unexpected error: %v", err)
	}
	if _, err := bs.GenerateResult(1); err == nil {
		t.Errorf("GenerateResult: failing mechanism builder, didn't return an error")
	}
}

func TestBoundedSumBoundsAccessorsBeforeInference(t *testing.T) {
	manual := getNoiselessBSum(t, -5, 5)
	lower, err := manual.Lower()
	if err != nil {
		t.Fatalf("Lower: got unexpected error: %v", err)
	}
	upper, err := manual.Upper()
	if err != nil {
		t.Fatalf("Upper: got unexpected error: %v", err)
	}
	if lower != -5 || upper != 5 {
		t.Errorf("manual bounds: got (%f, %f), want (-5, 5)", lower, upper)
	}

	auto := getNoiselessAutoBSum(t)
	if _, err := auto.Lower(); err == nil {
		t.Errorf("Lower: automatic bounds before GenerateResult, didn't return an error")
	}
	if _, err := auto.Upper(); err == nil {
		t.Errorf("Upper: automatic bounds before GenerateResult, didn't return an error")
	}
}

func TestBoundedSumNoiseConfidenceInterval(t *testing.T) {
	bs, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
		Epsilon: ln3,
		Lower:   ptr(0.0),
		Upper:   ptr(10.0),
	})
	if err != nil {
		t.Fatalf("Couldn't initialize BoundedSum: %v", err)
	}
	interval, err := bs.NoiseConfidenceInterval(0.95, 1)
	if err != nil {
		t.Fatalf("NoiseConfidenceInterval: got unexpected error: %v", err)
	}
	if interval.LowerBound >= 0 || interval.UpperBound <= 0 {
		t.Errorf("NoiseConfidenceInterval: got (%f, %f), want an interval straddling 0",
			interval.LowerBound, interval.UpperBound)
	}
	if math.Abs(interval.LowerBound+interval.UpperBound) > 1e-9 {
		t.Errorf("NoiseConfidenceInterval: got (%f, %f), want a zero-centered interval",
			interval.LowerBound, interval.UpperBound)
	}

	auto := getNoiselessAutoBSum(t)
	if _, err := auto.NoiseConfidenceInterval(0.95, 1); err == nil {
		t.Errorf("NoiseConfidenceInterval: automatic bounds, didn't return an error")
	}
}

func TestBoundedSumResultCarriesConfidenceInterval(t *testing.T) {
	bs := getNoiselessBSum(t, 0, 10)
	if err := bs.AddEntry(3); err != nil {
		t.Fatalf("AddEntry: got unexpected error: %v", err)
	}
	got, err := bs.GenerateResult(1)
	if err != nil {
		t.Fatalf("GenerateResult: got unexpected error: %v", err)
	}
	if got.ErrorReport == nil || got.ErrorReport.NoiseConfidenceInterval == nil {
		t.Errorf("GenerateResult: missing noise confidence interval in error report")
	}
}

func TestBoundedSumMemoryUsed(t *testing.T) {
	manual := getNoiselessBSum(t, 0, 10)
	if got := manual.MemoryUsed(); got <= 0 {
		t.Errorf("MemoryUsed: manual bounds got %d, want a positive footprint", got)
	}
	auto := getNoiselessAutoBSum(t)
	if manual.MemoryUsed() >= auto.MemoryUsed() {
		t.Errorf("MemoryUsed: automatic bounds should cost more than manual bounds, got %d vs %d",
			auto.MemoryUsed(), manual.MemoryUsed())
	}
}

func TestBoundedSumLaplaceStatistics(t *testing.T) {
	// With ε = ln(3) and bounds [0, 10] the noise has scale 10/ln(3) ≈ 9.1.
	// The sample mean over many runs concentrates around the true sum.
	const numberOfSamples = 5000
	samples := make([]float64, numberOfSamples)
	for i := range samples {
		bs, err := NewBoundedSum[float64](&BoundedSumOptions[float64]{
			Epsilon: ln3,
			Lower:   ptr(0.0),
			Upper:   ptr(10.0),
		})
		if err != nil {
			t.Fatalf("Couldn't initialize BoundedSum: %v", err)
		}
		for _, e := range []float64{3, 7, 15} {
			if err := bs.AddEntry(e); err != nil {
				t.Fatalf("AddEntry: got unexpected error: %v", err)
			}
		}
		out, err := bs.GenerateResult(1)
		if err != nil {
			t.Fatalf("GenerateResult: got unexpected error: %v", err)
		}
		samples[i] = out.Value
	}
	mean := stattestutils.SampleMean(samples)
	// The standard error of the mean is about 9.1·√2/√5000 ≈ 0.18.
	if math.Abs(mean-20) > 1.0 {
		t.Errorf("sample mean of noised sums is %f, want approximately 20", mean)
	}
}
