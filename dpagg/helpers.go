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
	"reflect"

	"github.com/privacykit/dpsum/checks"
	"golang.org/x/exp/constraints"
)

// Summand is the set of numeric types the aggregations in this package
// accept. Unsigned integers are excluded: clamping bounds and entries may be
// negative, and the sensitivity computation negates the lower bound.
type Summand interface {
	constraints.Signed | constraints.Float
}

// Clamp clamps e within lower and upper, such that lower is returned
// if e < lower, and upper is returned if e > upper. Otherwise, e is returned.
func Clamp[T Summand](e, lower, upper T) (T, error) {
	if lower > upper {
		return 0, fmt.Errorf("lower must be less than or equal to upper, got lower = %v, upper = %v", lower, upper)
	}
	if e > upper {
		return upper, nil
	}
	if e < lower {
		return lower, nil
	}
	return e, nil
}

// isNaN reports whether e is a floating point NaN. NaN is the only value that
// does not compare equal to itself, so the check needs no per-type cases;
// integer summands are never NaN.
func isNaN[T Summand](e T) bool {
	return e != e
}

// isIntegral reports whether T is an integer type, in which case noised
// results are rounded to the nearest integer before being emitted.
func isIntegral[T Summand]() bool {
	return T(5)/T(2) == T(2)
}

// maxMagnitude returns the largest magnitude representable by T as a float64.
// For 64 bit integer types the returned value rounds up to 2⁶³, which is
// itself not convertible back to T; callers needing a convertible value use
// maxBoundary, and the exact -max(T) borderline is handled by checkLowerBound
// in the integer domain.
func maxMagnitude[T Summand]() float64 {
	switch reflect.TypeOf(T(0)).Kind() {
	case reflect.Int:
		return math.MaxInt
	case reflect.Int8:
		return math.MaxInt8
	case reflect.Int16:
		return math.MaxInt16
	case reflect.Int32:
		return math.MaxInt32
	case reflect.Float32:
		return math.MaxFloat32
	default:
		// Int64 and Float64 share the widest magnitude buckets.
		if isIntegral[T]() {
			return math.MaxInt64
		}
		return math.MaxFloat64
	}
}

// maxBoundary returns the largest float64 that converts to T without
// overflow. It differs from maxMagnitude only for 64 bit integer types, whose
// maximum rounds up to 2⁶³ as a float64.
func maxBoundary[T Summand]() float64 {
	m := maxMagnitude[T]()
	if m == math.Exp2(63) {
		return math.Nextafter(math.Exp2(63), 0)
	}
	return m
}

// checkLowerBound validates that lower can be negated without overflowing T
// when the sensitivity max(|lower|, |upper|) is computed. The float64 image
// of a 64 bit integer limit rounds up to 2⁶³, which would let the most
// negative value slip through a float-domain comparison, so integral types
// are checked exactly first: negating the most negative value wraps back to a
// negative number.
func checkLowerBound[T Summand](lower T) error {
	if isIntegral[T]() && lower < 0 && -lower < 0 {
		return fmt.Errorf(
			"Lower bound (%v) cannot be higher in magnitude than the max numeric limit. "+
				"If manually bounding, please increase it by at least 1", lower)
	}
	return checks.CheckLowerBoundMagnitude(float64(lower), maxMagnitude[T]())
}
