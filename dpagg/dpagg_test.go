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

	"github.com/privacykit/dpsum/noise"
)

var (
	ln3    = math.Log(3)
	tenten = math.Pow10(10)
)

// noNoise returns its input unchanged, so that tests can check aggregation
// behavior deterministically.
type noNoise struct{}

func (noNoise) AddNoise(x, _ float64) (float64, error) { return x, nil }

func (noNoise) NoiseConfidenceInterval(_, _ float64) (noise.ConfidenceInterval, error) {
	return noise.ConfidenceInterval{}, nil
}

func (noNoise) MemoryUsed() int64 { return 0 }

func noNoiseBuilder(_, _ float64) (noise.Mechanism, error) {
	return noNoise{}, nil
}

// failingBuilder simulates a mechanism configuration error.
func failingBuilder(_, _ float64) (noise.Mechanism, error) {
	return nil, fmt.Errorf("mechanism construction failed")
}

func ptr[T Summand](v T) *T {
	return &v
}
