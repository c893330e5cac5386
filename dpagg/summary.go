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

// SummaryKind is an enum type. Its values identify which aggregation a
// serialized Summary payload belongs to.
type SummaryKind int

// Aggregation kinds carried by Summary payloads.
const (
	UnrecognisedSummary SummaryKind = iota
	BoundedSumSummary
	ApproxBoundsSummary
)

var summaryKindNames = map[SummaryKind]string{
	UnrecognisedSummary: "Unrecognised",
	BoundedSumSummary:   "BoundedSum",
	ApproxBoundsSummary: "ApproxBounds",
}

func (k SummaryKind) String() string {
	if name, ok := summaryKindNames[k]; ok {
		return name
	}
	return summaryKindNames[UnrecognisedSummary]
}

// Summary is the opaque, type-tagged payload produced by an aggregation's
// Serialize method. It carries the aggregation's partial state so that
// partial computations from different shards can be combined via Merge
// before a single result generation.
type Summary struct {
	Kind SummaryKind
	Data []byte
}
