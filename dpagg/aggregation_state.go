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

// aggregationState tracks the lifecycle of an aggregation. Generating a
// result finalizes the privacy epoch: amending or finalizing the aggregation
// again would double-spend the privacy budget, so both are rejected until
// ResetState explicitly starts a new epoch.
type aggregationState int

const (
	defaultState aggregationState = iota
	resultReturned
)

var stateErrorMessages = map[aggregationState]string{
	defaultState:   "",
	resultReturned: "the noised result was already computed and returned",
}

var stateNames = map[aggregationState]string{
	defaultState:   "Default",
	resultReturned: "ResultReturned",
}

func (s aggregationState) errorMessage() string {
	return stateErrorMessages[s]
}

func (s aggregationState) String() string {
	return stateNames[s]
}
