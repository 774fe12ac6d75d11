// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package coverage answers "is this item covered?" for a loaded policy.
//
// The Engine evaluates items in a fixed order that must never be reordered:
//
//  1. Exact exclusion match returns not_covered immediately.
//  2. Exact inclusion match is checked against policy status and validity,
//     then conditions and financial terms are attached.
//  3. Substring matches are tried, exclusions first, in policy order.
//  4. Anything else is unknown.
//
// Every positive answer (covered or conditional) carries the category
// deductible, plus the coverage cap when the category defines one.
//
// Example:
//
//	engine, err := coverage.NewEngine()
//	if err != nil {
//	    return err
//	}
//	if err := engine.Load(policy); err != nil {
//	    return err
//	}
//	result, err := engine.CheckCoverage("pistons")
package coverage
