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


package core

import (
	"fmt"
	"strings"
)

// ValidatePolicyDocument checks that a PolicyDocument is well-formed.
// Returns an error wrapping ErrInvalidPolicy if validation fails.
//
// An item listed as both included and excluded in one category is not an
// error: exclusion wins at evaluation time. Use OverlappingItems to report it.
func ValidatePolicyDocument(doc *PolicyDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidPolicy)
	}

	if strings.TrimSpace(doc.Meta.ID) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, ErrEmptyPolicyID)
	}

	if err := ValidatePolicyStatus(doc.Meta.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	v := doc.Meta.Validity
	if !v.StartDate.IsZero() && !v.EndDateCalculated.IsZero() && v.EndDateCalculated.Before(v.StartDate) {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, ErrInvalidValidityPeriod)
	}

	for i, cat := range doc.Coverage {
		if strings.TrimSpace(cat.Name) == "" {
			return fmt.Errorf("%w: category %d: %w", ErrInvalidPolicy, i, ErrEmptyCategoryName)
		}
		if cat.Financial.Deductible < 0 {
			return fmt.Errorf("%w: category %q deductible: %w", ErrInvalidPolicy, cat.Name, ErrNegativeAmount)
		}
		if c := cat.Financial.CoverageCap; c != nil && !c.Unlimited && c.Amount < 0 {
			return fmt.Errorf("%w: category %q cap: %w", ErrInvalidPolicy, cat.Name, ErrNegativeAmount)
		}
	}

	return nil
}

func ValidatePolicyStatus(status PolicyStatus) error {
	switch status {
	case PolicyStatusActive, PolicyStatusSuspended, PolicyStatusExpired:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidPolicyStatus, status)
}

// OverlappingItems returns, per category name, the items that appear in both
// the inclusion and exclusion lists (compared case-insensitively).
func OverlappingItems(doc *PolicyDocument) map[string][]string {
	overlaps := make(map[string][]string)
	for _, cat := range doc.Coverage {
		excluded := make(map[string]bool, len(cat.ItemsExcluded))
		for _, item := range cat.ItemsExcluded {
			excluded[NormalizeItem(item)] = true
		}
		for _, item := range cat.ItemsIncluded {
			if excluded[NormalizeItem(item)] {
				overlaps[cat.Name] = append(overlaps[cat.Name], item)
			}
		}
	}
	return overlaps
}

// NormalizeItem lowercases and trims an item name for lookup.
func NormalizeItem(item string) string {
	return strings.ToLower(strings.TrimSpace(item))
}

// ValidateChunk checks that a DocumentChunk is well-formed.
func ValidateChunk(chunk *DocumentChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyChunkID)
	}

	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if chunk.Type != "" {
		if _, err := ParseChunkType(string(chunk.Type)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
		}
	}

	return nil
}
