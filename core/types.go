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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ChunkType is the semantic role of a chunk of policy text.
type ChunkType string

const (
	ChunkTypeExclusion  ChunkType = "exclusion"
	ChunkTypeInclusion  ChunkType = "inclusion"
	ChunkTypeDefinition ChunkType = "definition"
	ChunkTypeLimitation ChunkType = "limitation"
	ChunkTypeProcedure  ChunkType = "procedure"
	ChunkTypeRawText    ChunkType = "raw_text"
)

// ChunkTypes lists every valid chunk type label.
var ChunkTypes = []ChunkType{
	ChunkTypeExclusion,
	ChunkTypeInclusion,
	ChunkTypeDefinition,
	ChunkTypeLimitation,
	ChunkTypeProcedure,
	ChunkTypeRawText,
}

// ParseChunkType converts a label into a ChunkType. Matching ignores case and
// surrounding whitespace, and accepts "raw text" for raw_text.
func ParseChunkType(label string) (ChunkType, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	for _, t := range ChunkTypes {
		if string(t) == normalized {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidChunkType, label)
}

// CoverageCap is either a finite amount or the literal "Unlimited".
type CoverageCap struct {
	Amount    float64
	Unlimited bool
}

// UnlimitedCap returns a cap with no upper bound.
func UnlimitedCap() *CoverageCap {
	return &CoverageCap{Unlimited: true}
}

// CapOf returns a finite cap.
func CapOf(amount float64) *CoverageCap {
	return &CoverageCap{Amount: amount}
}

func (c CoverageCap) String() string {
	if c.Unlimited {
		return "Unlimited"
	}
	return strconv.FormatFloat(c.Amount, 'f', -1, 64)
}

// MarshalJSON emits a number, or the string "Unlimited".
func (c CoverageCap) MarshalJSON() ([]byte, error) {
	if c.Unlimited {
		return json.Marshal("Unlimited")
	}
	return json.Marshal(c.Amount)
}

func (c *CoverageCap) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseCoverageCap(s)
		if err != nil {
			return err
		}
		*c = *parsed
		return nil
	}
	var amount float64
	if err := json.Unmarshal(data, &amount); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidCoverageCap, string(data))
	}
	*c = CoverageCap{Amount: amount}
	return nil
}

// ParseCoverageCap accepts "Unlimited" (any case) or a numeric string that may
// carry a currency symbol and thousands separators.
func ParseCoverageCap(s string) (*CoverageCap, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "unlimited") {
		return UnlimitedCap(), nil
	}
	cleaned := strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "").Replace(trimmed)
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCoverageCap, s)
	}
	return CapOf(amount), nil
}
