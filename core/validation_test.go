package core

import (
	"errors"
	"testing"
	"time"
)

func validPolicy() *PolicyDocument {
	return &PolicyDocument{
		Meta: PolicyMeta{
			ID:       "POL-1",
			Provider: "Acme Warranty",
			Type:     "vehicle",
			Status:   PolicyStatusActive,
			Validity: ValidityPeriod{
				StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				EndDateCalculated: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		Coverage: []CoverageCategory{
			{
				Name:          "Engine",
				ItemsIncluded: []string{"Pistons"},
				ItemsExcluded: []string{"Turbo"},
				Financial:     FinancialTerms{Deductible: 400, CoverageCap: CapOf(15000)},
			},
		},
	}
}

func TestValidatePolicyDocument(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PolicyDocument)
		nilDoc  bool
		wantErr error
	}{
		{
			name:    "valid policy",
			mutate:  func(*PolicyDocument) {},
			wantErr: nil,
		},
		{
			name:    "nil document",
			nilDoc:  true,
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "empty id",
			mutate:  func(p *PolicyDocument) { p.Meta.ID = "  " },
			wantErr: ErrEmptyPolicyID,
		},
		{
			name:    "unknown status",
			mutate:  func(p *PolicyDocument) { p.Meta.Status = "lapsed" },
			wantErr: ErrInvalidPolicyStatus,
		},
		{
			name: "end before start",
			mutate: func(p *PolicyDocument) {
				p.Meta.Validity.EndDateCalculated = p.Meta.Validity.StartDate.Add(-time.Hour)
			},
			wantErr: ErrInvalidValidityPeriod,
		},
		{
			name:    "open ended validity",
			mutate:  func(p *PolicyDocument) { p.Meta.Validity.EndDateCalculated = time.Time{} },
			wantErr: nil,
		},
		{
			name:    "unnamed category",
			mutate:  func(p *PolicyDocument) { p.Coverage[0].Name = "" },
			wantErr: ErrEmptyCategoryName,
		},
		{
			name:    "negative deductible",
			mutate:  func(p *PolicyDocument) { p.Coverage[0].Financial.Deductible = -1 },
			wantErr: ErrNegativeAmount,
		},
		{
			name:    "negative cap",
			mutate:  func(p *PolicyDocument) { p.Coverage[0].Financial.CoverageCap = CapOf(-5) },
			wantErr: ErrNegativeAmount,
		},
		{
			name:    "unlimited cap",
			mutate:  func(p *PolicyDocument) { p.Coverage[0].Financial.CoverageCap = UnlimitedCap() },
			wantErr: nil,
		},
		{
			name: "overlapping items are allowed",
			mutate: func(p *PolicyDocument) {
				p.Coverage[0].ItemsExcluded = append(p.Coverage[0].ItemsExcluded, "pistons")
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc *PolicyDocument
			if !tt.nilDoc {
				doc = validPolicy()
				tt.mutate(doc)
			}
			err := ValidatePolicyDocument(doc)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidatePolicyDocument() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidatePolicyDocument() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("ValidatePolicyDocument() error = %v, should wrap ErrInvalidPolicy", err)
			}
		})
	}
}

func TestOverlappingItems(t *testing.T) {
	doc := validPolicy()
	doc.Coverage[0].ItemsExcluded = append(doc.Coverage[0].ItemsExcluded, " PISTONS ")
	doc.Coverage = append(doc.Coverage, CoverageCategory{
		Name:          "Brakes",
		ItemsIncluded: []string{"Pads"},
		ItemsExcluded: []string{"Rotors"},
	})

	overlaps := OverlappingItems(doc)
	if len(overlaps) != 1 {
		t.Fatalf("OverlappingItems() = %v, want exactly one category", overlaps)
	}
	if got := overlaps["Engine"]; len(got) != 1 || got[0] != "Pistons" {
		t.Errorf("OverlappingItems()[Engine] = %v, want [Pistons]", got)
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *DocumentChunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &DocumentChunk{ID: "c1", Text: "Turbochargers are excluded.", Type: ChunkTypeExclusion},
			wantErr: nil,
		},
		{
			name:    "untyped chunk",
			chunk:   &DocumentChunk{ID: "c1", Text: "text"},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "empty id",
			chunk:   &DocumentChunk{Text: "text"},
			wantErr: ErrEmptyChunkID,
		},
		{
			name:    "blank text",
			chunk:   &DocumentChunk{ID: "c1", Text: " \n\t"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "bad type",
			chunk:   &DocumentChunk{ID: "c1", Text: "text", Type: "preamble"},
			wantErr: ErrInvalidChunkType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
