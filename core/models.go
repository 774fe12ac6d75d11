package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

type ID uint64

func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// PolicyStatus is the administrative state of a policy.
type PolicyStatus string

const (
	PolicyStatusActive    PolicyStatus = "active"
	PolicyStatusSuspended PolicyStatus = "suspended"
	PolicyStatusExpired   PolicyStatus = "expired"
)

// ValidityPeriod bounds when a policy can pay out. EndDateCalculated is
// inclusive: an end at midnight UTC, which is what a date-only value parses
// to, names a whole calendar day and the policy stays in force until the
// following midnight. An end with a time of day is exact.
type ValidityPeriod struct {
	StartDate            time.Time `json:"start_date"`
	EndDateCalculated    time.Time `json:"end_date_calculated,omitzero"` // Zero when the policy has no computed end date
	TerminationCondition string    `json:"termination_condition,omitempty"`
}

// Expired reports whether the period has ended at now. A zero end date never
// expires.
func (v ValidityPeriod) Expired(now time.Time) bool {
	end := v.EndDateCalculated
	if end.IsZero() {
		return false
	}
	if end.Equal(end.Truncate(24 * time.Hour)) {
		return !now.Before(end.Add(24 * time.Hour))
	}
	return now.After(end)
}

type PolicyMeta struct {
	ID       string         `json:"policy_id"`
	Provider string         `json:"provider"`
	Type     string         `json:"policy_type"`
	Status   PolicyStatus   `json:"status"`
	Validity ValidityPeriod `json:"validity_period"`
}

// MandatoryAction is something the client must do to keep coverage in force,
// e.g. Action "Oil change", Condition "every 15,000 km".
type MandatoryAction struct {
	Action    string `json:"action"`
	Condition string `json:"condition,omitempty"`
}

type ClientObligations struct {
	MandatoryActions []MandatoryAction `json:"mandatory_actions,omitempty"`
	PaymentTerms     string            `json:"payment_terms,omitempty"`
	Restrictions     []string          `json:"restrictions,omitempty"`
}

type FinancialTerms struct {
	Deductible  float64      `json:"deductible"`
	CoverageCap *CoverageCap `json:"coverage_cap,omitempty"` // nil when the category defines no cap
}

type CoverageCategory struct {
	Name                string             `json:"category"`
	ItemsIncluded       []string           `json:"items_included"`
	ItemsExcluded       []string           `json:"items_excluded"`
	Financial           FinancialTerms     `json:"financials"`
	SpecificLimitations string             `json:"specific_limitations,omitempty"`
	UsageLimits         map[string]float64 `json:"usage_limits,omitempty"` // e.g. "max_services_per_year" -> 2
}

type ServiceNetwork struct {
	Name      string   `json:"name"`
	Providers []string `json:"providers,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// PolicyDocument is the aggregate root for everything the coverage engine
// knows about a policy. It is replaced wholesale, never edited in place.
type PolicyDocument struct {
	Meta        PolicyMeta         `json:"policy_meta"`
	Obligations ClientObligations  `json:"client_obligations"`
	Coverage    []CoverageCategory `json:"coverage_details"`
	Network     *ServiceNetwork    `json:"service_network,omitempty"`
}

// Clone returns a deep copy of the document.
func (p *PolicyDocument) Clone() *PolicyDocument {
	if p == nil {
		return nil
	}
	out := *p
	out.Obligations.MandatoryActions = append([]MandatoryAction(nil), p.Obligations.MandatoryActions...)
	out.Obligations.Restrictions = append([]string(nil), p.Obligations.Restrictions...)
	out.Coverage = make([]CoverageCategory, len(p.Coverage))
	for i, cat := range p.Coverage {
		cp := cat
		cp.ItemsIncluded = append([]string(nil), cat.ItemsIncluded...)
		cp.ItemsExcluded = append([]string(nil), cat.ItemsExcluded...)
		if cat.Financial.CoverageCap != nil {
			c := *cat.Financial.CoverageCap
			cp.Financial.CoverageCap = &c
		}
		if cat.UsageLimits != nil {
			cp.UsageLimits = make(map[string]float64, len(cat.UsageLimits))
			for k, v := range cat.UsageLimits {
				cp.UsageLimits[k] = v
			}
		}
		out.Coverage[i] = cp
	}
	if p.Network != nil {
		n := *p.Network
		n.Providers = append([]string(nil), p.Network.Providers...)
		out.Network = &n
	}
	return &out
}

// Category returns the coverage category with the given name, or nil.
func (p *PolicyDocument) Category(name string) *CoverageCategory {
	for i := range p.Coverage {
		if p.Coverage[i].Name == name {
			return &p.Coverage[i]
		}
	}
	return nil
}

type CoverageStatus string

const (
	StatusCovered     CoverageStatus = "covered"
	StatusNotCovered  CoverageStatus = "not_covered"
	StatusConditional CoverageStatus = "conditional"
	StatusUnknown     CoverageStatus = "unknown"
)

// FinancialContext is attached to every positive coverage answer.
type FinancialContext struct {
	Deductible  float64      `json:"deductible"`
	CoverageCap *CoverageCap `json:"coverage_cap,omitempty"`
}

type CoverageCheckResult struct {
	ItemName        string            `json:"item_name"`
	Status          CoverageStatus    `json:"status"`
	Category        string            `json:"category,omitempty"`
	Reason          string            `json:"reason"`
	Financial       *FinancialContext `json:"financial_context,omitempty"`
	Conditions      []string          `json:"conditions,omitempty"`
	SourceReference string            `json:"source_reference,omitempty"`
}

// IsPositive reports whether the result grants (possibly conditional) coverage.
func (r *CoverageCheckResult) IsPositive() bool {
	return r.Status == StatusCovered || r.Status == StatusConditional
}

// DocumentChunk is the unit of retrievable policy text.
type DocumentChunk struct {
	ID           string            `json:"id"`
	Text         string            `json:"text"`
	Type         ChunkType         `json:"type"`
	PolicyID     string            `json:"policy_id"`
	DocumentID   string            `json:"document_id,omitempty"`
	Category     string            `json:"category,omitempty"`
	PageNumber   int               `json:"page_number,omitempty"` // 0 when unknown
	SectionTitle string            `json:"section_title,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Embedding    []float32         `json:"embedding,omitempty"`
}

// Clone returns a deep copy so indexes never share mutable state with callers.
func (c *DocumentChunk) Clone() *DocumentChunk {
	if c == nil {
		return nil
	}
	out := *c
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Embedding != nil {
		out.Embedding = append([]float32(nil), c.Embedding...)
	}
	return &out
}
