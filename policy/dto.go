package policy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/poiesic/coverwise/core"
)

// File is the on-disk shape of a policy document.
type File struct {
	Meta        Meta        `yaml:"policy_meta" json:"policy_meta"`
	Obligations Obligations `yaml:"client_obligations" json:"client_obligations"`
	Coverage    []Category  `yaml:"coverage_details" json:"coverage_details"`
	Network     *Network    `yaml:"service_network,omitempty" json:"service_network,omitempty"`
}

type Meta struct {
	PolicyID   string   `yaml:"policy_id" json:"policy_id"`
	Provider   string   `yaml:"provider" json:"provider"`
	PolicyType string   `yaml:"policy_type" json:"policy_type"`
	Status     string   `yaml:"status" json:"status"`
	Validity   Validity `yaml:"validity_period" json:"validity_period"`
}

type Validity struct {
	StartDate            string `yaml:"start_date" json:"start_date"`
	EndDateCalculated    string `yaml:"end_date_calculated,omitempty" json:"end_date_calculated,omitempty"`
	TerminationCondition string `yaml:"termination_condition,omitempty" json:"termination_condition,omitempty"`
}

type Action struct {
	Action    string `yaml:"action" json:"action"`
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

type Obligations struct {
	MandatoryActions []Action `yaml:"mandatory_actions,omitempty" json:"mandatory_actions,omitempty"`
	PaymentTerms     string   `yaml:"payment_terms,omitempty" json:"payment_terms,omitempty"`
	Restrictions     []string `yaml:"restrictions,omitempty" json:"restrictions,omitempty"`
}

type Financials struct {
	Deductible float64 `yaml:"deductible" json:"deductible"`

	// CoverageCap holds a number or "Unlimited". Decoders produce int,
	// float64 or string.
	CoverageCap any `yaml:"coverage_cap,omitempty" json:"coverage_cap,omitempty"`
}

type Category struct {
	Category            string             `yaml:"category" json:"category"`
	ItemsIncluded       []string           `yaml:"items_included" json:"items_included"`
	ItemsExcluded       []string           `yaml:"items_excluded" json:"items_excluded"`
	Financials          Financials         `yaml:"financials" json:"financials"`
	SpecificLimitations string             `yaml:"specific_limitations,omitempty" json:"specific_limitations,omitempty"`
	UsageLimits         map[string]float64 `yaml:"usage_limits,omitempty" json:"usage_limits,omitempty"`
}

type Network struct {
	Name      string   `yaml:"name" json:"name"`
	Providers []string `yaml:"providers,omitempty" json:"providers,omitempty"`
	Notes     string   `yaml:"notes,omitempty" json:"notes,omitempty"`
}

const dateLayout = time.DateOnly

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: %s %q", ErrInvalidDate, field, s)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if t.Equal(t.Truncate(24 * time.Hour)) {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

func parseCap(v any) (*core.CoverageCap, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case int:
		return core.CapOf(float64(c)), nil
	case int64:
		return core.CapOf(float64(c)), nil
	case uint64:
		return core.CapOf(float64(c)), nil
	case float64:
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: %v", core.ErrInvalidCoverageCap, c)
		}
		return core.CapOf(c), nil
	case string:
		return core.ParseCoverageCap(c)
	}
	return nil, fmt.Errorf("%w: unsupported value %v (%T)", core.ErrInvalidCoverageCap, v, v)
}

func formatCap(c *core.CoverageCap) any {
	if c == nil {
		return nil
	}
	if c.Unlimited {
		return "Unlimited"
	}
	return c.Amount
}

// ToPolicy converts the file into a validated core document.
func (f *File) ToPolicy() (*core.PolicyDocument, error) {
	start, err := parseDate("start_date", f.Meta.Validity.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	end, err := parseDate("end_date_calculated", f.Meta.Validity.EndDateCalculated)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}

	doc := &core.PolicyDocument{
		Meta: core.PolicyMeta{
			ID:       strings.TrimSpace(f.Meta.PolicyID),
			Provider: f.Meta.Provider,
			Type:     f.Meta.PolicyType,
			Status:   core.PolicyStatus(strings.ToLower(strings.TrimSpace(f.Meta.Status))),
			Validity: core.ValidityPeriod{
				StartDate:            start,
				EndDateCalculated:    end,
				TerminationCondition: f.Meta.Validity.TerminationCondition,
			},
		},
		Obligations: core.ClientObligations{
			PaymentTerms: f.Obligations.PaymentTerms,
			Restrictions: f.Obligations.Restrictions,
		},
		Coverage: make([]core.CoverageCategory, len(f.Coverage)),
	}
	for _, a := range f.Obligations.MandatoryActions {
		doc.Obligations.MandatoryActions = append(doc.Obligations.MandatoryActions,
			core.MandatoryAction{Action: a.Action, Condition: a.Condition})
	}
	for i, c := range f.Coverage {
		capValue, err := parseCap(c.Financials.CoverageCap)
		if err != nil {
			return nil, fmt.Errorf("%w: category %q: %w", ErrInvalidPolicy, c.Category, err)
		}
		doc.Coverage[i] = core.CoverageCategory{
			Name:          c.Category,
			ItemsIncluded: c.ItemsIncluded,
			ItemsExcluded: c.ItemsExcluded,
			Financial: core.FinancialTerms{
				Deductible:  c.Financials.Deductible,
				CoverageCap: capValue,
			},
			SpecificLimitations: c.SpecificLimitations,
			UsageLimits:         c.UsageLimits,
		}
	}
	if f.Network != nil {
		doc.Network = &core.ServiceNetwork{
			Name:      f.Network.Name,
			Providers: f.Network.Providers,
			Notes:     f.Network.Notes,
		}
	}

	if err := core.ValidatePolicyDocument(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
	}
	return doc.Clone(), nil
}

// FromPolicy converts a core document into its file form.
func FromPolicy(doc *core.PolicyDocument) *File {
	f := &File{
		Meta: Meta{
			PolicyID:   doc.Meta.ID,
			Provider:   doc.Meta.Provider,
			PolicyType: doc.Meta.Type,
			Status:     string(doc.Meta.Status),
			Validity: Validity{
				StartDate:            formatDate(doc.Meta.Validity.StartDate),
				EndDateCalculated:    formatDate(doc.Meta.Validity.EndDateCalculated),
				TerminationCondition: doc.Meta.Validity.TerminationCondition,
			},
		},
		Obligations: Obligations{
			PaymentTerms: doc.Obligations.PaymentTerms,
			Restrictions: doc.Obligations.Restrictions,
		},
		Coverage: make([]Category, len(doc.Coverage)),
	}
	for _, a := range doc.Obligations.MandatoryActions {
		f.Obligations.MandatoryActions = append(f.Obligations.MandatoryActions, Action{Action: a.Action, Condition: a.Condition})
	}
	for i, c := range doc.Coverage {
		f.Coverage[i] = Category{
			Category:      c.Name,
			ItemsIncluded: c.ItemsIncluded,
			ItemsExcluded: c.ItemsExcluded,
			Financials: Financials{
				Deductible:  c.Financial.Deductible,
				CoverageCap: formatCap(c.Financial.CoverageCap),
			},
			SpecificLimitations: c.SpecificLimitations,
			UsageLimits:         c.UsageLimits,
		}
	}
	if doc.Network != nil {
		f.Network = &Network{Name: doc.Network.Name, Providers: doc.Network.Providers, Notes: doc.Network.Notes}
	}
	return f
}
