package coverage

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/coverwise/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func enginePolicy() *core.PolicyDocument {
	return &core.PolicyDocument{
		Meta: core.PolicyMeta{
			ID:       "POL-ENGINE",
			Provider: "Acme Warranty",
			Type:     "vehicle",
			Status:   core.PolicyStatusActive,
			Validity: core.ValidityPeriod{
				StartDate:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
				EndDateCalculated: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		Coverage: []core.CoverageCategory{
			{
				Name:          "Engine",
				ItemsIncluded: []string{"Pistons"},
				ItemsExcluded: []string{"Turbo"},
				Financial:     core.FinancialTerms{Deductible: 400, CoverageCap: core.CapOf(15000)},
			},
		},
	}
}

func newTestEngine(t *testing.T, doc *core.PolicyDocument) *Engine {
	t.Helper()
	e, err := NewEngine(WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	require.NoError(t, e.Load(doc))
	return e
}

func TestNewEngine(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e, err := NewEngine()
		require.NoError(t, err)
		assert.Equal(t, DefaultMinPartialMatch, e.minPartialMatch)
	})

	t.Run("nil logger falls back to default", func(t *testing.T) {
		e, err := NewEngine(WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, e.logger)
	})

	t.Run("invalid partial match length", func(t *testing.T) {
		_, err := NewEngine(WithMinPartialMatch(0))
		assert.Equal(t, ErrInvalidMinPartialMatch, err)
	})
}

func TestCheckCoverageBeforeLoad(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	result, err := e.CheckCoverage("pistons")
	assert.ErrorIs(t, err, ErrPolicyNotLoaded)
	assert.Nil(t, result)

	_, err = e.CheckMany([]string{"pistons"})
	assert.ErrorIs(t, err, ErrPolicyNotLoaded)
	assert.Nil(t, e.Policy())
}

func TestLoadRejectsInvalidPolicy(t *testing.T) {
	e, err := NewEngine()
	require.NoError(t, err)

	doc := enginePolicy()
	doc.Meta.ID = ""
	err = e.Load(doc)
	assert.ErrorIs(t, err, core.ErrInvalidPolicy)
	assert.Nil(t, e.Policy())
}

func TestEngineScenario(t *testing.T) {
	e := newTestEngine(t, enginePolicy())

	t.Run("excluded item", func(t *testing.T) {
		r, err := e.CheckCoverage("turbo")
		require.NoError(t, err)
		assert.Equal(t, core.StatusNotCovered, r.Status)
		assert.Equal(t, "Engine", r.Category)
		assert.Nil(t, r.Financial)
		assert.True(t, strings.HasPrefix(r.Reason, "EXCLUDED:"))
	})

	t.Run("included item", func(t *testing.T) {
		r, err := e.CheckCoverage("pistons")
		require.NoError(t, err)
		assert.Equal(t, core.StatusCovered, r.Status)
		assert.Equal(t, "Engine", r.Category)
		require.NotNil(t, r.Financial)
		assert.Equal(t, 400.0, r.Financial.Deductible)
		require.NotNil(t, r.Financial.CoverageCap)
		assert.Equal(t, 15000.0, r.Financial.CoverageCap.Amount)
		assert.Empty(t, r.Conditions)
		assert.Contains(t, r.Reason, "pistons")
		assert.Contains(t, r.Reason, "Engine")
		assert.Contains(t, r.Reason, "$400")
		assert.Contains(t, r.Reason, "$15,000")
	})

	t.Run("unknown item", func(t *testing.T) {
		r, err := e.CheckCoverage("flux capacitor")
		require.NoError(t, err)
		assert.Equal(t, core.StatusUnknown, r.Status)
		assert.Empty(t, r.Category)
		assert.Nil(t, r.Financial)
		assert.Contains(t, r.Reason, "contact your provider")
	})

	t.Run("normalizes case and whitespace", func(t *testing.T) {
		r, err := e.CheckCoverage("  PISTONS \t")
		require.NoError(t, err)
		assert.Equal(t, core.StatusCovered, r.Status)
	})

	t.Run("empty item is unknown", func(t *testing.T) {
		r, err := e.CheckCoverage("   ")
		require.NoError(t, err)
		assert.Equal(t, core.StatusUnknown, r.Status)
	})
}

func TestSuspendedPolicy(t *testing.T) {
	doc := enginePolicy()
	doc.Meta.Status = core.PolicyStatusSuspended
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
	assert.Equal(t, "Engine", r.Category)
	assert.Contains(t, r.Reason, "suspended")
	assert.Nil(t, r.Financial)

	// Exclusions still report exclusion, not status.
	r, err = e.CheckCoverage("turbo")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(r.Reason, "EXCLUDED:"))
}

func TestExpiredPolicy(t *testing.T) {
	doc := enginePolicy()
	doc.Meta.Validity.EndDateCalculated = fixedNow.Add(-24 * time.Hour)
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
	assert.Contains(t, r.Reason, "expired")
	assert.Nil(t, r.Financial)
}

func TestPolicyInForceOnItsLastDay(t *testing.T) {
	doc := enginePolicy()
	doc.Meta.Validity.EndDateCalculated = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCovered, r.Status)

	doc.Meta.Validity.EndDateCalculated = time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	e = newTestEngine(t, doc)
	r, err = e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
}

func TestOpenEndedPolicyIsInForce(t *testing.T) {
	doc := enginePolicy()
	doc.Meta.Validity.EndDateCalculated = time.Time{}
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCovered, r.Status)
}

func TestConditions(t *testing.T) {
	doc := enginePolicy()
	doc.Obligations.MandatoryActions = []core.MandatoryAction{
		{Action: "Oil change", Condition: "every 15,000 km"},
		{Action: "Keep service records"},
	}
	doc.Coverage[0].UsageLimits = map[string]float64{
		"max_services_per_year": 2,
		"max_claims":            1,
	}
	doc.Coverage[0].SpecificLimitations = "Wear and tear is not covered"
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("Pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusConditional, r.Status)
	assert.Equal(t, []string{
		"Oil change: every 15,000 km",
		"Keep service records",
		"max claims: 1",
		"max services per year: 2",
		"Limitation: Wear and tear is not covered",
	}, r.Conditions)
	require.NotNil(t, r.Financial)
	assert.Equal(t, 400.0, r.Financial.Deductible)
	assert.NotNil(t, r.Financial.CoverageCap)
}

func TestUnlimitedCapPassesThrough(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage[0].Financial.CoverageCap = core.UnlimitedCap()
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	require.NotNil(t, r.Financial.CoverageCap)
	assert.True(t, r.Financial.CoverageCap.Unlimited)
	assert.Contains(t, r.Reason, "Coverage cap: Unlimited")
}

func TestZeroDeductibleOmittedFromReason(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage[0].Financial = core.FinancialTerms{}
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCovered, r.Status)
	require.NotNil(t, r.Financial)
	assert.Equal(t, 0.0, r.Financial.Deductible)
	assert.Nil(t, r.Financial.CoverageCap)
	assert.NotContains(t, r.Reason, "Deductible")
	assert.NotContains(t, r.Reason, "cap")
}

func TestPartialMatching(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage = append(doc.Coverage, core.CoverageCategory{
		Name:          "Electrical",
		ItemsIncluded: []string{"Alternator", "Battery"},
		ItemsExcluded: []string{"Aftermarket stereo"},
		Financial:     core.FinancialTerms{Deductible: 100, CoverageCap: core.CapOf(2000)},
	})
	e := newTestEngine(t, doc)

	tests := []struct {
		name      string
		item      string
		status    core.CoverageStatus
		category  string
		prefix    string
		financial bool
	}{
		{"exclusion substring", "turbocharger", core.StatusNotCovered, "Engine", "LIKELY EXCLUDED:", false},
		{"inclusion substring", "alternator belt", core.StatusConditional, "Electrical", "POSSIBLY COVERED:", true},
		{"item contained in listed item", "stereo", core.StatusNotCovered, "Electrical", "LIKELY EXCLUDED:", false},
		{"too short to match", "ba", core.StatusUnknown, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.CheckCoverage(tt.item)
			require.NoError(t, err)
			assert.Equal(t, tt.status, r.Status)
			assert.Equal(t, tt.category, r.Category)
			if tt.prefix != "" {
				assert.True(t, strings.HasPrefix(r.Reason, tt.prefix), r.Reason)
			}
			if tt.financial {
				require.NotNil(t, r.Financial)
				assert.Equal(t, 100.0, r.Financial.Deductible)
				assert.Nil(t, r.Financial.CoverageCap, "partial matches never disclose the cap")
				assert.Equal(t, []string{"Exact item verification required"}, r.Conditions)
			} else {
				assert.Nil(t, r.Financial)
			}
		})
	}
}

func TestPartialMatchExclusionsFirst(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage[0].ItemsIncluded = []string{"Turbo seals"}
	doc.Coverage[0].ItemsExcluded = []string{"Turbo housing"}
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("turbo")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
}

func TestPartialInclusionOnSuspendedPolicy(t *testing.T) {
	doc := enginePolicy()
	doc.Meta.Status = core.PolicyStatusSuspended
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons kit")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
	assert.Nil(t, r.Financial)
}

func TestExclusionWinsWithinCategory(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage[0].ItemsExcluded = append(doc.Coverage[0].ItemsExcluded, "PISTONS")
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
}

func TestExclusionWinsAcrossCategories(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage = append(doc.Coverage, core.CoverageCategory{
		Name:          "Wear items",
		ItemsExcluded: []string{"Pistons"},
	})
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusNotCovered, r.Status)
	assert.Equal(t, "Wear items", r.Category)
}

func TestFirstCategoryOwnsItem(t *testing.T) {
	doc := enginePolicy()
	doc.Coverage = append(doc.Coverage, core.CoverageCategory{
		Name:          "Powertrain",
		ItemsIncluded: []string{"pistons"},
		Financial:     core.FinancialTerms{Deductible: 1},
	})
	e := newTestEngine(t, doc)

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, "Engine", r.Category)
}

func TestLoadReplacesPolicy(t *testing.T) {
	e := newTestEngine(t, enginePolicy())

	next := enginePolicy()
	next.Meta.ID = "POL-2"
	next.Coverage[0].ItemsIncluded = []string{"Crankshaft"}
	require.NoError(t, e.Load(next))

	r, err := e.CheckCoverage("crankshaft")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCovered, r.Status)

	r, err = e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.NotEqual(t, core.StatusCovered, r.Status)
	assert.Equal(t, "POL-2", e.Policy().Meta.ID)
}

func TestLoadCopiesPolicy(t *testing.T) {
	doc := enginePolicy()
	e := newTestEngine(t, doc)

	doc.Coverage[0].ItemsIncluded[0] = "Camshaft"
	doc.Coverage[0].Financial.CoverageCap.Amount = 1

	r, err := e.CheckCoverage("pistons")
	require.NoError(t, err)
	assert.Equal(t, core.StatusCovered, r.Status)
	assert.Equal(t, 15000.0, r.Financial.CoverageCap.Amount)
}

func TestCheckMany(t *testing.T) {
	e := newTestEngine(t, enginePolicy())
	results, err := e.CheckMany([]string{"turbo", "pistons", "flux capacitor"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, core.StatusNotCovered, results[0].Status)
	assert.Equal(t, core.StatusCovered, results[1].Status)
	assert.Equal(t, core.StatusUnknown, results[2].Status)
}

func TestConcurrentLoadAndCheck(t *testing.T) {
	e := newTestEngine(t, enginePolicy())

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				if i == 0 && j%10 == 0 {
					assert.NoError(t, e.Load(enginePolicy()))
					continue
				}
				r, err := e.CheckCoverage("pistons")
				assert.NoError(t, err)
				assert.Equal(t, core.StatusCovered, r.Status)
			}
		}(i)
	}
	wg.Wait()
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "$0"},
		{400, "$400"},
		{15000, "$15,000"},
		{1234567.5, "$1,234,567.50"},
		{99.999, "$100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMoney(tt.in), fmt.Sprint(tt.in))
	}
}

func itemGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{3,10}( [a-z]{3,8})?`)
}

func TestExclusionPrecedenceProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		item := itemGen().Draw(t, "item")
		nCats := rapid.IntRange(1, 4).Draw(t, "categories")
		exclCat := rapid.IntRange(0, nCats-1).Draw(t, "exclusionCategory")
		inclCat := rapid.IntRange(0, nCats-1).Draw(t, "inclusionCategory")

		doc := enginePolicy()
		doc.Coverage = nil
		for i := range nCats {
			doc.Coverage = append(doc.Coverage, core.CoverageCategory{
				Name:      fmt.Sprintf("Cat%d", i),
				Financial: core.FinancialTerms{Deductible: 10},
			})
		}
		doc.Coverage[inclCat].ItemsIncluded = append(doc.Coverage[inclCat].ItemsIncluded, strings.ToUpper(item))
		doc.Coverage[exclCat].ItemsExcluded = append(doc.Coverage[exclCat].ItemsExcluded, item)

		e, err := NewEngine(WithClock(func() time.Time { return fixedNow }))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Load(doc); err != nil {
			t.Fatal(err)
		}
		r, err := e.CheckCoverage(item)
		if err != nil {
			t.Fatal(err)
		}
		if r.Status != core.StatusNotCovered {
			t.Fatalf("item %q in both lists returned %s", item, r.Status)
		}
	})
}

func TestFinancialDisclosureProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		doc := enginePolicy()
		items := rapid.SliceOfNDistinct(itemGen(), 1, 6, func(s string) string { return s }).Draw(t, "items")
		deductible := rapid.Float64Range(0, 5000).Draw(t, "deductible")
		capKind := rapid.IntRange(0, 2).Draw(t, "capKind")

		cat := &doc.Coverage[0]
		cat.ItemsIncluded = items
		cat.ItemsExcluded = nil
		cat.Financial.Deductible = deductible
		switch capKind {
		case 0:
			cat.Financial.CoverageCap = nil
		case 1:
			cat.Financial.CoverageCap = core.UnlimitedCap()
		default:
			cat.Financial.CoverageCap = core.CapOf(rapid.Float64Range(0, 1e6).Draw(t, "cap"))
		}
		if rapid.Bool().Draw(t, "withLimit") {
			cat.SpecificLimitations = "Parts only"
		}

		e, err := NewEngine(WithClock(func() time.Time { return fixedNow }))
		if err != nil {
			t.Fatal(err)
		}
		if err := e.Load(doc); err != nil {
			t.Fatal(err)
		}
		for _, item := range items {
			r, err := e.CheckCoverage(item)
			if err != nil {
				t.Fatal(err)
			}
			if !r.IsPositive() {
				t.Fatalf("included item %q returned %s", item, r.Status)
			}
			if r.Financial == nil {
				t.Fatalf("positive result for %q has no financial context", item)
			}
			if r.Financial.Deductible != deductible {
				t.Fatalf("deductible = %v, want %v", r.Financial.Deductible, deductible)
			}
			if (cat.Financial.CoverageCap != nil) != (r.Financial.CoverageCap != nil) {
				t.Fatalf("cap presence mismatch for %q", item)
			}
		}
	})
}
