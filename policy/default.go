package policy

import (
	"time"

	"github.com/poiesic/coverwise/core"
)

// DefaultPolicyID identifies the built-in policy.
const DefaultPolicyID = "MW-DEFAULT-001"

// Default returns the built-in extended motor warranty, used when no policy
// file is configured. Each call returns a fresh copy.
func Default() *core.PolicyDocument {
	return &core.PolicyDocument{
		Meta: core.PolicyMeta{
			ID:       DefaultPolicyID,
			Provider: "Coverwise Motor Assurance",
			Type:     "Extended Motor Warranty",
			Status:   core.PolicyStatusActive,
			Validity: core.ValidityPeriod{
				StartDate:            time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
				EndDateCalculated:    time.Date(2029, time.December, 31, 0, 0, 0, 0, time.UTC),
				TerminationCondition: "or 150,000 km, whichever comes first",
			},
		},
		Obligations: core.ClientObligations{
			MandatoryActions: []core.MandatoryAction{
				{Action: "Oil change", Condition: "every 15,000 km or 12 months"},
				{Action: "Annual inspection", Condition: "at an approved garage"},
			},
			PaymentTerms: "Monthly premium, due on the 1st",
			Restrictions: []string{
				"No commercial use",
				"No competitive racing",
			},
		},
		Coverage: []core.CoverageCategory{
			{
				Name:          "Engine",
				ItemsIncluded: []string{"Pistons", "Crankshaft", "Cylinder head", "Oil pump", "Camshaft"},
				ItemsExcluded: []string{"Turbo", "Timing belt", "Spark plugs"},
				Financial: core.FinancialTerms{
					Deductible:  400,
					CoverageCap: core.CapOf(15000),
				},
			},
			{
				Name:          "Transmission",
				ItemsIncluded: []string{"Gearbox", "Clutch actuator", "Torque converter"},
				ItemsExcluded: []string{"Clutch disc"},
				Financial: core.FinancialTerms{
					Deductible:  300,
					CoverageCap: core.CapOf(8000),
				},
				SpecificLimitations: "Manual gearboxes require proof of clutch service",
			},
			{
				Name:          "Electrical",
				ItemsIncluded: []string{"Alternator", "Starter motor", "Engine control unit"},
				ItemsExcluded: []string{"Battery", "Bulbs", "Fuses"},
				Financial: core.FinancialTerms{
					Deductible:  150,
					CoverageCap: core.CapOf(5000),
				},
			},
			{
				Name:          "Roadside Assistance",
				ItemsIncluded: []string{"Towing", "Jump start", "Flat tyre change"},
				ItemsExcluded: []string{"Fuel delivery cost"},
				Financial: core.FinancialTerms{
					CoverageCap: core.UnlimitedCap(),
				},
				UsageLimits: map[string]float64{
					"max_callouts_per_year": 4,
					"max_towing_km":         100,
				},
			},
		},
		Network: &core.ServiceNetwork{
			Name:      "Approved Garage Network",
			Providers: []string{"Northside Motors", "Central Auto Care"},
			Notes:     "Repairs outside the network need prior approval",
		},
	}
}
