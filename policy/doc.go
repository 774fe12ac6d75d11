// Package policy reads policy documents from YAML or JSON files, converts
// them into validated core.PolicyDocument values and watches files for
// replacement.
//
// Files use the same field names as the JSON form of core.PolicyDocument:
//
//	policy_meta:
//	  policy_id: MW-2024-001
//	  provider: Acme Warranty
//	  policy_type: Extended Motor Warranty
//	  status: active
//	  validity_period:
//	    start_date: 2024-01-01
//	    end_date_calculated: 2029-12-31
//	coverage_details:
//	  - category: Engine
//	    items_included: [Pistons, Crankshaft]
//	    items_excluded: [Turbo]
//	    financials:
//	      deductible: 400
//	      coverage_cap: 15000
//
// coverage_cap accepts a number or the string "Unlimited". Dates accept
// YYYY-MM-DD or RFC 3339.
package policy
