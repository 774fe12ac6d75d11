package coverage

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/poiesic/coverwise/core"
)

func unknownResult(itemName string) *core.CoverageCheckResult {
	return &core.CoverageCheckResult{
		ItemName: itemName,
		Status:   core.StatusUnknown,
		Reason: fmt.Sprintf("'%s' is not listed in this policy. Please contact your provider to confirm coverage.",
			strings.TrimSpace(itemName)),
	}
}

func excludedResult(policy *core.PolicyDocument, itemName string, entry indexEntry) *core.CoverageCheckResult {
	reason := fmt.Sprintf("EXCLUDED: '%s' is explicitly excluded under %s.", entry.item, entry.category.Name)
	if lim := strings.TrimSpace(entry.category.SpecificLimitations); lim != "" {
		reason += " " + lim
	}
	return &core.CoverageCheckResult{
		ItemName:        itemName,
		Status:          core.StatusNotCovered,
		Category:        entry.category.Name,
		Reason:          reason,
		SourceReference: sourceReference(policy, entry.category, "items_excluded"),
	}
}

func policyInactiveResult(policy *core.PolicyDocument, itemName string, cat *core.CoverageCategory) *core.CoverageCheckResult {
	return &core.CoverageCheckResult{
		ItemName: itemName,
		Status:   core.StatusNotCovered,
		Category: cat.Name,
		Reason: fmt.Sprintf("Policy is not in force (status: %s). '%s' would fall under %s, but no claims are payable.",
			policy.Meta.Status, itemName, cat.Name),
		SourceReference: fmt.Sprintf("policy %s > policy_meta > status", policy.Meta.ID),
	}
}

func policyExpiredResult(policy *core.PolicyDocument, itemName string, cat *core.CoverageCategory) *core.CoverageCheckResult {
	return &core.CoverageCheckResult{
		ItemName: itemName,
		Status:   core.StatusNotCovered,
		Category: cat.Name,
		Reason: fmt.Sprintf("Policy expired on %s. '%s' would fall under %s, but no claims are payable.",
			policy.Meta.Validity.EndDateCalculated.Format("2006-01-02"), itemName, cat.Name),
		SourceReference: fmt.Sprintf("policy %s > policy_meta > validity_period", policy.Meta.ID),
	}
}

func coveredReason(itemName string, cat *core.CoverageCategory, status core.CoverageStatus) string {
	var b strings.Builder
	if status == core.StatusConditional {
		fmt.Fprintf(&b, "'%s' is covered under %s, subject to conditions.", itemName, cat.Name)
	} else {
		fmt.Fprintf(&b, "'%s' is covered under %s.", itemName, cat.Name)
	}
	if cat.Financial.Deductible > 0 {
		fmt.Fprintf(&b, " Deductible: %s.", formatMoney(cat.Financial.Deductible))
	}
	if c := cat.Financial.CoverageCap; c != nil {
		fmt.Fprintf(&b, " Coverage cap: %s.", formatCap(c))
	}
	return b.String()
}

func likelyExcludedReason(itemName string, entry indexEntry) string {
	return fmt.Sprintf("LIKELY EXCLUDED: '%s' resembles '%s', which is excluded under %s.",
		itemName, entry.item, entry.category.Name)
}

func possiblyCoveredReason(itemName string, entry indexEntry) string {
	reason := fmt.Sprintf("POSSIBLY COVERED: '%s' resembles '%s', which is covered under %s.",
		itemName, entry.item, entry.category.Name)
	if d := entry.category.Financial.Deductible; d > 0 {
		reason += fmt.Sprintf(" Deductible: %s.", formatMoney(d))
	}
	return reason
}

func sourceReference(policy *core.PolicyDocument, cat *core.CoverageCategory, list string) string {
	return fmt.Sprintf("policy %s > coverage_details > %s > %s", policy.Meta.ID, cat.Name, list)
}

func formatMandatoryAction(a core.MandatoryAction) string {
	if strings.TrimSpace(a.Condition) == "" {
		return a.Action
	}
	return fmt.Sprintf("%s: %s", a.Action, a.Condition)
}

func formatUsageLimit(name string, value float64) string {
	return fmt.Sprintf("%s: %s", strings.ReplaceAll(name, "_", " "), strconv.FormatFloat(value, 'f', -1, 64))
}

func formatCap(c *core.CoverageCap) string {
	if c.Unlimited {
		return c.String()
	}
	return formatMoney(c.Amount)
}

// formatMoney renders 15000 as "$15,000" and 99.5 as "$99.50".
func formatMoney(amount float64) string {
	neg := amount < 0
	amount = math.Abs(amount)
	whole := int64(amount)
	cents := int64(math.Round((amount - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := strconv.FormatInt(whole, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if cents > 0 {
		fmt.Fprintf(&b, ".%02d", cents)
	}
	return b.String()
}
