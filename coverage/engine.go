package coverage

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/poiesic/coverwise/core"
)

const (
	// DefaultMinPartialMatch is the shortest string (in runes) allowed to
	// stand as a substring match against an indexed item.
	DefaultMinPartialMatch = 3

	conditionExactVerification = "Exact item verification required"
)

// indexEntry points a normalized item name back at the category that owns it.
type indexEntry struct {
	item     string // spelling as written in the policy
	category *core.CoverageCategory
}

// orderedIndex is a lookup map that remembers insertion order, so partial
// matching scans items in the order the policy lists them.
type orderedIndex struct {
	keys    []string
	entries map[string]indexEntry
}

func newOrderedIndex() *orderedIndex {
	return &orderedIndex{entries: make(map[string]indexEntry)}
}

// add records item unless an earlier category already owns it.
func (idx *orderedIndex) add(item string, category *core.CoverageCategory) {
	key := core.NormalizeItem(item)
	if key == "" {
		return
	}
	if _, exists := idx.entries[key]; exists {
		return
	}
	idx.keys = append(idx.keys, key)
	idx.entries[key] = indexEntry{item: item, category: category}
}

func (idx *orderedIndex) get(key string) (indexEntry, bool) {
	e, ok := idx.entries[key]
	return e, ok
}

// snapshot is the immutable state derived from one loaded policy.
type snapshot struct {
	policy     *core.PolicyDocument
	exclusions *orderedIndex
	inclusions *orderedIndex
}

func buildSnapshot(doc *core.PolicyDocument) *snapshot {
	s := &snapshot{
		policy:     doc,
		exclusions: newOrderedIndex(),
		inclusions: newOrderedIndex(),
	}
	for i := range doc.Coverage {
		cat := &doc.Coverage[i]
		for _, item := range cat.ItemsExcluded {
			s.exclusions.add(item, cat)
		}
		for _, item := range cat.ItemsIncluded {
			s.inclusions.add(item, cat)
		}
	}
	return s
}

// Engine is the coverage decision engine for a single policy.
// It is safe for concurrent use; Load swaps state atomically.
type Engine struct {
	current         atomic.Pointer[snapshot]
	now             func() time.Time
	minPartialMatch int
	logger          *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now != nil {
			e.now = now
		}
		return nil
	}
}

// WithMinPartialMatch sets the minimum substring length for partial matching.
// Default is DefaultMinPartialMatch.
func WithMinPartialMatch(runes int) Option {
	return func(e *Engine) error {
		if runes <= 0 {
			return ErrInvalidMinPartialMatch
		}
		e.minPartialMatch = runes
		return nil
	}
}

// NewEngine creates an engine with no policy loaded.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		now:             time.Now,
		minPartialMatch: DefaultMinPartialMatch,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "coverage")
	return e, nil
}

// Load validates doc and replaces the engine's policy and lookup indexes.
// The engine keeps its own copy; later changes to doc are not observed.
func (e *Engine) Load(doc *core.PolicyDocument) error {
	if err := core.ValidatePolicyDocument(doc); err != nil {
		return err
	}
	cp := doc.Clone()
	for category, items := range core.OverlappingItems(cp) {
		e.logger.Warn("items both included and excluded; exclusion wins",
			"policy_id", cp.Meta.ID, "category", category, "items", items)
	}
	snap := buildSnapshot(cp)
	e.current.Store(snap)
	e.logger.Info("policy loaded",
		"policy_id", cp.Meta.ID,
		"status", cp.Meta.Status,
		"categories", len(cp.Coverage),
		"exclusions", len(snap.exclusions.keys),
		"inclusions", len(snap.inclusions.keys))
	return nil
}

// Policy returns a copy of the loaded policy, or nil.
func (e *Engine) Policy() *core.PolicyDocument {
	snap := e.current.Load()
	if snap == nil {
		return nil
	}
	return snap.policy.Clone()
}

// CheckCoverage evaluates a single item against the loaded policy. The only
// error is ErrPolicyNotLoaded; every other outcome is a result.
func (e *Engine) CheckCoverage(itemName string) (*core.CoverageCheckResult, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, ErrPolicyNotLoaded
	}

	key := core.NormalizeItem(itemName)
	if key == "" {
		return unknownResult(itemName), nil
	}

	if entry, ok := snap.exclusions.get(key); ok {
		return excludedResult(snap.policy, itemName, entry), nil
	}

	if entry, ok := snap.inclusions.get(key); ok {
		return e.evaluateInclusion(snap.policy, itemName, entry), nil
	}

	if result := e.partialMatch(snap, itemName, key); result != nil {
		return result, nil
	}

	e.logger.Debug("item not found in policy", "item", itemName)
	return unknownResult(itemName), nil
}

// CheckMany evaluates several items against the same policy snapshot.
func (e *Engine) CheckMany(items []string) ([]*core.CoverageCheckResult, error) {
	if e.current.Load() == nil {
		return nil, ErrPolicyNotLoaded
	}
	results := make([]*core.CoverageCheckResult, 0, len(items))
	for _, item := range items {
		r, err := e.CheckCoverage(item)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// inForce reports why the policy cannot pay out, or "" when it can.
func (e *Engine) inForce(policy *core.PolicyDocument) string {
	if policy.Meta.Status != core.PolicyStatusActive {
		return "status"
	}
	if policy.Meta.Validity.Expired(e.now()) {
		return "expired"
	}
	return ""
}

func (e *Engine) evaluateInclusion(policy *core.PolicyDocument, itemName string, entry indexEntry) *core.CoverageCheckResult {
	cat := entry.category

	switch e.inForce(policy) {
	case "status":
		return policyInactiveResult(policy, itemName, cat)
	case "expired":
		return policyExpiredResult(policy, itemName, cat)
	}

	conditions := collectConditions(policy, cat)
	financial := &core.FinancialContext{Deductible: cat.Financial.Deductible}
	if cat.Financial.CoverageCap != nil {
		c := *cat.Financial.CoverageCap
		financial.CoverageCap = &c
	}

	status := core.StatusCovered
	if len(conditions) > 0 {
		status = core.StatusConditional
	}

	return &core.CoverageCheckResult{
		ItemName:        itemName,
		Status:          status,
		Category:        cat.Name,
		Reason:          coveredReason(itemName, cat, status),
		Financial:       financial,
		Conditions:      conditions,
		SourceReference: sourceReference(policy, cat, "items_included"),
	}
}

func (e *Engine) partialMatch(snap *snapshot, itemName, key string) *core.CoverageCheckResult {
	for _, other := range snap.exclusions.keys {
		if e.overlaps(key, other) {
			entry, _ := snap.exclusions.get(other)
			return &core.CoverageCheckResult{
				ItemName:        itemName,
				Status:          core.StatusNotCovered,
				Category:        entry.category.Name,
				Reason:          likelyExcludedReason(itemName, entry),
				SourceReference: sourceReference(snap.policy, entry.category, "items_excluded"),
			}
		}
	}

	for _, other := range snap.inclusions.keys {
		if !e.overlaps(key, other) {
			continue
		}
		entry, _ := snap.inclusions.get(other)
		switch e.inForce(snap.policy) {
		case "status":
			return policyInactiveResult(snap.policy, itemName, entry.category)
		case "expired":
			return policyExpiredResult(snap.policy, itemName, entry.category)
		}
		return &core.CoverageCheckResult{
			ItemName:        itemName,
			Status:          core.StatusConditional,
			Category:        entry.category.Name,
			Reason:          possiblyCoveredReason(itemName, entry),
			Financial:       &core.FinancialContext{Deductible: entry.category.Financial.Deductible},
			Conditions:      []string{conditionExactVerification},
			SourceReference: sourceReference(snap.policy, entry.category, "items_included"),
		}
	}
	return nil
}

// overlaps reports whether one string contains the other, provided the
// contained string is long enough to be meaningful.
func (e *Engine) overlaps(item, other string) bool {
	shorter, longer := item, other
	if utf8.RuneCountInString(shorter) > utf8.RuneCountInString(longer) {
		shorter, longer = longer, shorter
	}
	if utf8.RuneCountInString(shorter) < e.minPartialMatch {
		return false
	}
	return strings.Contains(longer, shorter)
}

// collectConditions gathers mandatory actions, usage limits, and the
// category's free-text limitation, in that order.
func collectConditions(policy *core.PolicyDocument, cat *core.CoverageCategory) []string {
	var conditions []string
	for _, a := range policy.Obligations.MandatoryActions {
		conditions = append(conditions, formatMandatoryAction(a))
	}
	for _, name := range slices.Sorted(maps.Keys(cat.UsageLimits)) {
		conditions = append(conditions, formatUsageLimit(name, cat.UsageLimits[name]))
	}
	if lim := strings.TrimSpace(cat.SpecificLimitations); lim != "" {
		conditions = append(conditions, "Limitation: "+lim)
	}
	return conditions
}
