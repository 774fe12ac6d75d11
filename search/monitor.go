package search

import "time"

// SearchMonitor provides hooks to observe the search process.
// Implementations are shared by concurrent searches and must be safe for
// concurrent use.
type SearchMonitor interface {
	Start(req Request)
	AfterCandidateFilter(policyID string, candidates int)
	AfterKeywordScoring(hits int)
	AfterSemanticScoring(hits int)
	Degraded(requested, used Mode)
	Finish(mode Mode, results []Result, elapsed time.Duration)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Request)                              {}
func (n *noopMonitor) AfterCandidateFilter(_ string, _ int)         {}
func (n *noopMonitor) AfterKeywordScoring(_ int)                    {}
func (n *noopMonitor) AfterSemanticScoring(_ int)                   {}
func (n *noopMonitor) Degraded(_, _ Mode)                           {}
func (n *noopMonitor) Finish(_ Mode, _ []Result, _ time.Duration) {}
