package eligibility

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rewards-pipeline/services/adevents"
)

var (
	memoHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "eligibility_memo_hits_total"})
	memoMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "eligibility_memo_miss_total"})
)

// Selector applies the ordered exclusion rule set to candidate ads. It is a
// pure function of (candidates, events snapshot, now); the clock is
// injectable for deterministic tests.
type Selector struct {
	rules   []Rule
	nowFunc func() time.Time
}

func NewSelector(evaluator *Evaluator) *Selector {
	return &Selector{
		rules:   Rules(evaluator),
		nowFunc: time.Now,
	}
}

// Select returns the candidates every rule allows, preserving input order.
// Exclusion results are memoized per rule per grouping key within the pass,
// and evaluation short-circuits per candidate on the first excluding rule.
func (s *Selector) Select(candidates []CreativeAd, events []*adevents.AdEvent) []CreativeAd {
	now := s.nowFunc()
	memo := make(map[string]bool)

	eligible := make([]CreativeAd, 0, len(candidates))
	for _, ad := range candidates {
		if s.excluded(ad, events, now, memo) {
			continue
		}
		eligible = append(eligible, ad)
	}
	return eligible
}

// ShouldExclude evaluates the full rule set against a single candidate.
func (s *Selector) ShouldExclude(ad CreativeAd, events []*adevents.AdEvent) bool {
	return s.excluded(ad, events, s.nowFunc(), make(map[string]bool))
}

func (s *Selector) excluded(ad CreativeAd, events []*adevents.AdEvent, now time.Time, memo map[string]bool) bool {
	for _, rule := range s.rules {
		key := string(rule.Kind) + ":" + rule.GroupKey(ad)

		excluded, ok := memo[key]
		if ok {
			memoHits.Inc()
		} else {
			memoMiss.Inc()
			excluded = rule.Exclude(ad, events, now)
			memo[key] = excluded
		}

		if excluded {
			return true
		}
	}
	return false
}
