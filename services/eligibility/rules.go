package eligibility

import (
	"time"

	"go.uber.org/zap"

	"rewards-pipeline/services/adevents"
)

// RuleKind enumerates the exclusion rules so the full set is exhaustively
// testable.
type RuleKind string

const (
	RuleDailyCap  RuleKind = "daily_cap"
	RulePerDay    RuleKind = "per_day"
	RulePerWeek   RuleKind = "per_week"
	RulePerMonth  RuleKind = "per_month"
	RuleTotalMax  RuleKind = "total_max"
	RuleDismissed RuleKind = "dismissed"
	RuleDynamic   RuleKind = "dynamic"
)

const (
	dayWindow       = 24 * time.Hour
	weekWindow      = 7 * 24 * time.Hour
	monthWindow     = 30 * 24 * time.Hour
	dismissedWindow = 48 * time.Hour
)

// Rule is a pure exclusion predicate over a creative ad and an ad event
// snapshot. GroupKey yields the memoization key callers use to cache the
// result per grouping entity within one eligibility pass.
type Rule struct {
	Kind     RuleKind
	GroupKey func(ad CreativeAd) string
	Exclude  func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool
}

// countEvents counts events of the given type whose campaign or creative set
// matches id within the sliding window ending at now. A zero window means
// unbounded history. Events with an empty grouping id never match.
func countEvents(events []*adevents.AdEvent, byCampaign bool, id string, confirmationType adevents.ConfirmationType, window time.Duration, now time.Time) int {
	if id == "" {
		return 0
	}

	count := 0
	for _, event := range events {
		if event == nil || event.Type != confirmationType {
			continue
		}
		if byCampaign {
			if event.CampaignID != id {
				continue
			}
		} else if event.CreativeSetID != id {
			continue
		}
		if window > 0 && now.Sub(event.CreatedAt) >= window {
			continue
		}
		count++
	}
	return count
}

// cappedExclude applies the shared frequency-cap shape: a zero cap is an
// "unlimited" sentinel and the ad is excluded once the count reaches the cap.
func cappedExclude(count, cap int) bool {
	if cap == 0 {
		return false
	}
	return count >= cap
}

// Rules returns the ordered exclusion rule set. The dynamic rule evaluates
// catalog-supplied expressions with the given evaluator.
func Rules(evaluator *Evaluator) []Rule {
	return []Rule{
		{
			Kind:     RuleDailyCap,
			GroupKey: func(ad CreativeAd) string { return ad.CampaignID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				count := countEvents(events, true, ad.CampaignID, adevents.ConfirmationServed, dayWindow, now)
				// daily_cap has no unlimited sentinel: with no history the ad
				// is always allowed, and a cap of 0 excludes on the first
				// served event.
				if count == 0 {
					return false
				}
				return count >= ad.DailyCap
			},
		},
		{
			Kind:     RulePerDay,
			GroupKey: func(ad CreativeAd) string { return ad.CreativeSetID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				count := countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, dayWindow, now)
				return cappedExclude(count, ad.PerDay)
			},
		},
		{
			Kind:     RulePerWeek,
			GroupKey: func(ad CreativeAd) string { return ad.CreativeSetID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				count := countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, weekWindow, now)
				return cappedExclude(count, ad.PerWeek)
			},
		},
		{
			Kind:     RulePerMonth,
			GroupKey: func(ad CreativeAd) string { return ad.CreativeSetID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				count := countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, monthWindow, now)
				return cappedExclude(count, ad.PerMonth)
			},
		},
		{
			Kind:     RuleTotalMax,
			GroupKey: func(ad CreativeAd) string { return ad.CreativeSetID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				count := countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, 0, now)
				return cappedExclude(count, ad.TotalMax)
			},
		},
		{
			Kind:     RuleDismissed,
			GroupKey: func(ad CreativeAd) string { return ad.CampaignID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				return countEvents(events, true, ad.CampaignID, adevents.ConfirmationDismissed, dismissedWindow, now) > 0
			},
		},
		{
			Kind:     RuleDynamic,
			GroupKey: func(ad CreativeAd) string { return ad.CreativeSetID },
			Exclude: func(ad CreativeAd, events []*adevents.AdEvent, now time.Time) bool {
				if len(ad.Conditions) == 0 || evaluator == nil {
					return false
				}

				context := expressionContext(ad, events, now)
				for _, condition := range ad.Conditions {
					excluded, err := evaluator.Evaluate(condition, context)
					if err != nil {
						// a malformed condition must not block serving
						zap.L().Warn("failed to evaluate exclusion condition",
							zap.String("creative_set_id", ad.CreativeSetID),
							zap.Error(err))
						continue
					}
					if excluded {
						return true
					}
				}
				return false
			},
		},
	}
}

// expressionContext exposes the ad identity and event aggregates as
// top-level variables for catalog-supplied exclusion conditions.
func expressionContext(ad CreativeAd, events []*adevents.AdEvent, now time.Time) map[string]any {
	return map[string]any{
		"campaign_id":     ad.CampaignID,
		"creative_set_id": ad.CreativeSetID,
		"served_24h":      countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, dayWindow, now),
		"served_7d":       countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, weekWindow, now),
		"served_30d":      countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, monthWindow, now),
		"viewed_24h":      countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationViewed, dayWindow, now),
		"clicked_24h":     countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationClicked, dayWindow, now),
		"dismissed_48h":   countEvents(events, true, ad.CampaignID, adevents.ConfirmationDismissed, dismissedWindow, now),
		"total_served":    countEvents(events, false, ad.CreativeSetID, adevents.ConfirmationServed, 0, now),
	}
}
