package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewards-pipeline/services/adevents"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func servedEvent(campaignID, creativeSetID string, at time.Time) *adevents.AdEvent {
	return &adevents.AdEvent{
		CampaignID:    campaignID,
		CreativeSetID: creativeSetID,
		Type:          adevents.ConfirmationServed,
		CreatedAt:     at,
	}
}

func ruleByKind(t *testing.T, kind RuleKind) Rule {
	t.Helper()
	for _, rule := range Rules(NewEvaluator()) {
		if rule.Kind == kind {
			return rule
		}
	}
	t.Fatalf("rule %s not found", kind)
	return Rule{}
}

func TestDailyCapAllowsAdWithoutHistory(t *testing.T) {
	rule := ruleByKind(t, RuleDailyCap)
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 0}

	require.False(t, rule.Exclude(ad, nil, time.Now()))
}

func TestDailyCapExcludesZeroCapAfterFirstServe(t *testing.T) {
	rule := ruleByKind(t, RuleDailyCap)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 0}

	events := []*adevents.AdEvent{servedEvent("campaign-1", "set-1", now.Add(-time.Hour))}
	require.True(t, rule.Exclude(ad, events, now))
}

func TestDailyCapSlidingWindow(t *testing.T) {
	rule := ruleByKind(t, RuleDailyCap)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 1}

	served := now.Add(-23*time.Hour - 59*time.Minute - 59*time.Second)
	events := []*adevents.AdEvent{servedEvent("campaign-1", "set-1", served)}

	// one second short of a full day the serve still counts
	require.True(t, rule.Exclude(ad, events, now))

	// at exactly 24h the event ages out of the window
	require.False(t, rule.Exclude(ad, events, now.Add(time.Second)))
}

func TestDailyCapCountsAcrossCreativeSets(t *testing.T) {
	rule := ruleByKind(t, RuleDailyCap)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 2}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
		servedEvent("campaign-1", "set-2", now.Add(-2*time.Hour)),
	}

	require.True(t, rule.Exclude(ad, events, now))
}

func TestPerDayZeroMeansUnlimited(t *testing.T) {
	rule := ruleByKind(t, RulePerDay)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", PerDay: 0}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
		servedEvent("campaign-1", "set-1", now.Add(-2*time.Hour)),
	}

	require.False(t, rule.Exclude(ad, events, now))
}

func TestPerDayCapReached(t *testing.T) {
	rule := ruleByKind(t, RulePerDay)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", PerDay: 2}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
	}
	require.False(t, rule.Exclude(ad, events, now))

	events = append(events, servedEvent("campaign-1", "set-1", now.Add(-2*time.Hour)))
	require.True(t, rule.Exclude(ad, events, now))
}

func TestPerWeekIgnoresOtherCreativeSets(t *testing.T) {
	rule := ruleByKind(t, RulePerWeek)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", PerWeek: 1}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-2", now.Add(-time.Hour)),
	}
	require.False(t, rule.Exclude(ad, events, now))

	events = append(events, servedEvent("campaign-1", "set-1", now.Add(-6*24*time.Hour)))
	require.True(t, rule.Exclude(ad, events, now))
}

func TestPerMonthWindow(t *testing.T) {
	rule := ruleByKind(t, RulePerMonth)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", PerMonth: 1}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-31*24*time.Hour)),
	}
	require.False(t, rule.Exclude(ad, events, now))

	events = append(events, servedEvent("campaign-1", "set-1", now.Add(-29*24*time.Hour)))
	require.True(t, rule.Exclude(ad, events, now))
}

func TestTotalMaxHasNoWindow(t *testing.T) {
	rule := ruleByKind(t, RuleTotalMax)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1", TotalMax: 1}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-365*24*time.Hour)),
	}
	require.True(t, rule.Exclude(ad, events, now))
}

func TestDismissedExcludesCampaignForTwoDays(t *testing.T) {
	rule := ruleByKind(t, RuleDismissed)
	now := time.Now()
	ad := CreativeAd{CampaignID: "campaign-1", CreativeSetID: "set-1"}

	dismissed := &adevents.AdEvent{
		CampaignID:    "campaign-1",
		CreativeSetID: "set-2",
		Type:          adevents.ConfirmationDismissed,
		CreatedAt:     now.Add(-47 * time.Hour),
	}

	require.True(t, rule.Exclude(ad, []*adevents.AdEvent{dismissed}, now))
	require.False(t, rule.Exclude(ad, []*adevents.AdEvent{dismissed}, now.Add(2*time.Hour)))
}

func TestDynamicConditionExcludes(t *testing.T) {
	rule := ruleByKind(t, RuleDynamic)
	now := time.Now()
	ad := CreativeAd{
		CampaignID:    "campaign-1",
		CreativeSetID: "set-1",
		Conditions:    []string{"served_24h >= 2"},
	}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
	}
	require.False(t, rule.Exclude(ad, events, now))

	events = append(events, servedEvent("campaign-1", "set-1", now.Add(-2*time.Hour)))
	require.True(t, rule.Exclude(ad, events, now))
}

func TestDynamicConditionMalformedIsIgnored(t *testing.T) {
	rule := ruleByKind(t, RuleDynamic)
	ad := CreativeAd{
		CampaignID:    "campaign-1",
		CreativeSetID: "set-1",
		Conditions:    []string{"this is not CEL"},
	}

	require.False(t, rule.Exclude(ad, nil, time.Now()))
}

func TestEvaluatorRejectsNonBooleanResult(t *testing.T) {
	evaluator := NewEvaluator()

	_, err := evaluator.Evaluate("served_24h + 1", map[string]any{"served_24h": 1})
	require.Error(t, err)
}
