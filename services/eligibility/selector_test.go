package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rewards-pipeline/services/adevents"
)

func newTestSelector(now time.Time) *Selector {
	selector := NewSelector(NewEvaluator())
	selector.nowFunc = func() time.Time { return now }
	return selector
}

func TestSelectPreservesOrder(t *testing.T) {
	now := time.Now()
	selector := newTestSelector(now)

	candidates := []CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1"},
		{CampaignID: "campaign-2", CreativeSetID: "set-2"},
		{CampaignID: "campaign-3", CreativeSetID: "set-3"},
	}

	eligible := selector.Select(candidates, nil)
	require.Equal(t, candidates, eligible)
}

func TestSelectExcludesCappedCampaign(t *testing.T) {
	now := time.Now()
	selector := newTestSelector(now)

	candidates := []CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 1},
		{CampaignID: "campaign-2", CreativeSetID: "set-2", DailyCap: 1},
	}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
	}

	eligible := selector.Select(candidates, events)
	require.Len(t, eligible, 1)
	require.Equal(t, "campaign-2", eligible[0].CampaignID)
}

func TestSelectMemoizesByGroupingKey(t *testing.T) {
	now := time.Now()
	selector := newTestSelector(now)

	// two creatives under the same capped campaign: the daily cap verdict is
	// computed once and reused, excluding both
	candidates := []CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 1},
		{CampaignID: "campaign-1", CreativeSetID: "set-2", DailyCap: 1},
	}

	events := []*adevents.AdEvent{
		servedEvent("campaign-1", "set-1", now.Add(-time.Hour)),
	}

	eligible := selector.Select(candidates, events)
	require.Empty(t, eligible)
}

func TestSelectDismissedCampaignStaysExcluded(t *testing.T) {
	now := time.Now()
	selector := newTestSelector(now)

	candidates := []CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1"},
	}

	events := []*adevents.AdEvent{
		{
			CampaignID:    "campaign-1",
			CreativeSetID: "set-9",
			Type:          adevents.ConfirmationDismissed,
			CreatedAt:     now.Add(-time.Hour),
		},
	}

	require.Empty(t, selector.Select(candidates, events))
	require.True(t, selector.ShouldExclude(candidates[0], events))
}
