package eligibility

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rewards-pipeline/services/adevents"
	"rewards-pipeline/services/testutil"
)

func newTestHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &adevents.AdEvent{})
	node, err := snowflake.NewNode(5)
	require.NoError(t, err)

	store := adevents.NewStore(adevents.StoreParams{DB: db, Node: node})
	handler := NewHandler(HandlerParams{
		Selector: NewSelector(NewEvaluator()),
		Events:   store,
	})
	return handler, db
}

func TestServeRecordsServedEvent(t *testing.T) {
	handler, db := newTestHandler(t)
	ctx := context.Background()

	candidates := []CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1", DailyCap: 1},
	}

	winner, err := handler.Serve(ctx, candidates)
	require.NoError(t, err)
	require.NotNil(t, winner)
	require.Equal(t, "campaign-1", winner.CampaignID)

	var count int64
	require.NoError(t, db.Model(&adevents.AdEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	// the recorded serve now caps the campaign out
	winner, err = handler.Serve(ctx, candidates)
	require.NoError(t, err)
	require.Nil(t, winner)
}

func TestProcessTaskSelectsFromPayload(t *testing.T) {
	handler, db := newTestHandler(t)

	task, err := NewSelectTask([]CreativeAd{
		{CampaignID: "campaign-1", CreativeSetID: "set-1"},
	})
	require.NoError(t, err)
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	var count int64
	require.NoError(t, db.Model(&adevents.AdEvent{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}
