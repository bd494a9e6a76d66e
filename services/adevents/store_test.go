package adevents

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rewards-pipeline/pkg/repository"
	"rewards-pipeline/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *Store {
	db := testutil.NewTestDB(t, &AdEvent{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Store{db: db, node: node, events: repository.ProvideStore[AdEvent](db)}
}

func TestAppendAssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	event, err := store.Append(context.Background(), AdEvent{
		CampaignID:    "campaign-1",
		CreativeSetID: "creative-set-1",
		Type:          ConfirmationServed,
	})
	require.NoError(t, err)
	require.NotEmpty(t, event.ID)
	require.False(t, event.CreatedAt.IsZero())
}

func TestListFiltersByCampaignTypeAndWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seed := []AdEvent{
		{CampaignID: "c1", CreativeSetID: "cs1", Type: ConfirmationServed, CreatedAt: now.Add(-time.Hour)},
		{CampaignID: "c1", CreativeSetID: "cs1", Type: ConfirmationViewed, CreatedAt: now.Add(-time.Hour)},
		{CampaignID: "c1", CreativeSetID: "cs2", Type: ConfirmationServed, CreatedAt: now.Add(-48 * time.Hour)},
		{CampaignID: "c2", CreativeSetID: "cs3", Type: ConfirmationServed, CreatedAt: now.Add(-time.Hour)},
	}
	for _, event := range seed {
		_, err := store.Append(ctx, event)
		require.NoError(t, err)
	}

	events, err := store.List(ctx, Filter{
		CampaignID: "c1",
		Types:      []ConfirmationType{ConfirmationServed},
		Since:      now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "cs1", events[0].CreativeSetID)
}

func TestListReturnsOldestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i := 3; i >= 1; i-- {
		_, err := store.Append(ctx, AdEvent{
			CampaignID: "c1",
			Type:       ConfirmationServed,
			CreatedAt:  now.Add(-time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	events, err := store.List(ctx, Filter{CampaignID: "c1"})
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.True(t, events[0].CreatedAt.Before(events[1].CreatedAt))
	require.True(t, events[1].CreatedAt.Before(events[2].CreatedAt))
}
