package adevents

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-pipeline/pkg/repository"
)

// Store owns the ad event history. Append-only: there is no update or
// delete path; retention pruning is handled out of band.
type Store struct {
	db     *gorm.DB
	node   *snowflake.Node
	events repository.Repository[AdEvent]
}

type StoreParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:     p.DB,
		node:   p.Node,
		events: repository.ProvideStore[AdEvent](p.DB),
	}
}

// Append records a new ad event. The row id and timestamp are assigned here
// when missing so callers only supply the event facts.
func (s *Store) Append(ctx context.Context, event AdEvent) (*AdEvent, error) {
	if event.ID == "" {
		event.ID = s.node.Generate().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	if err := s.events.Create(ctx, &event); err != nil {
		zap.L().Error("failed to append ad event",
			zap.String("campaign_id", event.CampaignID),
			zap.Error(err))
		return nil, err
	}

	return &event, nil
}

// List returns a snapshot of events matching the filter, oldest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]*AdEvent, error) {
	query := s.db.WithContext(ctx).Order("created_at ASC")

	if filter.CampaignID != "" {
		query = query.Where("campaign_id = ?", filter.CampaignID)
	}
	if filter.CreativeSetID != "" {
		query = query.Where("creative_set_id = ?", filter.CreativeSetID)
	}
	if len(filter.Types) > 0 {
		query = query.Where("confirmation_type IN ?", filter.Types)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}

	var events []*AdEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
