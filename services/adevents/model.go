package adevents

import (
	"time"
)

// ConfirmationType classifies an ad event.
type ConfirmationType string

const (
	ConfirmationServed     ConfirmationType = "served"
	ConfirmationViewed     ConfirmationType = "viewed"
	ConfirmationClicked    ConfirmationType = "clicked"
	ConfirmationDismissed  ConfirmationType = "dismissed"
	ConfirmationConversion ConfirmationType = "conversion"
)

// AdEvent is one row in the append-only ad serving history. Rows are never
// mutated after insert.
type AdEvent struct {
	ID            string           `gorm:"column:id;primaryKey"`
	CampaignID    string           `gorm:"column:campaign_id;index"`
	CreativeSetID string           `gorm:"column:creative_set_id;index"`
	Type          ConfirmationType `gorm:"column:confirmation_type"`
	CreatedAt     time.Time        `gorm:"column:created_at"`
}

func (AdEvent) TableName() string { return "ad_events" }

// Filter narrows an ad event query. Zero fields are ignored.
type Filter struct {
	CampaignID    string
	CreativeSetID string
	Types         []ConfirmationType
	Since         time.Time
}
