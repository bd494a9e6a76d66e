package credentials

import (
	"time"

	"gorm.io/datatypes"
)

// BatchStatus is the forward-only credential batch state machine. Corrupted
// is a sink reachable from any state on validation failure and is never
// auto-retried.
type BatchStatus string

const (
	BatchNone      BatchStatus = "none"
	BatchBlinded   BatchStatus = "blinded"
	BatchClaimed   BatchStatus = "claimed"
	BatchSigned    BatchStatus = "signed"
	BatchFinished  BatchStatus = "finished"
	BatchCorrupted BatchStatus = "corrupted"
)

// TriggerType identifies what a credential batch pays for.
type TriggerType string

const (
	TriggerPromotion TriggerType = "promotion"
	TriggerSKU       TriggerType = "sku"
)

type CredsBatch struct {
	ID            string         `json:"id" gorm:"column:id;primaryKey"`
	Size          int            `json:"size" gorm:"column:size"`
	Creds         datatypes.JSON `json:"creds" gorm:"column:creds"`
	BlindedCreds  datatypes.JSON `json:"blinded_creds" gorm:"column:blinded_creds"`
	SignedCreds   datatypes.JSON `json:"signed_creds" gorm:"column:signed_creds"`
	PublicKey     string         `json:"public_key" gorm:"column:public_key"`
	BatchProof    string         `json:"batch_proof" gorm:"column:batch_proof"`
	TriggerID     string         `json:"trigger_id" gorm:"column:trigger_id;index"`
	TriggerType   TriggerType    `json:"trigger_type" gorm:"column:trigger_type;index"`
	Status        BatchStatus    `json:"status" gorm:"column:status;index"`
	ValuePerToken float64        `json:"value_per_token" gorm:"column:value_per_token"`
	ExpiresAt     time.Time      `json:"expires_at" gorm:"column:expires_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (CredsBatch) TableName() string {
	return "creds_batches"
}

// UnblindedToken is a spendable credential. RedeemedAt stays zero until the
// token pays for exactly one confirmation or contribution.
type UnblindedToken struct {
	ID         string    `json:"id" gorm:"column:id;primaryKey"`
	TokenValue string    `json:"token_value" gorm:"column:token_value"`
	PublicKey  string    `json:"public_key" gorm:"column:public_key"`
	Value      float64   `json:"value" gorm:"column:value"`
	CredsID    string    `json:"creds_id" gorm:"column:creds_id;index"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"column:expires_at"`
	RedeemedAt int64     `json:"redeemed_at" gorm:"column:redeemed_at;index"`
	RedeemID   string    `json:"redeem_id" gorm:"column:redeem_id"`
	RedeemType string    `json:"redeem_type" gorm:"column:redeem_type"`
	CreatedAt  time.Time `json:"created_at"`
}

func (UnblindedToken) TableName() string {
	return "unblinded_tokens"
}
