package confirmation

import (
	"time"
)

// Confirmation is one redemption attempt: an ad event to confirm and the
// unblinded token that pays for it. WasCreated records that the server-side
// confirmation exists so retries skip straight to the payment token fetch.
type Confirmation struct {
	ID                 string    `json:"id"`
	CreativeInstanceID string    `json:"creative_instance_id"`
	Type               string    `json:"type"`
	TokenID            string    `json:"token_id"`
	TokenValue         string    `json:"token_value"`
	PublicKey          string    `json:"public_key"`
	WasCreated         bool      `json:"was_created"`
	CreatedAt          time.Time `json:"created_at"`
}

// Delegate receives the outcome of a redemption attempt. Failure callbacks
// carry the retry classification so callers never interpret HTTP codes
// themselves.
type Delegate interface {
	OnDidRedeemUnblindedToken(confirmation *Confirmation, credential string)
	OnFailedToRedeemUnblindedToken(confirmation *Confirmation, shouldRetry, shouldBackoff bool)
	OnDidSendConfirmation(confirmation *Confirmation)
	OnFailedToSendConfirmation(confirmation *Confirmation, shouldRetry bool)
}
