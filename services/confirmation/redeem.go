package confirmation

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-pipeline/pkg/blind"
	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/services/credentials"
)

type RedeemerParams struct {
	fx.In

	Config *config.Config
	Client ConfirmationClient
	Creds  *credentials.Service
	Keys   *credentials.KeyCache
}

// Redeemer redeems unblinded tokens against confirmations. The retry policy
// differs by path: with ads enabled the full token redemption runs and backs
// off on server trouble; with ads disabled only the confirmation send runs
// and permanently-invalid requests are dropped rather than retried.
type Redeemer struct {
	adsEnabled bool
	client     ConfirmationClient
	creds      *credentials.Service
	keys       *credentials.KeyCache
}

func NewRedeemer(p RedeemerParams) *Redeemer {
	return &Redeemer{
		adsEnabled: p.Config.Confirmation.AdsEnabled,
		client:     p.Client,
		creds:      p.Creds,
		keys:       p.Keys,
	}
}

// Prepare builds a confirmation for the creative, funded by the oldest
// spendable token.
func (r *Redeemer) Prepare(ctx context.Context, creativeInstanceID, confirmationType string) (*Confirmation, error) {
	tokens, err := r.creds.SpendableTokens(ctx, credentials.TriggerPromotion, credentials.TriggerSKU)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errutil.Exhausted("no spendable tokens", nil)
	}

	token := tokens[0]
	return &Confirmation{
		ID:                 uuid.NewString(),
		CreativeInstanceID: creativeInstanceID,
		Type:               confirmationType,
		TokenID:            token.ID,
		TokenValue:         token.TokenValue,
		PublicKey:          token.PublicKey,
		CreatedAt:          time.Now(),
	}, nil
}

// Redeem runs the confirmation flow and reports the outcome through the
// delegate. It never returns an error; every failure is classified into the
// delegate's retry signature.
func (r *Redeemer) Redeem(ctx context.Context, confirmation *Confirmation, delegate Delegate) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if r.adsEnabled {
		r.redeemEnabled(ctx, confirmation, delegate)
		return
	}
	r.sendDisabled(ctx, confirmation, delegate)
}

func (r *Redeemer) redeemEnabled(ctx context.Context, confirmation *Confirmation, delegate Delegate) {
	keys, err := r.keys.Keys(ctx)
	if err != nil || len(keys) == 0 {
		zap.L().Warn("issuers unavailable for redemption",
			zap.String("confirmation_id", confirmation.ID),
			zap.Error(err))
		delegate.OnFailedToRedeemUnblindedToken(confirmation, true, true)
		return
	}

	if !confirmation.WasCreated {
		code, err := r.client.CreateConfirmation(ctx, confirmation)
		switch {
		case err != nil || code >= 500:
			delegate.OnFailedToRedeemUnblindedToken(confirmation, true, true)
			return
		case code == http.StatusConflict || (code >= 200 && code < 300):
			confirmation.WasCreated = true
		default:
			delegate.OnFailedToRedeemUnblindedToken(confirmation, false, false)
			return
		}
	}

	token, code, err := r.client.FetchPaymentToken(ctx, confirmation)
	switch {
	case err != nil || code >= 500:
		delegate.OnFailedToRedeemUnblindedToken(confirmation, true, true)
		return
	case code == http.StatusNotFound || code == http.StatusAccepted:
		// the payment token is expected soon, poll again without backoff
		delegate.OnFailedToRedeemUnblindedToken(confirmation, true, false)
		return
	case code < 200 || code >= 300:
		delegate.OnFailedToRedeemUnblindedToken(confirmation, false, false)
		return
	}

	credential, err := blind.DeriveRedeemCredential(confirmation.TokenValue, []byte(confirmation.ID+token))
	if err != nil {
		zap.L().Error("failed to derive redeem credential",
			zap.String("confirmation_id", confirmation.ID),
			zap.Error(err))
		delegate.OnFailedToRedeemUnblindedToken(confirmation, false, false)
		return
	}

	if err := r.creds.RedeemToken(ctx, confirmation.TokenID, confirmation.ID, "payment"); err != nil {
		if errutil.IsPermanent(err) {
			delegate.OnFailedToRedeemUnblindedToken(confirmation, false, false)
			return
		}
		delegate.OnFailedToRedeemUnblindedToken(confirmation, true, true)
		return
	}

	delegate.OnDidRedeemUnblindedToken(confirmation, credential)
}

func (r *Redeemer) sendDisabled(ctx context.Context, confirmation *Confirmation, delegate Delegate) {
	code, err := r.client.CreateConfirmation(ctx, confirmation)
	if err != nil {
		delegate.OnFailedToSendConfirmation(confirmation, true)
		return
	}

	switch code {
	case http.StatusBadRequest, http.StatusConflict, http.StatusCreated:
		// malformed or already satisfied, retrying cannot help
		delegate.OnFailedToSendConfirmation(confirmation, false)
	default:
		if code >= 200 && code < 300 {
			confirmation.WasCreated = true
			delegate.OnDidSendConfirmation(confirmation)
			return
		}
		delegate.OnFailedToSendConfirmation(confirmation, true)
	}
}
