package credentials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"rewards-pipeline/pkg/blind"
	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/repository"
	"rewards-pipeline/services/order"
)

// Trigger identifies the batch to issue credentials for: a promotion claim
// or an SKU order item.
type Trigger struct {
	ID            string
	Size          int
	Type          TriggerType
	ValuePerToken float64
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Batches repository.Repository[CredsBatch]
	Tokens  repository.Repository[UnblindedToken]
	Issuer  IssuerClient
	Keys    *KeyCache
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	batches repository.Repository[CredsBatch]
	tokens  repository.Repository[UnblindedToken]
	issuer  IssuerClient
	keys    *KeyCache
	nowFunc func() time.Time
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		batches: p.Batches,
		tokens:  p.Tokens,
		issuer:  p.Issuer,
		keys:    p.Keys,
		nowFunc: time.Now,
	}
}

// Start drives the credential batch for the trigger towards Finished,
// resuming from the persisted status. Safe to call repeatedly: a finished
// batch is a no-op success and a duplicate claim is deduplicated by the
// issuer on trigger id.
func (s *Service) Start(ctx context.Context, trigger Trigger) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if trigger.ID == "" || trigger.Size <= 0 {
		return errutil.BadRequest("invalid credential trigger", nil)
	}

	batch, err := s.batches.FindOne(ctx, &CredsBatch{TriggerID: trigger.ID, TriggerType: trigger.Type})
	if err != nil {
		return errutil.Internal("failed to load creds batch", err)
	}
	if batch == nil {
		batch = &CredsBatch{
			ID:            s.node.Generate().String(),
			Size:          trigger.Size,
			TriggerID:     trigger.ID,
			TriggerType:   trigger.Type,
			Status:        BatchNone,
			ValuePerToken: trigger.ValuePerToken,
		}
		if err := s.batches.Create(ctx, batch); err != nil {
			return errutil.Internal("failed to create creds batch", err)
		}
	}

	for {
		switch batch.Status {
		case BatchNone:
			if err := s.blindStep(ctx, batch); err != nil {
				return err
			}
		case BatchBlinded, BatchClaimed:
			if err := s.claimStep(ctx, batch); err != nil {
				return err
			}
		case BatchSigned:
			if err := s.finishStep(ctx, batch); err != nil {
				return err
			}
		case BatchFinished:
			return nil
		case BatchCorrupted:
			return errutil.FailedPrecondition("creds batch is corrupted", nil)
		default:
			return errutil.Internal("unknown creds batch status", nil)
		}
	}
}

// blindStep generates Size fresh tokens and persists both the token secrets
// and their blinded forms.
func (s *Service) blindStep(ctx context.Context, batch *CredsBatch) error {
	creds := make([]string, 0, batch.Size)
	blinded := make([]string, 0, batch.Size)
	for i := 0; i < batch.Size; i++ {
		token, err := blind.NewToken()
		if err != nil {
			return errutil.Internal("failed to generate token", err)
		}
		encoded, err := token.MarshalText()
		if err != nil {
			return errutil.Internal("failed to encode token", err)
		}
		creds = append(creds, string(encoded))
		blinded = append(blinded, token.Blinded())
	}

	credsJSON, err := json.Marshal(creds)
	if err != nil {
		return errutil.Internal("failed to encode creds", err)
	}
	blindedJSON, err := json.Marshal(blinded)
	if err != nil {
		return errutil.Internal("failed to encode blinded creds", err)
	}

	update := map[string]any{
		"creds":         datatypes.JSON(credsJSON),
		"blinded_creds": datatypes.JSON(blindedJSON),
		"status":        BatchBlinded,
	}
	if err := s.updateBatch(ctx, batch.ID, update); err != nil {
		return err
	}

	batch.Creds = datatypes.JSON(credsJSON)
	batch.BlindedCreds = datatypes.JSON(blindedJSON)
	batch.Status = BatchBlinded
	return nil
}

// claimStep submits the blinded credentials to the issuer. A not-ready
// response parks the batch in Claimed so the retry controller re-polls
// without re-blinding.
func (s *Service) claimStep(ctx context.Context, batch *CredsBatch) error {
	var blinded []string
	if err := json.Unmarshal(batch.BlindedCreds, &blinded); err != nil {
		return s.markCorrupted(ctx, batch, "blinded creds are not parseable")
	}

	resp, err := s.issuer.Claim(ctx, &ClaimRequest{
		TriggerID:    batch.TriggerID,
		TriggerType:  batch.TriggerType,
		BlindedCreds: blinded,
	})
	if err != nil {
		if errutil.StatusOf(err) == errutil.StatusNotReady && batch.Status != BatchClaimed {
			if uerr := s.updateBatch(ctx, batch.ID, map[string]any{"status": BatchClaimed}); uerr != nil {
				return uerr
			}
			batch.Status = BatchClaimed
		}
		return err
	}

	signedJSON, err := json.Marshal(resp.SignedCreds)
	if err != nil {
		return errutil.Internal("failed to encode signed creds", err)
	}

	update := map[string]any{
		"signed_creds": datatypes.JSON(signedJSON),
		"public_key":   resp.PublicKey,
		"batch_proof":  resp.BatchProof,
		"expires_at":   resp.ExpiresAt,
		"status":       BatchSigned,
	}
	if resp.ValuePerToken > 0 {
		update["value_per_token"] = resp.ValuePerToken
	}
	if err := s.updateBatch(ctx, batch.ID, update); err != nil {
		return err
	}

	batch.SignedCreds = datatypes.JSON(signedJSON)
	batch.PublicKey = resp.PublicKey
	batch.BatchProof = resp.BatchProof
	batch.ExpiresAt = resp.ExpiresAt
	if resp.ValuePerToken > 0 {
		batch.ValuePerToken = resp.ValuePerToken
	}
	batch.Status = BatchSigned
	return nil
}

// finishStep validates the signed batch and unblinds every credential into a
// spendable token row. Any validation failure is permanent and marks the
// batch corrupted.
func (s *Service) finishStep(ctx context.Context, batch *CredsBatch) error {
	if len(batch.Creds) == 0 || len(batch.SignedCreds) == 0 {
		return s.markCorrupted(ctx, batch, "credentials are missing")
	}

	var creds, blinded, signed []string
	if err := json.Unmarshal(batch.Creds, &creds); err != nil {
		return s.markCorrupted(ctx, batch, "creds are not parseable")
	}
	if err := json.Unmarshal(batch.BlindedCreds, &blinded); err != nil {
		return s.markCorrupted(ctx, batch, "blinded creds are not parseable")
	}
	if err := json.Unmarshal(batch.SignedCreds, &signed); err != nil {
		return s.markCorrupted(ctx, batch, "signed creds are not parseable")
	}
	if len(signed) != len(creds) || len(signed) != len(blinded) {
		return s.markCorrupted(ctx, batch, "signed creds count mismatch")
	}

	keys, err := s.keys.Keys(ctx)
	if err != nil {
		return err
	}
	if !containsKey(keys, batch.PublicKey) {
		return s.markCorrupted(ctx, batch, "public key is not a known issuer key")
	}

	if err := blind.VerifyBatchProof(batch.BatchProof, batch.PublicKey, blinded, signed); err != nil {
		return s.markCorrupted(ctx, batch, "batch proof verification failed")
	}

	now := s.nowFunc()
	tokens := make([]*UnblindedToken, 0, len(creds))
	for i, encoded := range creds {
		token, err := blind.ParseToken(encoded)
		if err != nil {
			return s.markCorrupted(ctx, batch, "stored token is not parseable")
		}
		value, err := token.Unblind(signed[i])
		if err != nil {
			return s.markCorrupted(ctx, batch, "failed to unblind signed credential")
		}
		tokens = append(tokens, &UnblindedToken{
			ID:         s.node.Generate().String(),
			TokenValue: value,
			PublicKey:  batch.PublicKey,
			Value:      batch.ValuePerToken,
			CredsID:    batch.ID,
			ExpiresAt:  batch.ExpiresAt,
			RedeemedAt: 0,
			CreatedAt:  now,
		})
	}

	if err := s.tokens.BatchCreate(ctx, tokens); err != nil {
		return errutil.Internal("failed to store unblinded tokens", err)
	}
	if err := s.updateBatch(ctx, batch.ID, map[string]any{"status": BatchFinished}); err != nil {
		return err
	}
	batch.Status = BatchFinished
	return nil
}

func (s *Service) markCorrupted(ctx context.Context, batch *CredsBatch, reason string) error {
	zap.L().Error("creds batch corrupted",
		zap.String("creds_id", batch.ID),
		zap.String("trigger_id", batch.TriggerID),
		zap.String("reason", reason))

	if err := s.updateBatch(ctx, batch.ID, map[string]any{"status": BatchCorrupted}); err != nil {
		return err
	}
	batch.Status = BatchCorrupted
	return errutil.FailedPrecondition(reason, nil)
}

func (s *Service) updateBatch(ctx context.Context, batchID string, update map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&CredsBatch{}).
		Where("id = ?", batchID).
		Updates(update)
	if result.Error != nil {
		zap.L().Error("failed to update creds batch",
			zap.String("creds_id", batchID),
			zap.Error(result.Error))
		return errutil.Internal("failed to update creds batch", result.Error)
	}
	return nil
}

// StartSingleUse issues one credential batch per single-use order item,
// sized by the item quantity. Implements the order pipeline's credential
// trigger.
func (s *Service) StartSingleUse(ctx context.Context, o *order.SKUOrder, items []*order.SKUOrderItem) error {
	for _, item := range items {
		trigger := Trigger{
			ID:            item.ID,
			Size:          item.Quantity,
			Type:          TriggerSKU,
			ValuePerToken: item.Price,
		}
		if err := s.Start(ctx, trigger); err != nil {
			return err
		}
	}
	return nil
}

// Finished reports whether every single-use item on the order has a finished
// credential batch.
func (s *Service) Finished(ctx context.Context, items []*order.SKUOrderItem) (bool, error) {
	for _, item := range items {
		if item.Type != order.ItemSingleUse {
			continue
		}
		batch, err := s.batches.FindOne(ctx, &CredsBatch{TriggerID: item.ID, TriggerType: TriggerSKU})
		if err != nil {
			return false, errutil.Internal("failed to load creds batch", err)
		}
		if batch == nil || batch.Status != BatchFinished {
			return false, nil
		}
	}
	return true, nil
}

// SpendableTokens returns unredeemed, unexpired tokens from batches of the
// given trigger types, oldest first.
func (s *Service) SpendableTokens(ctx context.Context, types ...TriggerType) ([]*UnblindedToken, error) {
	var tokens []*UnblindedToken
	err := s.db.WithContext(ctx).
		Model(&UnblindedToken{}).
		Joins("JOIN creds_batches ON creds_batches.id = unblinded_tokens.creds_id").
		Where("creds_batches.trigger_type IN ?", types).
		Where("unblinded_tokens.redeemed_at = 0").
		Where("unblinded_tokens.expires_at > ?", s.nowFunc()).
		Order("unblinded_tokens.created_at ASC").
		Find(&tokens).Error
	if err != nil {
		zap.L().Error("failed to query spendable tokens", zap.Error(err))
		return nil, errutil.Internal("failed to query spendable tokens", err)
	}
	return tokens, nil
}

// RedeemToken marks a token redeemed for the given confirmation or
// contribution. The redeemed_at guard in the UPDATE enforces at-most-once
// redemption under concurrent callers.
func (s *Service) RedeemToken(ctx context.Context, tokenID, redeemID, redeemType string) error {
	result := s.db.WithContext(ctx).
		Model(&UnblindedToken{}).
		Where("id = ? AND redeemed_at = 0", tokenID).
		Updates(map[string]any{
			"redeemed_at": s.nowFunc().Unix(),
			"redeem_id":   redeemID,
			"redeem_type": redeemType,
		})
	if result.Error != nil {
		zap.L().Error("failed to redeem token",
			zap.String("token_id", tokenID),
			zap.Error(result.Error))
		return errutil.Internal("failed to redeem token", result.Error)
	}
	if result.RowsAffected == 0 {
		return errutil.Conflict("token already redeemed", nil)
	}
	return nil
}

func containsKey(keys []string, key string) bool {
	if key == "" {
		return false
	}
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
