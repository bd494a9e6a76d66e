package confirmation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	pkgasynq "rewards-pipeline/pkg/asynq"
	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/task"
)

const (
	TypeRedeemConfirmation = "confirmation:redeem"
)

type RedeemPayload struct {
	Confirmation Confirmation `json:"confirmation"`
	Attempt      int          `json:"attempt"`
}

// NewRedeemTask builds a redemption task for the confirmation.
func NewRedeemTask(confirmation *Confirmation, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(RedeemPayload{Confirmation: *confirmation, Attempt: attempt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRedeemConfirmation, payload), nil
}

type HandlerParams struct {
	fx.In

	Config   *config.Config
	Redeemer *Redeemer
	Enqueuer task.Enqueuer
}

// Handler runs redemption tasks. Retries are re-enqueued explicitly rather
// than failed back to the queue so the fast-retry versus backoff distinction
// reported by the delegate survives into the scheduling delay.
type Handler struct {
	cfg      *config.Config
	redeemer *Redeemer
	enqueuer task.Enqueuer
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		cfg:      p.Config,
		redeemer: p.Redeemer,
		enqueuer: p.Enqueuer,
	}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload RedeemPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return errutil.BadRequest("malformed redeem payload", err)
	}

	outcome := &taskDelegate{}
	h.redeemer.Redeem(ctx, &payload.Confirmation, outcome)

	if !outcome.retry {
		return nil
	}

	delay := h.cfg.Contribution.BaseDelay
	if outcome.backoff {
		delay = pkgasynq.Delay(h.cfg.Contribution.BaseDelay, h.cfg.Contribution.MaxDelay, payload.Attempt)
	}
	return h.enqueue(ctx, &payload.Confirmation, payload.Attempt+1, delay)
}

func (h *Handler) enqueue(ctx context.Context, confirmation *Confirmation, attempt int, delay time.Duration) error {
	t, err := NewRedeemTask(confirmation, attempt)
	if err != nil {
		return errutil.Internal("failed to build redeem task", err)
	}
	if _, err := h.enqueuer.Enqueue(ctx, t, asynq.ProcessIn(delay), asynq.Queue("low")); err != nil {
		return errutil.Internal("failed to enqueue redeem task", err)
	}
	zap.L().Info("rescheduled confirmation redemption",
		zap.String("confirmation_id", confirmation.ID),
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))
	return nil
}

// taskDelegate collapses the delegate callbacks into a requeue decision.
type taskDelegate struct {
	retry   bool
	backoff bool
}

func (d *taskDelegate) OnDidRedeemUnblindedToken(c *Confirmation, credential string) {
	zap.L().Info("redeemed unblinded token",
		zap.String("confirmation_id", c.ID))
}

func (d *taskDelegate) OnFailedToRedeemUnblindedToken(c *Confirmation, shouldRetry, shouldBackoff bool) {
	d.retry = shouldRetry
	d.backoff = shouldBackoff
	zap.L().Warn("failed to redeem unblinded token",
		zap.String("confirmation_id", c.ID),
		zap.Bool("should_retry", shouldRetry),
		zap.Bool("should_backoff", shouldBackoff))
}

func (d *taskDelegate) OnDidSendConfirmation(c *Confirmation) {
	zap.L().Info("sent confirmation",
		zap.String("confirmation_id", c.ID))
}

func (d *taskDelegate) OnFailedToSendConfirmation(c *Confirmation, shouldRetry bool) {
	d.retry = shouldRetry
	zap.L().Warn("failed to send confirmation",
		zap.String("confirmation_id", c.ID),
		zap.Bool("should_retry", shouldRetry))
}

func RegisterHandlers(mux *asynq.ServeMux, handler *Handler) {
	mux.Handle(TypeRedeemConfirmation, handler)
}
