package contribution

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/task"
)

// NewRetryTask builds the retry task for a contribution.
func NewRetryTask(contributionID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RetryPayload{ContributionID: contributionID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeContributionRetry, payload), nil
}

// EnqueueRetry schedules a contribution retry after the given delay.
func EnqueueRetry(ctx context.Context, enqueuer task.Enqueuer, contributionID string, delay time.Duration) error {
	t, err := NewRetryTask(contributionID)
	if err != nil {
		return errutil.Internal("failed to build retry task", err)
	}
	if _, err := enqueuer.Enqueue(ctx, t, asynq.ProcessIn(delay), asynq.Queue("default")); err != nil {
		return errutil.Internal("failed to enqueue retry task", err)
	}
	return nil
}

type HandlerParams struct {
	fx.In

	Controller *Controller
}

// Handler processes contribution retry tasks. Retryable errors are returned
// to the queue; the queue's delay function decides fast retry versus
// backoff.
type Handler struct {
	controller *Controller
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{controller: p.Controller}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload RetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return errutil.BadRequest("malformed retry payload", err)
	}

	if err := h.controller.Retry(ctx, payload.ContributionID); err != nil {
		zap.L().Warn("contribution retry task failed",
			zap.String("contribution_id", payload.ContributionID),
			zap.Error(err))
		return err
	}
	return nil
}

// RegisterHandlers wires the contribution tasks onto the worker mux.
func RegisterHandlers(mux *asynq.ServeMux, handler *Handler) {
	mux.Handle(TypeContributionRetry, handler)
}
