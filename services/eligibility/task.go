package eligibility

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/services/adevents"
)

const (
	TypeSelectAds = "ads:select"

	// history beyond the widest rule window is irrelevant to selection
	historyWindow = 30 * 24 * time.Hour
)

type SelectPayload struct {
	Candidates []CreativeAd `json:"candidates"`
}

// NewSelectTask builds a selection task over the candidate set.
func NewSelectTask(candidates []CreativeAd) (*asynq.Task, error) {
	payload, err := json.Marshal(SelectPayload{Candidates: candidates})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeSelectAds, payload), nil
}

type HandlerParams struct {
	fx.In

	Selector *Selector
	Events   *adevents.Store
}

// Handler serves an ad from a candidate set: it snapshots the event history,
// filters the candidates through the exclusion rules, and records a served
// event for the winner.
type Handler struct {
	selector *Selector
	events   *adevents.Store
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{selector: p.Selector, events: p.Events}
}

func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SelectPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return errutil.BadRequest("malformed select payload", err)
	}

	served, err := h.Serve(ctx, payload.Candidates)
	if err != nil {
		return err
	}
	if served == nil {
		zap.L().Info("no eligible ad in candidate set",
			zap.Int("candidates", len(payload.Candidates)))
		return nil
	}
	return nil
}

// Serve picks the first eligible candidate and appends its served event.
// Returns nil when every candidate is excluded.
func (h *Handler) Serve(ctx context.Context, candidates []CreativeAd) (*CreativeAd, error) {
	events, err := h.events.List(ctx, adevents.Filter{
		Since: time.Now().Add(-historyWindow),
	})
	if err != nil {
		return nil, err
	}

	eligible := h.selector.Select(candidates, events)
	if len(eligible) == 0 {
		return nil, nil
	}

	winner := eligible[0]
	if _, err := h.events.Append(ctx, adevents.AdEvent{
		CampaignID:    winner.CampaignID,
		CreativeSetID: winner.CreativeSetID,
		Type:          adevents.ConfirmationServed,
	}); err != nil {
		return nil, err
	}
	return &winner, nil
}

func RegisterHandlers(mux *asynq.ServeMux, handler *Handler) {
	mux.Handle(TypeSelectAds, handler)
}
