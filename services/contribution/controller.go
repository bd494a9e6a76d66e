package contribution

import (
	"context"
	"math"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"rewards-pipeline/pkg/config"
	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/repository"
	"rewards-pipeline/services/credentials"
	"rewards-pipeline/services/order"
)

// voteValue is the price of one auto-contribution vote.
const voteValue = 0.25

type ControllerParams struct {
	fx.In

	DB            *gorm.DB
	Config        *config.Config
	Node          *snowflake.Node
	Contributions repository.Repository[Contribution]
	Orders        *order.Service
	Creds         *credentials.Service
}

// Controller resumes contributions from their persisted step and drives them
// through the order and credential pipelines to completion.
type Controller struct {
	db            *gorm.DB
	cfg           *config.Config
	node          *snowflake.Node
	contributions repository.Repository[Contribution]
	orders        *order.Service
	creds         *credentials.Service
}

func NewController(p ControllerParams) *Controller {
	return &Controller{
		db:            p.DB,
		cfg:           p.Config,
		node:          p.Node,
		contributions: p.Contributions,
		orders:        p.Orders,
		creds:         p.Creds,
	}
}

// Create persists a new contribution at the start step.
func (c *Controller) Create(ctx context.Context, contribution *Contribution) error {
	if contribution.Amount <= 0 {
		return errutil.BadRequest("contribution amount must be positive", nil)
	}
	if contribution.ID == "" {
		contribution.ID = c.node.Generate().String()
	}
	contribution.Step = StepStart
	contribution.RetryCount = 0

	if err := c.contributions.Create(ctx, contribution); err != nil {
		zap.L().Error("failed to create contribution", zap.Error(err))
		return errutil.Internal("failed to create contribution", err)
	}
	return nil
}

// Retry resumes the contribution at the stage its persisted step implies.
// Failed attempts increment the retry count; once the count passes the
// configured ceiling the contribution sinks to Failed and is never retried
// again.
func (c *Controller) Retry(ctx context.Context, contributionID string) error {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	contribution, err := c.contributions.FindOne(ctx, &Contribution{ID: contributionID})
	if err != nil {
		return errutil.Internal("failed to load contribution", err)
	}
	if contribution == nil {
		return errutil.BadRequest("contribution not found", nil)
	}
	if contribution.Step == StepCompleted {
		return nil
	}
	if contribution.Step.Terminal() {
		return errutil.FailedPrecondition("contribution already reached a sink step", nil)
	}

	switch contribution.Step {
	case StepStart, StepExternalTransaction:
		err = c.retryOrderPath(ctx, contribution)
	case StepPrepare, StepReserve, StepCreds:
		err = c.retryCredsPath(ctx, contribution)
	default:
		return errutil.FailedPrecondition("unknown contribution step", nil)
	}

	if err != nil {
		return c.recordFailure(ctx, contribution, err)
	}
	return nil
}

// retryOrderPath re-enters the order pipeline: creates the order if the
// contribution never reached order creation, otherwise retries it by status,
// then hands off to the credential path.
func (c *Controller) retryOrderPath(ctx context.Context, contribution *Contribution) error {
	ord, err := c.orders.GetByContribution(ctx, contribution.ID)
	if err != nil {
		return err
	}

	if ord == nil {
		items, err := c.voteItems(ctx, contribution)
		if err != nil {
			return err
		}
		orderID, err := c.orders.Process(ctx, items, contribution.Processor, contribution.ID)
		if err != nil {
			return err
		}
		ord, err = c.orders.GetByContribution(ctx, contribution.ID)
		if err != nil {
			return err
		}
		if ord == nil {
			return errutil.Internal("order vanished after creation", nil)
		}
		zap.L().Info("created order for contribution",
			zap.String("contribution_id", contribution.ID),
			zap.String("order_id", orderID))
	} else {
		if _, err := c.orders.Retry(ctx, ord.ID, contribution.ID); err != nil {
			return err
		}
	}

	if ord.Status == order.OrderPending {
		if err := c.orders.UpdateStatus(ctx, ord.ID, order.OrderPaid); err != nil {
			return err
		}
	}

	if err := c.SetStep(ctx, contribution, StepCreds); err != nil {
		return err
	}
	return c.retryCredsPath(ctx, contribution)
}

// retryCredsPath re-enters the credential workflow for the contribution's
// existing order. It never recreates the order.
func (c *Controller) retryCredsPath(ctx context.Context, contribution *Contribution) error {
	ord, err := c.orders.GetByContribution(ctx, contribution.ID)
	if err != nil {
		return err
	}
	if ord == nil {
		return errutil.Internal("contribution has no order at credential step", nil)
	}

	if err := c.creds.StartSingleUse(ctx, ord, singleUseItems(ord.Items)); err != nil {
		return err
	}

	done, err := c.creds.Finished(ctx, ord.Items)
	if err != nil {
		return err
	}
	if !done {
		return errutil.NotReady("credential batches not finished", nil)
	}

	if ord.Status != order.OrderFulfilled {
		if err := c.orders.UpdateStatus(ctx, ord.ID, order.OrderFulfilled); err != nil {
			return err
		}
	}

	return c.SetStep(ctx, contribution, StepCompleted)
}

// voteItems derives the single-use vote items for an auto-contribution style
// order. A contribution too small to fund a single vote sinks immediately.
func (c *Controller) voteItems(ctx context.Context, contribution *Contribution) ([]*order.SKUOrderItem, error) {
	quantity := int(math.Floor(contribution.Amount/voteValue + 1e-9))
	if quantity < 1 {
		if err := c.sink(ctx, contribution, StepNotEnoughFunds); err != nil {
			return nil, err
		}
		return nil, errutil.Exhausted("contribution cannot fund a single vote", nil)
	}

	return []*order.SKUOrderItem{
		{
			SKU:      "contribution-vote",
			Quantity: quantity,
			Price:    voteValue,
			Type:     order.ItemSingleUse,
		},
	}, nil
}

// SetStep advances the contribution step. The transition is guarded in the
// UPDATE so the step never moves backward; repeating the current step is a
// no-op.
func (c *Controller) SetStep(ctx context.Context, contribution *Contribution, next Step) error {
	rank, ok := stepRank[next]
	if !ok {
		return errutil.BadRequest("invalid contribution step", nil)
	}

	from := make([]Step, 0, rank)
	for step, r := range stepRank {
		if r < rank {
			from = append(from, step)
		}
	}

	result := c.db.WithContext(ctx).
		Model(&Contribution{}).
		Where("id = ? AND step IN ?", contribution.ID, from).
		Update("step", next)
	if result.Error != nil {
		return errutil.Internal("failed to update contribution step", result.Error)
	}
	if result.RowsAffected > 0 {
		contribution.Step = next
		return nil
	}

	current, err := c.contributions.FindOne(ctx, &Contribution{ID: contribution.ID})
	if err != nil {
		return errutil.Internal("failed to load contribution", err)
	}
	if current != nil && current.Step == next {
		contribution.Step = next
		return nil
	}
	return errutil.Conflict("contribution step transition not allowed", nil)
}

// RetryFromStart is the one sanctioned backward transition: it resets a
// non-terminal contribution to the start step with a fresh retry budget.
func (c *Controller) RetryFromStart(ctx context.Context, contributionID string) error {
	terminal := []Step{StepCompleted, StepFailed, StepNotEnoughFunds, StepAcTableEmpty, StepRewardsOff, StepAcOff}

	result := c.db.WithContext(ctx).
		Model(&Contribution{}).
		Where("id = ? AND step NOT IN ?", contributionID, terminal).
		Updates(map[string]any{"step": StepStart, "retry_count": 0})
	if result.Error != nil {
		return errutil.Internal("failed to reset contribution", result.Error)
	}
	if result.RowsAffected == 0 {
		return errutil.FailedPrecondition("contribution cannot be restarted", nil)
	}
	return nil
}

// Abandon moves a non-terminal contribution to an explicit sink step.
func (c *Controller) Abandon(ctx context.Context, contributionID string, sink Step) error {
	if !sink.Sink() {
		return errutil.BadRequest("step is not a sink", nil)
	}
	contribution, err := c.contributions.FindOne(ctx, &Contribution{ID: contributionID})
	if err != nil {
		return errutil.Internal("failed to load contribution", err)
	}
	if contribution == nil {
		return errutil.BadRequest("contribution not found", nil)
	}
	return c.sink(ctx, contribution, sink)
}

func (c *Controller) sink(ctx context.Context, contribution *Contribution, sink Step) error {
	terminal := []Step{StepCompleted, StepFailed, StepNotEnoughFunds, StepAcTableEmpty, StepRewardsOff, StepAcOff}

	result := c.db.WithContext(ctx).
		Model(&Contribution{}).
		Where("id = ? AND step NOT IN ?", contribution.ID, terminal).
		Update("step", sink)
	if result.Error != nil {
		return errutil.Internal("failed to sink contribution", result.Error)
	}
	if result.RowsAffected > 0 {
		contribution.Step = sink
	}
	return nil
}

// recordFailure bumps the retry count and enforces the retry ceiling.
// Permanent errors pass straight through; the contribution is left for the
// caller to abandon.
func (c *Controller) recordFailure(ctx context.Context, contribution *Contribution, cause error) error {
	if errutil.IsPermanent(cause) {
		return cause
	}

	contribution.RetryCount++
	result := c.db.WithContext(ctx).
		Model(&Contribution{}).
		Where("id = ?", contribution.ID).
		Update("retry_count", contribution.RetryCount)
	if result.Error != nil {
		zap.L().Error("failed to record retry",
			zap.String("contribution_id", contribution.ID),
			zap.Error(result.Error))
	}

	if contribution.RetryCount >= c.cfg.Contribution.MaxRetries {
		if err := c.sink(ctx, contribution, StepFailed); err != nil {
			return err
		}
		zap.L().Warn("contribution exhausted retries",
			zap.String("contribution_id", contribution.ID),
			zap.Int("retry_count", contribution.RetryCount))
		return errutil.Exhausted("contribution retry ceiling exceeded", cause)
	}

	return cause
}

// RetryAll resumes every non-terminal contribution, at most
// cfg.Contribution.Concurrency at a time. Each contribution is an
// independent unit of work; one failure does not stop the sweep.
func (c *Controller) RetryAll(ctx context.Context) error {
	active := []Step{StepStart, StepPrepare, StepReserve, StepExternalTransaction, StepCreds}

	var pending []*Contribution
	if err := c.db.WithContext(ctx).
		Where("step IN ?", active).
		Find(&pending).Error; err != nil {
		return errutil.Internal("failed to list contributions", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Contribution.Concurrency)
	for _, contribution := range pending {
		id := contribution.ID
		g.Go(func() error {
			if err := c.Retry(gctx, id); err != nil {
				zap.L().Warn("contribution retry failed",
					zap.String("contribution_id", id),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

func singleUseItems(items []*order.SKUOrderItem) []*order.SKUOrderItem {
	singleUse := make([]*order.SKUOrderItem, 0, len(items))
	for _, item := range items {
		if item.Type == order.ItemSingleUse {
			singleUse = append(singleUse, item)
		}
	}
	return singleUse
}
