package order

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/repository"
)

// PaymentProcessor is the wallet-type specific settlement transport. Both
// calls are idempotent on the processor side keyed by order id.
type PaymentProcessor interface {
	CreateOrder(ctx context.Context, order *SKUOrder) error
	SendExternalTransaction(ctx context.Context, orderID string, wallet WalletType) error
}

// CredsStarter kicks off credential issuance for an order's single-use
// items. Implemented by the credentials service; declared here so this
// package stays import-cycle free.
type CredsStarter interface {
	StartSingleUse(ctx context.Context, order *SKUOrder, items []*SKUOrderItem) error
}

type ServiceParams struct {
	fx.In

	DB      *gorm.DB
	Node    *snowflake.Node
	Orders  repository.Repository[SKUOrder]
	Items   repository.Repository[SKUOrderItem]
	Payment PaymentProcessor
	Creds   CredsStarter
}

type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	orders  repository.Repository[SKUOrder]
	items   repository.Repository[SKUOrderItem]
	payment PaymentProcessor
	creds   CredsStarter
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		orders:  p.Orders,
		items:   p.Items,
		payment: p.Payment,
		creds:   p.Creds,
	}
}

// Process creates a pending order for the given items, registers it with the
// payment processor, associates it with the owning contribution, and starts
// credential issuance for single-use items. Returns the order id.
func (s *Service) Process(ctx context.Context, items []*SKUOrderItem, wallet WalletType, contributionID string) (string, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if !wallet.Valid() {
		return "", errutil.BadRequest("unrecognized wallet type", nil)
	}
	if len(items) == 0 {
		return "", errutil.BadRequest("order must contain at least one item", nil)
	}

	order := &SKUOrder{
		ID:         s.node.Generate().String(),
		WalletType: wallet,
		Status:     OrderPending,
	}
	for _, item := range items {
		item.ID = s.node.Generate().String()
		item.OrderID = order.ID
		order.TotalAmount += item.Price * float64(item.Quantity)
	}

	if err := s.orders.Create(ctx, order); err != nil {
		zap.L().Error("failed to create order", zap.Error(err))
		return "", errutil.Internal("failed to create order", err)
	}
	if err := s.items.BatchCreate(ctx, items); err != nil {
		zap.L().Error("failed to create order items", zap.String("order_id", order.ID), zap.Error(err))
		return "", errutil.Internal("failed to create order items", err)
	}
	order.Items = items

	if err := s.payment.CreateOrder(ctx, order); err != nil {
		zap.L().Error("payment processor rejected order",
			zap.String("order_id", order.ID),
			zap.Error(err))
		return "", err
	}

	if err := s.AssociateContribution(ctx, order.ID, contributionID); err != nil {
		return "", err
	}

	if err := s.startCreds(ctx, order, items); err != nil {
		return "", err
	}

	return order.ID, nil
}

// Retry re-reads the persisted order and re-enters the pipeline at the stage
// its status implies. Fulfilled orders succeed immediately; canceled or
// missing orders are a permanent failure for the caller to dispose of.
func (s *Service) Retry(ctx context.Context, orderID string, contributionID string) (string, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	order, err := s.orders.FindOne(ctx, &SKUOrder{ID: orderID})
	if err != nil {
		zap.L().Error("failed to load order", zap.String("order_id", orderID), zap.Error(err))
		return "", errutil.Internal("failed to load order", err)
	}
	if order == nil {
		return "", errutil.BadRequest("order not found", nil)
	}
	if !order.WalletType.Valid() {
		return "", errutil.BadRequest("unrecognized wallet type", nil)
	}

	switch order.Status {
	case OrderPending:
		if err := s.AssociateContribution(ctx, order.ID, contributionID); err != nil {
			return "", err
		}
		return order.ID, nil

	case OrderPaid:
		if err := s.payment.SendExternalTransaction(ctx, order.ID, order.WalletType); err != nil {
			zap.L().Error("failed to send external transaction",
				zap.String("order_id", order.ID),
				zap.Error(err))
			return "", err
		}
		return order.ID, nil

	case OrderFulfilled:
		return order.ID, nil

	default:
		return "", errutil.BadRequest("order is canceled", nil)
	}
}

// AssociateContribution records the owning contribution id on the order.
// Re-association with the same id is a no-op; association to an order already
// owned by a different contribution is a conflict. Storage failures surface
// as a retryable association error, distinct from order-creation failures.
func (s *Service) AssociateContribution(ctx context.Context, orderID, contributionID string) error {
	if contributionID == "" {
		return errutil.BadRequest("contribution id must not be empty", nil)
	}

	result := s.db.WithContext(ctx).
		Model(&SKUOrder{}).
		Where("id = ? AND (contribution_id = '' OR contribution_id = ?)", orderID, contributionID).
		Update("contribution_id", contributionID)
	if result.Error != nil {
		zap.L().Error("failed to associate contribution id",
			zap.String("order_id", orderID),
			zap.Error(result.Error))
		return errutil.Unavailable("failed to associate contribution id", result.Error)
	}
	if result.RowsAffected == 0 {
		return errutil.Conflict("order already associated with another contribution", nil)
	}
	return nil
}

// UpdateStatus advances the order status. The transition is guarded in the
// UPDATE itself so concurrent writers cannot regress a status; repeating the
// current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next OrderStatus) error {
	from, ok := allowedFrom[next]
	if !ok {
		return errutil.BadRequest("invalid order status", nil)
	}

	result := s.db.WithContext(ctx).
		Model(&SKUOrder{}).
		Where("id = ? AND status IN ?", orderID, from).
		Update("status", next)
	if result.Error != nil {
		zap.L().Error("failed to update order status",
			zap.String("order_id", orderID),
			zap.Error(result.Error))
		return errutil.Internal("failed to update order status", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	order, err := s.orders.FindOne(ctx, &SKUOrder{ID: orderID})
	if err != nil {
		return errutil.Internal("failed to load order", err)
	}
	if order != nil && order.Status == next {
		return nil
	}
	return errutil.Conflict("order status transition not allowed", nil)
}

// GetByContribution loads the order associated with a contribution, with its
// items. Returns (nil, nil) when the contribution never reached order
// creation.
func (s *Service) GetByContribution(ctx context.Context, contributionID string) (*SKUOrder, error) {
	order, err := s.orders.FindOne(ctx, &SKUOrder{ContributionID: contributionID})
	if err != nil {
		return nil, errutil.Internal("failed to load order", err)
	}
	if order == nil {
		return nil, nil
	}

	items, err := s.items.Find(ctx, &SKUOrderItem{OrderID: order.ID})
	if err != nil {
		return nil, errutil.Internal("failed to load order items", err)
	}
	order.Items = items
	return order, nil
}

func (s *Service) startCreds(ctx context.Context, order *SKUOrder, items []*SKUOrderItem) error {
	singleUse := make([]*SKUOrderItem, 0, len(items))
	for _, item := range items {
		if item.Type == ItemSingleUse {
			singleUse = append(singleUse, item)
		}
	}
	if len(singleUse) == 0 {
		return nil
	}
	return s.creds.StartSingleUse(ctx, order, singleUse)
}
