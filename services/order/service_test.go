package order

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rewards-pipeline/pkg/errutil"
	"rewards-pipeline/pkg/repository"
	"rewards-pipeline/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type paymentMock struct {
	createOrderFunc             func(ctx context.Context, order *SKUOrder) error
	sendExternalTransactionFunc func(ctx context.Context, orderID string, wallet WalletType) error

	createOrderCalls             int
	sendExternalTransactionCalls int
}

func (m *paymentMock) CreateOrder(ctx context.Context, order *SKUOrder) error {
	m.createOrderCalls++
	if m.createOrderFunc != nil {
		return m.createOrderFunc(ctx, order)
	}
	return nil
}

func (m *paymentMock) SendExternalTransaction(ctx context.Context, orderID string, wallet WalletType) error {
	m.sendExternalTransactionCalls++
	if m.sendExternalTransactionFunc != nil {
		return m.sendExternalTransactionFunc(ctx, orderID, wallet)
	}
	return nil
}

type credsMock struct {
	startSingleUseFunc func(ctx context.Context, order *SKUOrder, items []*SKUOrderItem) error

	startSingleUseCalls int
}

func (m *credsMock) StartSingleUse(ctx context.Context, order *SKUOrder, items []*SKUOrderItem) error {
	m.startSingleUseCalls++
	if m.startSingleUseFunc != nil {
		return m.startSingleUseFunc(ctx, order, items)
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *paymentMock, *credsMock) {
	t.Helper()

	db := testutil.NewTestDB(t, &SKUOrder{}, &SKUOrderItem{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	payment := &paymentMock{}
	creds := &credsMock{}

	svc := NewService(ServiceParams{
		DB:      db,
		Node:    node,
		Orders:  repository.ProvideStore[SKUOrder](db),
		Items:   repository.ProvideStore[SKUOrderItem](db),
		Payment: payment,
		Creds:   creds,
	})
	return svc, db, payment, creds
}

func singleUseItems() []*SKUOrderItem {
	return []*SKUOrderItem{
		{
			SKU:       "auto-contribute-vote",
			Quantity:  10,
			Price:     0.25,
			Type:      ItemSingleUse,
			ExpiresAt: time.Now().Add(90 * 24 * time.Hour),
		},
	}
}

func TestProcessCreatesPendingOrder(t *testing.T) {
	svc, _, payment, creds := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)
	require.NotEmpty(t, orderID)
	require.Equal(t, 1, payment.createOrderCalls)
	require.Equal(t, 1, creds.startSingleUseCalls)

	order, err := svc.GetByContribution(ctx, "contribution-1")
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, OrderPending, order.Status)
	require.Equal(t, "contribution-1", order.ContributionID)
	require.InDelta(t, 2.5, order.TotalAmount, 1e-9)
	require.Len(t, order.Items, 1)
}

func TestProcessRejectsUnknownWallet(t *testing.T) {
	svc, _, payment, _ := newTestService(t)

	_, err := svc.Process(context.Background(), singleUseItems(), WalletType("paypal"), "contribution-1")
	require.Error(t, err)
	require.True(t, errutil.IsPermanent(err))
	require.Zero(t, payment.createOrderCalls)
}

func TestRetryPendingReassociatesWithoutProcessorCall(t *testing.T) {
	svc, _, payment, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletGemini, "contribution-1")
	require.NoError(t, err)
	require.Equal(t, 1, payment.createOrderCalls)

	got, err := svc.Retry(ctx, orderID, "contribution-1")
	require.NoError(t, err)
	require.Equal(t, orderID, got)
	require.Equal(t, 1, payment.createOrderCalls)
	require.Zero(t, payment.sendExternalTransactionCalls)

	order, err := svc.GetByContribution(ctx, "contribution-1")
	require.NoError(t, err)
	require.Equal(t, OrderPending, order.Status)
}

func TestRetryPaidResendsExternalTransaction(t *testing.T) {
	svc, _, payment, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderPaid))

	got, err := svc.Retry(ctx, orderID, "contribution-1")
	require.NoError(t, err)
	require.Equal(t, orderID, got)
	require.Equal(t, 1, payment.sendExternalTransactionCalls)
}

func TestRetryFulfilledSucceedsImmediately(t *testing.T) {
	svc, _, payment, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderPaid))
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderFulfilled))

	got, err := svc.Retry(ctx, orderID, "contribution-1")
	require.NoError(t, err)
	require.Equal(t, orderID, got)
	require.Equal(t, 1, payment.createOrderCalls)
	require.Zero(t, payment.sendExternalTransactionCalls)
}

func TestRetryCanceledIsPermanent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderCanceled))

	_, err = svc.Retry(ctx, orderID, "contribution-1")
	require.Error(t, err)
	require.True(t, errutil.IsPermanent(err))
}

func TestRetryMissingOrderIsPermanent(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	_, err := svc.Retry(context.Background(), "does-not-exist", "contribution-1")
	require.Error(t, err)
	require.True(t, errutil.IsPermanent(err))
}

func TestUpdateStatusNeverRegresses(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderPaid))
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderFulfilled))

	// repeating the current status is a no-op
	require.NoError(t, svc.UpdateStatus(ctx, orderID, OrderFulfilled))

	// a fulfilled order can neither regress nor cancel
	err = svc.UpdateStatus(ctx, orderID, OrderPaid)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	err = svc.UpdateStatus(ctx, orderID, OrderCanceled)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}

func TestAssociateContributionConflictsAcrossContributions(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	orderID, err := svc.Process(ctx, singleUseItems(), WalletUphold, "contribution-1")
	require.NoError(t, err)

	require.NoError(t, svc.AssociateContribution(ctx, orderID, "contribution-1"))

	err = svc.AssociateContribution(ctx, orderID, "contribution-2")
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))
}
