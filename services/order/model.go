package order

import (
	"time"
)

// OrderStatus is the order lifecycle state. Status only ever advances
// Pending -> Paid -> Fulfilled; Canceled is a terminal abort reachable from
// any non-terminal status.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCanceled  OrderStatus = "canceled"
)

// allowedFrom lists the statuses an order may hold immediately before
// entering the keyed status.
var allowedFrom = map[OrderStatus][]OrderStatus{
	OrderPaid:      {OrderPending},
	OrderFulfilled: {OrderPaid},
	OrderCanceled:  {OrderPending, OrderPaid},
}

// WalletType identifies the external processor an order settles against.
type WalletType string

const (
	WalletUphold        WalletType = "uphold"
	WalletGemini        WalletType = "gemini"
	WalletBlindedTokens WalletType = "blinded_tokens"
)

func (w WalletType) Valid() bool {
	switch w {
	case WalletUphold, WalletGemini, WalletBlindedTokens:
		return true
	}
	return false
}

// ItemType marks how an order item redeems.
type ItemType string

const (
	ItemSingleUse ItemType = "single_use"
)

type SKUOrder struct {
	ID             string      `json:"id" gorm:"column:id;primaryKey"`
	TotalAmount    float64     `json:"total_amount" gorm:"column:total_amount"`
	MerchantID     string      `json:"merchant_id" gorm:"column:merchant_id"`
	ContributionID string      `json:"contribution_id" gorm:"column:contribution_id;index"`
	WalletType     WalletType  `json:"wallet_type" gorm:"column:wallet_type"`
	Status         OrderStatus `json:"status" gorm:"column:status;index"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`

	Items []*SKUOrderItem `json:"items" gorm:"-"`
}

func (SKUOrder) TableName() string {
	return "sku_orders"
}

type SKUOrderItem struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey"`
	OrderID   string    `json:"order_id" gorm:"column:order_id;index"`
	SKU       string    `json:"sku" gorm:"column:sku"`
	Quantity  int       `json:"quantity" gorm:"column:quantity"`
	Price     float64   `json:"price" gorm:"column:price"`
	Type      ItemType  `json:"type" gorm:"column:type"`
	ExpiresAt time.Time `json:"expires_at" gorm:"column:expires_at"`
}

func (SKUOrderItem) TableName() string {
	return "sku_order_items"
}
