package archive

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRecord is the audit row written for every executed trade.
type TradeRecord struct {
	ID          int64           `gorm:"primaryKey"`
	Symbol      string          `gorm:"index;size:32"`
	BuyOrderID  int64           `gorm:"column:buy_order_id"`
	SellOrderID int64           `gorm:"column:sell_order_id"`
	BuyUserID   int64           `gorm:"column:buy_user_id;index"`
	SellUserID  int64           `gorm:"column:sell_user_id;index"`
	Price       decimal.Decimal `gorm:"type:numeric(32,16)"`
	Quantity    decimal.Decimal `gorm:"type:numeric(32,16)"`
	ExecutedAt  int64           `gorm:"column:executed_at"`
	CreatedAt   time.Time
}

func (TradeRecord) TableName() string {
	return "trades"
}

// OrderUpdateRecord is one order-state transition as published by the
// engine.
type OrderUpdateRecord struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	OrderID   int64           `gorm:"column:order_id;index"`
	Symbol    string          `gorm:"index;size:32"`
	UserID    int64           `gorm:"column:user_id;index"`
	Status    string          `gorm:"size:24"`
	Filled    decimal.Decimal `gorm:"type:numeric(32,16)"`
	Remaining decimal.Decimal `gorm:"type:numeric(32,16)"`
	CreatedAt time.Time
}

func (OrderUpdateRecord) TableName() string {
	return "order_updates"
}
