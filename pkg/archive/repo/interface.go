package repo

import (
	"context"

	"github.com/TaXueWWL/matchEngine-x/pkg/archive"
)

type ITrade interface {
	Create(ctx context.Context, record *archive.TradeRecord) (*archive.TradeRecord, error)
	BulkCreate(ctx context.Context, records []*archive.TradeRecord) ([]*archive.TradeRecord, error)
	ListBySymbol(ctx context.Context, symbol string, limit int) ([]*archive.TradeRecord, error)
}

type IOrderUpdate interface {
	Create(ctx context.Context, record *archive.OrderUpdateRecord) (*archive.OrderUpdateRecord, error)
	BulkCreate(ctx context.Context, records []*archive.OrderUpdateRecord) ([]*archive.OrderUpdateRecord, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]*archive.OrderUpdateRecord, error)
}
