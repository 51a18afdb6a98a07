package pipeline

import (
	"time"

	"github.com/TaXueWWL/matchEngine-x/pkg/orderbook"
	"github.com/shopspring/decimal"
)

type CommandType string

const (
	PlaceOrder     CommandType = "PLACE_ORDER"
	CancelOrder    CommandType = "CANCEL_ORDER"
	ModifyOrder    CommandType = "MODIFY_ORDER"
	QueryOrder     CommandType = "QUERY_ORDER"
	QueryOrderBook CommandType = "QUERY_ORDERBOOK"
)

// Command is the unit of work handed to the matching consumer. It is
// immutable once a sequence number has been assigned.
type Command struct {
	Type      CommandType
	OrderID   int64
	Symbol    string
	UserID    int64
	Side      orderbook.Side
	OrderType orderbook.OrderType
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Timestamp int64
	Sequence  int64
}

func NewPlaceCommand(orderID int64, symbol string, userID int64, side orderbook.Side,
	orderType orderbook.OrderType, price, quantity decimal.Decimal) *Command {
	return &Command{
		Type:      PlaceOrder,
		OrderID:   orderID,
		Symbol:    symbol,
		UserID:    userID,
		Side:      side,
		OrderType: orderType,
		Price:     price,
		Quantity:  quantity,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewCancelCommand(orderID int64, symbol string, userID int64) *Command {
	return &Command{
		Type:      CancelOrder,
		OrderID:   orderID,
		Symbol:    symbol,
		UserID:    userID,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NewModifyCommand(orderID int64, symbol string, userID int64, newPrice, newQuantity decimal.Decimal) *Command {
	return &Command{
		Type:      ModifyOrder,
		OrderID:   orderID,
		Symbol:    symbol,
		UserID:    userID,
		Price:     newPrice,
		Quantity:  newQuantity,
		Timestamp: time.Now().UnixMilli(),
	}
}
