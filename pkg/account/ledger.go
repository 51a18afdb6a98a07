package account

import (
	"context"
	"sync"

	"github.com/TaXueWWL/matchEngine-x/pkg/logging"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Ledger owns every account in the process. Accounts are created
// lazily on first touch and live until shutdown.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[int64]*Account

	log *logging.Logger
}

func NewLedger(log *logging.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[int64]*Account),
		log:      log,
	}
}

func (l *Ledger) Account(userID int64) *Account {
	l.mu.RLock()
	acc := l.accounts[userID]
	l.mu.RUnlock()
	if acc != nil {
		return acc
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if acc = l.accounts[userID]; acc == nil {
		acc = newAccount(userID)
		l.accounts[userID] = acc
	}
	return acc
}

// AddBalance credits the user's available balance. Amount must be positive.
func (l *Ledger) AddBalance(ctx context.Context, userID int64, currency string, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return ErrNonPositiveAmount
	}

	acc := l.Account(userID)
	acc.add(currency, amount)
	l.log.Info(ctx, "added balance",
		zap.Int64("user_id", userID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("total", acc.Total(currency).String()))
	return nil
}

// Freeze moves amount from available to frozen, all or nothing.
func (l *Ledger) Freeze(ctx context.Context, userID int64, currency string, amount decimal.Decimal) error {
	acc := l.Account(userID)
	if !acc.freeze(currency, amount) {
		return ErrInsufficientBalance
	}
	l.log.Info(ctx, "frozen balance",
		zap.Int64("user_id", userID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()))
	return nil
}

// Unfreeze moves amount from frozen back to available. The caller is
// responsible for never unfreezing more than it previously froze.
func (l *Ledger) Unfreeze(ctx context.Context, userID int64, currency string, amount decimal.Decimal) {
	acc := l.Account(userID)
	acc.unfreeze(currency, amount)
	l.log.Info(ctx, "unfrozen balance",
		zap.Int64("user_id", userID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()))
}

// TransferFromFrozen settles one leg of a trade: it debits the payer's
// frozen cell and credits the payee's available cell.
func (l *Ledger) TransferFromFrozen(ctx context.Context, fromUserID, toUserID int64, currency string, amount decimal.Decimal) error {
	from := l.Account(fromUserID)
	to := l.Account(toUserID)

	if !from.debitFrozen(currency, amount) {
		l.log.Error(ctx, "insufficient frozen balance for transfer",
			zap.Int64("user_id", fromUserID),
			zap.String("currency", currency),
			zap.String("required", amount.String()),
			zap.String("frozen", from.Frozen(currency).String()))
		return ErrInsufficientFrozen
	}

	to.add(currency, amount)
	l.log.Info(ctx, "transferred from frozen",
		zap.Int64("from_user_id", fromUserID),
		zap.Int64("to_user_id", toUserID),
		zap.String("currency", currency),
		zap.String("amount", amount.String()))
	return nil
}

func (l *Ledger) HasEnoughBalance(userID int64, currency string, amount decimal.Decimal) bool {
	return l.Account(userID).Available(currency).Cmp(amount) >= 0
}

func (l *Ledger) GetAvailable(userID int64, currency string) decimal.Decimal {
	return l.Account(userID).Available(currency)
}

func (l *Ledger) GetFrozen(userID int64, currency string) decimal.Decimal {
	return l.Account(userID).Frozen(currency)
}

func (l *Ledger) GetTotal(userID int64, currency string) decimal.Decimal {
	return l.Account(userID).Total(currency)
}
