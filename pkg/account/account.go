package account

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Account holds one user's per-currency available and frozen balances.
// Freeze and unfreeze move value between the two cells of the same
// currency; value enters or leaves only through the Ledger.
type Account struct {
	UserID int64

	mu        sync.Mutex
	available map[string]decimal.Decimal
	frozen    map[string]decimal.Decimal
}

func newAccount(userID int64) *Account {
	return &Account{
		UserID:    userID,
		available: make(map[string]decimal.Decimal),
		frozen:    make(map[string]decimal.Decimal),
	}
}

func (a *Account) Available(currency string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available[currency]
}

func (a *Account) Frozen(currency string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frozen[currency]
}

func (a *Account) Total(currency string) decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.available[currency].Add(a.frozen[currency])
}

func (a *Account) add(currency string, amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.available[currency] = a.available[currency].Add(amount)
}

func (a *Account) freeze(currency string, amount decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.available[currency].Cmp(amount) < 0 {
		return false
	}
	a.available[currency] = a.available[currency].Sub(amount)
	a.frozen[currency] = a.frozen[currency].Add(amount)
	return true
}

func (a *Account) unfreeze(currency string, amount decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frozen[currency] = a.frozen[currency].Sub(amount)
	a.available[currency] = a.available[currency].Add(amount)
}

// debitFrozen removes amount from the frozen cell without crediting
// available; the paired credit happens on the counterparty's account.
func (a *Account) debitFrozen(currency string, amount decimal.Decimal) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen[currency].Cmp(amount) < 0 {
		return false
	}
	a.frozen[currency] = a.frozen[currency].Sub(amount)
	return true
}
