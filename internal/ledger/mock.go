package ledger

import (
	"context"
	"sync"
)

// Mock is an in-memory Service for tests.
type Mock struct {
	mu       sync.Mutex
	err      error
	balances map[Account]int64
	Debits   []MockTransfer
	Credits  []MockTransfer
}

// MockTransfer records one debit or credit the mock received.
type MockTransfer struct {
	Account     Account
	AmountCents int64
	Key         string
}

func NewMock() *Mock {
	return &Mock{balances: make(map[Account]int64)}
}

// SetError makes every subsequent call fail with err.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetBalance seeds an account balance.
func (m *Mock) SetBalance(accountType AccountType, accountID uint, cents int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[Account{Type: accountType, ID: accountID}] = cents
}

func (m *Mock) Balance(_ context.Context, accountType AccountType, accountID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.balances[Account{Type: accountType, ID: accountID}], nil
}

func (m *Mock) Debit(_ context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	account := Account{Type: accountType, ID: accountID}
	m.balances[account] -= amountCents
	m.Debits = append(m.Debits, MockTransfer{Account: account, AmountCents: amountCents, Key: key})
	return nil
}

func (m *Mock) Credit(_ context.Context, accountType AccountType, accountID uint, amountCents int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	account := Account{Type: accountType, ID: accountID}
	m.balances[account] += amountCents
	m.Credits = append(m.Credits, MockTransfer{Account: account, AmountCents: amountCents, Key: key})
	return nil
}

func (m *Mock) Transfer(_ context.Context, from, to Account, amountCents int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.balances[from] -= amountCents
	m.balances[to] += amountCents
	m.Debits = append(m.Debits, MockTransfer{Account: from, AmountCents: amountCents, Key: key})
	m.Credits = append(m.Credits, MockTransfer{Account: to, AmountCents: amountCents, Key: key})
	return nil
}
