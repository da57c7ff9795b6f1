package mocks

import (
	"context"

	"fabula-server/internal/billing"
	"fabula-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockCreditRepository is a mock type for the CreditRepository type
type MockCreditRepository struct {
	mock.Mock
}

// GetAccount provides a mock function with given fields: ctx, userID
func (_m *MockCreditRepository) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	ret := _m.Called(ctx, userID)

	var r0 *models.CreditAccount
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.CreditAccount)
	}

	return r0, ret.Error(1)
}

// EnsureAccount provides a mock function with given fields: ctx, userID, tier
func (_m *MockCreditRepository) EnsureAccount(ctx context.Context, userID string, tier models.SubscriptionTier) error {
	ret := _m.Called(ctx, userID, tier)
	return ret.Error(0)
}

// SetBalance provides a mock function with given fields: ctx, userID, newBalance
func (_m *MockCreditRepository) SetBalance(ctx context.Context, userID string, newBalance int64) error {
	ret := _m.Called(ctx, userID, newBalance)
	return ret.Error(0)
}

// InsertLedgerEntry provides a mock function with given fields: ctx, entry
func (_m *MockCreditRepository) InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	ret := _m.Called(ctx, entry)
	return ret.Error(0)
}

// NewMockCreditRepository creates a new instance of MockCreditRepository.
// The first argument is typically a *testing.T value.
func NewMockCreditRepository(t interface {
	mock.TestingT
	Helper()
}) *MockCreditRepository {
	m := &MockCreditRepository{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ billing.CreditRepository = (*MockCreditRepository)(nil)
