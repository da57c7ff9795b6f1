package billing

import (
	"context"

	"fabula-server/internal/models"
)

// CreditRepository - доступ к кредитным счетам и журналу списаний.
// Сериализация конкурентных списаний по одному пользователю обеспечивается
// однострочным атомарным UPDATE на стороне хранилища; ядро предполагает не
// больше одного списания в полете на пользователя.
type CreditRepository interface {
	// GetAccount возвращает счет пользователя или models.ErrAccountNotFound.
	GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error)
	// EnsureAccount создает счет с нулевым балансом, если его еще нет.
	EnsureAccount(ctx context.Context, userID string, tier models.SubscriptionTier) error
	// SetBalance атомарно записывает новое значение баланса.
	SetBalance(ctx context.Context, userID string, newBalance int64) error
	// InsertLedgerEntry добавляет запись аудита списания.
	InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
}
