package billing

import (
	"context"
	"errors"
	"fmt"

	"fabula-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	pgxV5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	getAccountQuery = `SELECT user_id, balance, tier, updated_at FROM credit_accounts WHERE user_id = $1`

	ensureAccountQuery = `
        INSERT INTO credit_accounts (user_id, balance, tier)
        VALUES ($1, 0, $2)
        ON CONFLICT (user_id) DO NOTHING
    `

	setBalanceQuery = `UPDATE credit_accounts SET balance = $2, updated_at = NOW() WHERE user_id = $1`

	insertLedgerEntryQuery = `
        INSERT INTO credit_ledger_entries (id, user_id, cost_usd, credits, new_balance, tier)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
)

// Compile-time check to ensure pgCreditRepository implements CreditRepository
var _ CreditRepository = (*pgCreditRepository)(nil)

type pgCreditRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgCreditRepository создает репозиторий кредитных счетов поверх PostgreSQL.
func NewPgCreditRepository(db *pgxpool.Pool, logger *zap.Logger) CreditRepository {
	return &pgCreditRepository{
		db:     db,
		logger: logger.Named("PgCreditRepo"),
	}
}

// GetAccount возвращает счет пользователя.
func (r *pgCreditRepository) GetAccount(ctx context.Context, userID string) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := pgxscan.Get(ctx, r.db, &account, getAccountQuery, userID)
	if err != nil {
		if errors.Is(err, pgxV5.ErrNoRows) {
			r.logger.Warn("Credit account not found", zap.String("userID", userID))
			return nil, models.ErrAccountNotFound
		}
		r.logger.Error("Error getting credit account", zap.String("userID", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get credit account for %s: %w", userID, err)
	}
	return &account, nil
}

// EnsureAccount создает счет, если его еще нет. Существующий счет не трогается.
func (r *pgCreditRepository) EnsureAccount(ctx context.Context, userID string, tier models.SubscriptionTier) error {
	_, err := r.db.Exec(ctx, ensureAccountQuery, userID, tier)
	if err != nil {
		r.logger.Error("Error ensuring credit account", zap.String("userID", userID), zap.Error(err))
		return fmt.Errorf("failed to ensure credit account for %s: %w", userID, err)
	}
	return nil
}

// SetBalance атомарно записывает новый баланс. Однострочный UPDATE - это и
// есть точка сериализации конкурентных списаний по пользователю.
func (r *pgCreditRepository) SetBalance(ctx context.Context, userID string, newBalance int64) error {
	commandTag, err := r.db.Exec(ctx, setBalanceQuery, userID, newBalance)
	if err != nil {
		r.logger.Error("Error updating balance", zap.String("userID", userID), zap.Error(err))
		return fmt.Errorf("failed to update balance for %s: %w", userID, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Balance update affected no rows", zap.String("userID", userID))
		return models.ErrAccountNotFound
	}
	r.logger.Debug("Balance updated", zap.String("userID", userID), zap.Int64("newBalance", newBalance))
	return nil
}

// InsertLedgerEntry добавляет запись аудита.
func (r *pgCreditRepository) InsertLedgerEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	_, err := r.db.Exec(ctx, insertLedgerEntryQuery,
		entry.ID, entry.UserID, entry.CostUSD, entry.Credits, entry.NewBalance, entry.Tier)
	if err != nil {
		r.logger.Error("Error inserting ledger entry",
			zap.String("userID", entry.UserID),
			zap.String("entryID", entry.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert ledger entry for %s: %w", entry.UserID, err)
	}
	return nil
}
