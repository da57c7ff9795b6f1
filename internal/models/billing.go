package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationType - тип генерационной операции, определяющий табличную оценку токенов.
type OperationType string

const (
	OperationFoundation  OperationType = "foundation"  // закладка мира и завязки
	OperationChapter     OperationType = "chapter"     // генерация очередной главы
	OperationImprovement OperationType = "improvement" // доработка существующего текста
)

// ComplexityTier - грубая сложность операции для таблицы оценки стоимости.
type ComplexityTier string

const (
	ComplexitySimple  ComplexityTier = "simple"
	ComplexityMedium  ComplexityTier = "medium"
	ComplexityComplex ComplexityTier = "complex"
)

// CostBreakdown - предварительная оценка стоимости операции в USD.
// Оценка носит рекомендательный характер: итоговое списание всегда
// считается по фактическому usage, который вернул провайдер.
type CostBreakdown struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	InputCostUSD float64 `json:"input_cost_usd"`
	OutputCost   float64 `json:"output_cost_usd"`
	TotalUSD     float64 `json:"total_usd"`
}

// CreditAccount - кредитный счет пользователя. Баланс принадлежит внешнему
// хранилищу; сервис лишь вычисляет новое значение и записывает его атомарно.
type CreditAccount struct {
	UserID    string           `db:"user_id" json:"user_id"`
	Balance   int64            `db:"balance" json:"balance"`
	Tier      SubscriptionTier `db:"tier" json:"tier"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// CreditLedgerEntry - запись аудита одного списания.
// Инвариант: Credits = ceil(CostUSD * creditsPerUSD); баланс никогда не
// опускается ниже нуля (клампится, а не ошибка).
type CreditLedgerEntry struct {
	ID         uuid.UUID        `db:"id" json:"id"`
	UserID     string           `db:"user_id" json:"user_id"`
	CostUSD    float64          `db:"cost_usd" json:"cost_usd"`
	Credits    int64            `db:"credits" json:"credits"`
	NewBalance int64            `db:"new_balance" json:"new_balance"`
	Tier       SubscriptionTier `db:"tier" json:"tier"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
}
