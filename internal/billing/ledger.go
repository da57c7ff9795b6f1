package billing

import (
	"math"

	"fabula-server/internal/models"

	"go.uber.org/zap"
)

// Цены провайдера за миллион токенов. Наценки при списании нет: наценка
// (если есть) применяется при покупке или начислении кредитов.
const (
	pricePerMillionInputTokensUSD  = 0.1
	pricePerMillionOutputTokensUSD = 0.4
)

// creditsPerUSD - курс конвертации: 1 кредит = $0.001.
const creditsPerUSD = 1000

// tierPolicy - параметры тарифа: месячное начисление и потолок накопления.
type tierPolicy struct {
	monthlyGrant int64
	// balanceCap ограничивает накопление; 0 означает отсутствие потолка.
	balanceCap int64
}

// policyFor - тарифная таблица. Неизвестный тариф получает политику basic.
func policyFor(tier models.SubscriptionTier) tierPolicy {
	switch tier {
	case models.TierPremium:
		return tierPolicy{monthlyGrant: 10_000, balanceCap: 0}
	case models.TierBasic:
		return tierPolicy{monthlyGrant: 1_000, balanceCap: 3_000} // 3x месячного начисления
	default:
		return tierPolicy{monthlyGrant: 1_000, balanceCap: 3_000}
	}
}

// Ledger конвертирует usage провайдера в USD и кредиты и вычисляет новые
// значения баланса. Сам баланс принадлежит внешнему хранилищу; все операции
// здесь - чистые вычисления над аргументами.
type Ledger struct {
	logger *zap.Logger
}

// NewLedger создает ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{logger: logger.Named("CostLedger")}
}

// EstimateCost возвращает предварительную оценку стоимости операции по
// фиксированной таблице токенов. Оценка рекомендательная: итоговое списание
// всегда считается по фактическому usage.
func (l *Ledger) EstimateCost(op models.OperationType, complexity models.ComplexityTier) models.CostBreakdown {
	in, out := tokenEstimate(op, complexity)
	inputCost := float64(in) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(out) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return models.CostBreakdown{
		InputTokens:  in,
		OutputTokens: out,
		InputCostUSD: inputCost,
		OutputCost:   outputCost,
		TotalUSD:     inputCost + outputCost,
	}
}

// UsageCost считает фактическую стоимость по usage, который вернул провайдер.
func (l *Ledger) UsageCost(promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) * pricePerMillionInputTokensUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricePerMillionOutputTokensUSD / 1_000_000.0
	return inputCost + outputCost
}

// ToCredits конвертирует USD в целые кредиты: ceil(usd * 1000).
// Единственная точка конвертации в системе - каждое списание обязано
// проходить через нее, иначе суммы разойдутся.
func (l *Ledger) ToCredits(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Ceil(usd * creditsPerUSD))
}

// Charge возвращает новый баланс после списания стоимости.
// Баланс никогда не уходит ниже нуля: клампится молча, без ошибки.
// Проверка достаточности средств - обязанность вызывающего, до операции,
// по предварительной оценке.
func (l *Ledger) Charge(balance int64, usd float64) int64 {
	newBalance := balance - l.ToCredits(usd)
	if newBalance < 0 {
		return 0
	}
	return newBalance
}

// GrantSubscriptionCredits начисляет месячные кредиты тарифа.
// Если тариф ограничивает накопление, превышение потолка сгорает.
func (l *Ledger) GrantSubscriptionCredits(tier models.SubscriptionTier, balance int64) int64 {
	policy := policyFor(tier)
	newBalance := balance + policy.monthlyGrant
	if policy.balanceCap > 0 && newBalance > policy.balanceCap {
		l.logger.Debug("Subscription grant clamped to tier cap",
			zap.String("tier", string(tier)),
			zap.Int64("discarded", newBalance-policy.balanceCap),
		)
		newBalance = policy.balanceCap
	}
	return newBalance
}

// MonthlyGrant возвращает месячное начисление тарифа.
func (l *Ledger) MonthlyGrant(tier models.SubscriptionTier) int64 {
	return policyFor(tier).monthlyGrant
}

// tokenEstimate - фиксированная таблица оценок входных/выходных токенов по
// типу операции и сложности. Неизвестная сложность трактуется как medium,
// неизвестная операция - как improvement (самая дешевая строка).
func tokenEstimate(op models.OperationType, complexity models.ComplexityTier) (int, int) {
	switch op {
	case models.OperationFoundation:
		switch complexity {
		case models.ComplexitySimple:
			return 2_000, 3_000
		case models.ComplexityComplex:
			return 4_000, 8_000
		default:
			return 3_000, 5_000
		}
	case models.OperationChapter:
		switch complexity {
		case models.ComplexitySimple:
			return 3_000, 2_000
		case models.ComplexityComplex:
			return 6_000, 4_000
		default:
			return 4_000, 3_000
		}
	default:
		switch complexity {
		case models.ComplexitySimple:
			return 1_500, 1_500
		case models.ComplexityComplex:
			return 4_000, 4_000
		default:
			return 2_500, 2_500
		}
	}
}
