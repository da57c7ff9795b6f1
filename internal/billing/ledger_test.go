package billing_test

import (
	"testing"

	"fabula-server/internal/billing"
	"fabula-server/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newLedger(t *testing.T) *billing.Ledger {
	t.Helper()
	return billing.NewLedger(zap.NewNop())
}

func TestToCredits(t *testing.T) {
	ledger := newLedger(t)

	testCases := []struct {
		name     string
		usd      float64
		expected int64
	}{
		{name: "Reference scenario: ceiling of 23.6", usd: 0.0236, expected: 24},
		{name: "Exact thousandth", usd: 0.001, expected: 1},
		{name: "Zero cost is free", usd: 0, expected: 0},
		{name: "Negative cost is clamped to zero", usd: -1.5, expected: 0},
		{name: "Tiny cost still costs one credit", usd: 0.0000001, expected: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ledger.ToCredits(tc.usd))
		})
	}
}

func TestToCredits_Deterministic(t *testing.T) {
	ledger := newLedger(t)
	// Конвертация детерминирована: два вызова дают одно и то же.
	assert.Equal(t, ledger.ToCredits(0.0236), ledger.ToCredits(0.0236))
}

func TestCharge_BalanceFloor(t *testing.T) {
	ledger := newLedger(t)

	// Списание, на порядки превышающее баланс: ровно 0, никогда не минус.
	assert.Equal(t, int64(0), ledger.Charge(5, 1000))
	assert.Equal(t, int64(0), ledger.Charge(0, 0.001))
	assert.Equal(t, int64(4), ledger.Charge(5, 0.001))
}

func TestGrantSubscriptionCredits(t *testing.T) {
	ledger := newLedger(t)

	t.Run("Basic tier caps accumulation at 3x grant", func(t *testing.T) {
		grant := ledger.MonthlyGrant(models.TierBasic)
		cap := 3 * grant

		assert.Equal(t, grant, ledger.GrantSubscriptionCredits(models.TierBasic, 0))
		// Превышение потолка сгорает.
		assert.Equal(t, cap, ledger.GrantSubscriptionCredits(models.TierBasic, cap-1))
		assert.Equal(t, cap, ledger.GrantSubscriptionCredits(models.TierBasic, cap))
	})

	t.Run("Premium tier accumulates without limit", func(t *testing.T) {
		grant := ledger.MonthlyGrant(models.TierPremium)
		assert.Equal(t, 100*grant+grant, ledger.GrantSubscriptionCredits(models.TierPremium, 100*grant))
	})
}

func TestEstimateCost(t *testing.T) {
	ledger := newLedger(t)

	breakdown := ledger.EstimateCost(models.OperationChapter, models.ComplexityMedium)
	assert.Equal(t, 4000, breakdown.InputTokens)
	assert.Equal(t, 3000, breakdown.OutputTokens)
	// Входные и выходные токены считаются по разным ставкам и суммируются.
	assert.InDelta(t, breakdown.InputCostUSD+breakdown.OutputCost, breakdown.TotalUSD, 1e-12)
	assert.Greater(t, breakdown.TotalUSD, 0.0)
}

func TestEstimateCost_UnknownKeysFallBack(t *testing.T) {
	ledger := newLedger(t)

	// Неизвестная операция -> строка improvement; неизвестная сложность -> medium.
	unknown := ledger.EstimateCost("poetry", "cosmic")
	improvement := ledger.EstimateCost(models.OperationImprovement, models.ComplexityMedium)
	assert.Equal(t, improvement, unknown)
}

func TestUsageCost_MatchesRates(t *testing.T) {
	ledger := newLedger(t)

	// 1M входных = $0.10, 1M выходных = $0.40.
	assert.InDelta(t, 0.5, ledger.UsageCost(1_000_000, 1_000_000), 1e-9)
	assert.Equal(t, 0.0, ledger.UsageCost(0, 0))
}
