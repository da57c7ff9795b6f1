package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"fabula-server/internal/analysis"
	"fabula-server/internal/billing"
	"fabula-server/internal/compression"
	"fabula-server/internal/mocks"
	"fabula-server/internal/models"
	"fabula-server/internal/optimizer"
	"fabula-server/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type handlerFixture struct {
	router   *gin.Engine
	stats    *compression.Stats
	credits  *mocks.MockCreditRepository
	genCache *mocks.MockGenerationCache
}

func newHandlerFixture(t *testing.T) handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	stats := compression.NewStats()
	engine := compression.NewEngine(logger, stats)
	opt := optimizer.New(analysis.NewAnalyzer(logger), engine, logger)
	ledger := billing.NewLedger(logger)

	credits := mocks.NewMockCreditRepository(t)
	aiClient := mocks.NewMockAIClient(t)
	genCache := mocks.NewMockGenerationCache(t)
	publisher := mocks.NewMockUsagePublisher(t)
	gen := service.NewGenerationService(opt, ledger, credits, aiClient, genCache, publisher, logger)

	h := New(gen, opt, stats, ledger, credits, logger)
	router := gin.New()
	h.RegisterRoutes(router)

	return handlerFixture{router: router, stats: stats, credits: credits, genCache: genCache}
}

func performJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newHandlerFixture(t)
	rec := performJSON(t, f.router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOptimizeContext(t *testing.T) {
	f := newHandlerFixture(t)

	rec := performJSON(t, f.router, http.MethodPost, "/api/context/optimize", OptimizeContextRequest{
		Context: models.StoryContext{
			Title:   "Harborfall",
			Genre:   "fantasy",
			Premise: "An exiled cartographer maps a drowned kingdom",
			Characters: []models.Character{
				{Name: "Ione", Role: models.RoleProtagonist, Description: "an exiled cartographer", Importance: 8},
			},
			PreviousContent: []string{"Ione left the capital at dawn and took the old coast road."},
		},
		Level: models.CompressionModerate,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result models.OptimizationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.NotEmpty(t, result.CompressedText)
	assert.Contains(t, result.CompressedText, "Ione")
	assert.GreaterOrEqual(t, result.QualityScore, 0)
}

func TestOptimizeContext_InvalidLevel(t *testing.T) {
	f := newHandlerFixture(t)

	rec := performJSON(t, f.router, http.MethodPost, "/api/context/optimize", OptimizeContextRequest{
		Context: models.StoryContext{Title: "X", Genre: "drama", Premise: "y"},
		Level:   "extreme",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchOptimize(t *testing.T) {
	f := newHandlerFixture(t)

	storyCtx := &models.StoryContext{
		Title:           "Harborfall",
		Genre:           "fantasy",
		Premise:         "An exiled cartographer maps a drowned kingdom",
		PreviousContent: []string{"The tide swallowed the lower districts years ago."},
	}

	rec := performJSON(t, f.router, http.MethodPost, "/api/context/optimize-batch", BatchOptimizeRequest{
		Tier: models.TierBasic,
		Items: []BatchOptimizeItem{
			{Context: storyCtx, Kind: models.OperationFoundation},
			{Context: nil, Kind: models.OperationChapter},
			{Context: storyCtx, Kind: models.OperationImprovement},
		},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp BatchOptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	// nil-контекст пропускается без результата.
	assert.Len(t, resp.Results, 2)
}

func TestCompressionStatsRoundTrip(t *testing.T) {
	f := newHandlerFixture(t)

	// Прогоняем одну оптимизацию, чтобы статистика была ненулевой.
	performJSON(t, f.router, http.MethodPost, "/api/context/optimize", OptimizeContextRequest{
		Context: models.StoryContext{
			Title:           "Harborfall",
			Genre:           "fantasy",
			Premise:         "p",
			PreviousContent: []string{"It is important to note that the city was really very quiet that night."},
		},
	})

	rec := performJSON(t, f.router, http.MethodGet, "/api/compression/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap compression.StatsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Greater(t, snap.TotalCompressions, int64(0))

	rec = performJSON(t, f.router, http.MethodPost, "/api/compression/stats/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(0), f.stats.Snapshot().TotalCompressions)
}

func TestEstimateCost(t *testing.T) {
	f := newHandlerFixture(t)

	rec := performJSON(t, f.router, http.MethodGet, "/api/billing/estimate?operation=chapter&complexity=complex", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Estimate models.CostBreakdown `json:"estimate"`
		Credits  int64                `json:"credits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 6000, resp.Estimate.InputTokens)
	assert.Greater(t, resp.Credits, int64(0))
}

func TestGetAccount_NotFound(t *testing.T) {
	f := newHandlerFixture(t)
	f.credits.On("GetAccount", mock.Anything, "ghost").Return(nil, models.ErrAccountNotFound)

	rec := performJSON(t, f.router, http.MethodGet, "/api/billing/accounts/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateChapter_InsufficientCreditsMapsTo402(t *testing.T) {
	f := newHandlerFixture(t)

	storyCtx := models.StoryContext{Title: "Harborfall", Genre: "fantasy", Premise: "p"}
	f.credits.On("EnsureAccount", mock.Anything, "user-1", models.TierBasic).Return(nil)
	f.genCache.On("Get", mock.Anything, storyCtx, 1).Return(nil, models.ErrNotFound)
	f.credits.On("GetAccount", mock.Anything, "user-1").
		Return(&models.CreditAccount{UserID: "user-1", Balance: 0}, nil)

	rec := performJSON(t, f.router, http.MethodPost, "/api/chapters/generate", GenerateChapterRequest{
		UserID:  "user-1",
		Context: storyCtx,
		Chapter: 1,
	})

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}
