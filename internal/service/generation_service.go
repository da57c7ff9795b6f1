package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fabula-server/internal/ai"
	"fabula-server/internal/billing"
	"fabula-server/internal/cache"
	"fabula-server/internal/messaging"
	"fabula-server/internal/models"
	"fabula-server/internal/optimizer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const chapterSystemPrompt = "You are a fiction author continuing a serialized story. " +
	"Write the next chapter using the story context below. " +
	"Stay consistent with established characters, tone and unresolved plot threads.\n\n"

// ChapterResult - итог генерации главы: текст, фактический usage и списание.
// При попадании в кеш списания нет: CreditsCharged = 0, FromCache = true.
type ChapterResult struct {
	Content        string                    `json:"content"`
	Model          string                    `json:"model"`
	Usage          ai.UsageInfo              `json:"usage"`
	CostUSD        float64                   `json:"cost_usd"`
	CreditsCharged int64                     `json:"credits_charged"`
	NewBalance     int64                     `json:"new_balance"`
	FromCache      bool                      `json:"from_cache"`
	Optimization   models.OptimizationResult `json:"optimization"`
}

// GenerationService - полный конвейер генерации главы: подготовка контекста,
// проверка баланса, вызов провайдера, списание по фактическому usage,
// аудит и публикация события потребления.
type GenerationService struct {
	optimizer *optimizer.Optimizer
	ledger    *billing.Ledger
	credits   billing.CreditRepository
	aiClient  ai.AIClient
	genCache  cache.GenerationCache
	publisher messaging.UsagePublisher
	logger    *zap.Logger
}

// NewGenerationService создает сервис генерации.
func NewGenerationService(
	opt *optimizer.Optimizer,
	ledger *billing.Ledger,
	credits billing.CreditRepository,
	aiClient ai.AIClient,
	genCache cache.GenerationCache,
	publisher messaging.UsagePublisher,
	logger *zap.Logger,
) *GenerationService {
	return &GenerationService{
		optimizer: opt,
		ledger:    ledger,
		credits:   credits,
		aiClient:  aiClient,
		genCache:  genCache,
		publisher: publisher,
		logger:    logger.Named("GenerationService"),
	}
}

// GenerateChapter генерирует очередную главу истории.
// Порядок обязателен: достаточность средств проверяется по предварительной
// оценке до вызова провайдера, но списывается всегда фактический usage.
func (s *GenerationService) GenerateChapter(ctx context.Context, userID string, tier models.SubscriptionTier, storyCtx models.StoryContext, chapter int) (*ChapterResult, error) {
	if userID == "" {
		return nil, models.ErrEmptyUserID
	}
	if storyCtx.Title == "" {
		return nil, models.ErrInvalidStoryContext
	}

	if err := s.credits.EnsureAccount(ctx, userID, tier); err != nil {
		return nil, fmt.Errorf("failed to ensure credit account: %w", err)
	}

	// Кеш проверяется до каких-либо списаний: повтор того же запроса
	// бесплатен для пользователя.
	if cached, err := s.genCache.Get(ctx, storyCtx, chapter); err == nil {
		s.logger.Info("Serving chapter from cache",
			zap.String("userID", userID),
			zap.Int("chapter", chapter),
		)
		account, err := s.credits.GetAccount(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to get credit account: %w", err)
		}
		result := &ChapterResult{
			Content:    cached.Content,
			Model:      cached.Model,
			NewBalance: account.Balance,
			FromCache:  true,
		}
		result.Optimization.FromCache = true
		return result, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		// Недоступный кеш не блокирует генерацию.
		s.logger.Warn("Generation cache lookup failed", zap.Error(err))
	}

	opt, err := s.optimizer.OptimizeChapterContext(storyCtx, chapter, optimizer.Options{
		Tier:         tier,
		PreserveTone: storyCtx.Tone != "",
	})
	if err != nil {
		return nil, fmt.Errorf("context optimization failed: %w", err)
	}

	account, err := s.credits.GetAccount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}

	estimate := s.ledger.EstimateCost(models.OperationChapter, complexityOf(storyCtx))
	if account.Balance < s.ledger.ToCredits(estimate.TotalUSD) {
		s.logger.Info("Insufficient credits for chapter generation",
			zap.String("userID", userID),
			zap.Int64("balance", account.Balance),
			zap.Float64("estimatedUSD", estimate.TotalUSD),
		)
		return nil, models.ErrInsufficientCredits
	}

	content, usage, err := s.aiClient.GenerateText(ctx,
		chapterSystemPrompt+opt.CompressedText,
		storyCtx.CurrentScene,
		ai.GenerationParams{},
	)
	if err != nil {
		return nil, err
	}

	costUSD := s.ledger.UsageCost(usage.PromptTokens, usage.CompletionTokens)
	credits := s.ledger.ToCredits(costUSD)
	newBalance := s.ledger.Charge(account.Balance, costUSD)

	if err := s.credits.SetBalance(ctx, userID, newBalance); err != nil {
		return nil, fmt.Errorf("failed to persist new balance: %w", err)
	}

	entry := &models.CreditLedgerEntry{
		ID:         uuid.New(),
		UserID:     userID,
		CostUSD:    costUSD,
		Credits:    credits,
		NewBalance: newBalance,
		Tier:       tier,
	}
	if err := s.credits.InsertLedgerEntry(ctx, entry); err != nil {
		// Баланс уже записан; отсутствие строки аудита - деградация, не отказ.
		s.logger.Error("Failed to insert ledger entry",
			zap.String("userID", userID),
			zap.Error(err),
		)
	}

	s.publishUsage(ctx, userID, tier, usage, costUSD, credits, newBalance)

	if err := s.genCache.Set(ctx, storyCtx, chapter, &cache.CachedGeneration{
		Content:          content,
		Model:            s.aiClient.Model(),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CreatedAt:        time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("Failed to cache generation", zap.Error(err))
	}

	s.logger.Info("Chapter generated",
		zap.String("userID", userID),
		zap.Int("chapter", chapter),
		zap.Int("promptTokens", usage.PromptTokens),
		zap.Int("completionTokens", usage.CompletionTokens),
		zap.Int64("creditsCharged", credits),
		zap.Int64("newBalance", newBalance),
	)

	return &ChapterResult{
		Content:        content,
		Model:          s.aiClient.Model(),
		Usage:          usage,
		CostUSD:        costUSD,
		CreditsCharged: credits,
		NewBalance:     newBalance,
		Optimization:   opt,
	}, nil
}

// GrantMonthlyCredits начисляет месячные кредиты тарифа и возвращает новый баланс.
func (s *GenerationService) GrantMonthlyCredits(ctx context.Context, userID string, tier models.SubscriptionTier) (int64, error) {
	if userID == "" {
		return 0, models.ErrEmptyUserID
	}
	if err := s.credits.EnsureAccount(ctx, userID, tier); err != nil {
		return 0, fmt.Errorf("failed to ensure credit account: %w", err)
	}
	account, err := s.credits.GetAccount(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get credit account: %w", err)
	}
	newBalance := s.ledger.GrantSubscriptionCredits(tier, account.Balance)
	if err := s.credits.SetBalance(ctx, userID, newBalance); err != nil {
		return 0, fmt.Errorf("failed to persist new balance: %w", err)
	}
	s.logger.Info("Monthly credits granted",
		zap.String("userID", userID),
		zap.String("tier", string(tier)),
		zap.Int64("newBalance", newBalance),
	)
	return newBalance, nil
}

// publishUsage публикует событие потребления. Отказ брокера логируется и не
// влияет на результат генерации.
func (s *GenerationService) publishUsage(ctx context.Context, userID string, tier models.SubscriptionTier, usage ai.UsageInfo, costUSD float64, credits, newBalance int64) {
	event := messaging.UsageEvent{
		UserID:           userID,
		Operation:        models.OperationChapter,
		Model:            s.aiClient.Model(),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		CostUSD:          costUSD,
		Credits:          credits,
		NewBalance:       newBalance,
		Tier:             tier,
	}
	if err := s.publisher.PublishUsageEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to publish usage event",
			zap.String("userID", userID),
			zap.Error(err),
		)
	}
}

// complexityOf грубо классифицирует историю для таблицы предварительной оценки.
func complexityOf(storyCtx models.StoryContext) models.ComplexityTier {
	critical := 0
	for _, pp := range storyCtx.PlotPoints {
		if pp.Importance == models.PlotCritical {
			critical++
		}
	}
	switch {
	case len(storyCtx.Characters) > 5 || critical > 3:
		return models.ComplexityComplex
	case len(storyCtx.Characters) > 2 || len(storyCtx.PlotPoints) > 3:
		return models.ComplexityMedium
	default:
		return models.ComplexitySimple
	}
}
