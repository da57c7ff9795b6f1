package handler

import (
	"fabula-server/internal/models"
)

// APIError представляет стандартизированный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// OptimizeContextRequest - тело запроса на оптимизацию контекста истории.
type OptimizeContextRequest struct {
	Context models.StoryContext       `json:"context" binding:"required"`
	Level   models.CompressionLevel   `json:"level,omitempty"`
	Tier    models.SubscriptionTier   `json:"tier,omitempty"`
	Chapter int                       `json:"chapter,omitempty"`
	Budget  int                       `json:"budget,omitempty"`
	Extra   []models.PreserveCategory `json:"preserve,omitempty"`
}

// BatchOptimizeRequest - тело запроса на пакетную оптимизацию.
type BatchOptimizeRequest struct {
	Tier  models.SubscriptionTier `json:"tier,omitempty"`
	Items []BatchOptimizeItem     `json:"items" binding:"required"`
}

// BatchOptimizeItem - один элемент пакета.
type BatchOptimizeItem struct {
	Context *models.StoryContext `json:"context"`
	Kind    models.OperationType `json:"kind"`
}

// BatchOptimizeResponse - результат пакетной оптимизации.
type BatchOptimizeResponse struct {
	Results []models.OptimizationResult `json:"results"`
}

// GenerateChapterRequest - тело запроса на генерацию главы.
type GenerateChapterRequest struct {
	UserID  string                  `json:"user_id" binding:"required"`
	Tier    models.SubscriptionTier `json:"tier,omitempty"`
	Context models.StoryContext     `json:"context" binding:"required"`
	Chapter int                     `json:"chapter" binding:"required"`
}

// GrantCreditsRequest - тело запроса на месячное начисление кредитов.
type GrantCreditsRequest struct {
	UserID string                  `json:"user_id" binding:"required"`
	Tier   models.SubscriptionTier `json:"tier,omitempty"`
}

// GrantCreditsResponse - новый баланс после начисления.
type GrantCreditsResponse struct {
	UserID     string `json:"user_id"`
	NewBalance int64  `json:"new_balance"`
}
