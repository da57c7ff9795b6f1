package handler

import (
	"errors"
	"net/http"

	"fabula-server/internal/billing"
	"fabula-server/internal/compression"
	"fabula-server/internal/models"
	"fabula-server/internal/optimizer"
	"fabula-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler обрабатывает HTTP запросы сервиса.
type Handler struct {
	generation *service.GenerationService
	optimizer  *optimizer.Optimizer
	stats      *compression.Stats
	ledger     *billing.Ledger
	credits    billing.CreditRepository
	logger     *zap.Logger
}

// New создает Handler.
func New(
	generation *service.GenerationService,
	opt *optimizer.Optimizer,
	stats *compression.Stats,
	ledger *billing.Ledger,
	credits billing.CreditRepository,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		generation: generation,
		optimizer:  opt,
		stats:      stats,
		ledger:     ledger,
		credits:    credits,
		logger:     logger.Named("HTTPHandler"),
	}
}

// RegisterRoutes регистрирует маршруты сервиса.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)

	api := r.Group("/api")
	{
		contextGroup := api.Group("/context")
		{
			contextGroup.POST("/optimize", h.optimizeContext)
			contextGroup.POST("/optimize-batch", h.batchOptimize)
		}

		chaptersGroup := api.Group("/chapters")
		{
			chaptersGroup.POST("/generate", h.generateChapter)
		}

		compressionGroup := api.Group("/compression")
		{
			compressionGroup.GET("/stats", h.compressionStats)
			compressionGroup.POST("/stats/reset", h.resetCompressionStats)
		}

		billingGroup := api.Group("/billing")
		{
			billingGroup.GET("/estimate", h.estimateCost)
			billingGroup.GET("/accounts/:user_id", h.getAccount)
			billingGroup.POST("/grant", h.grantCredits)
		}
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// optimizeContext оптимизирует контекст истории. При chapter > 0 строится
// оконный контекст главы, иначе оптимизируется весь контекст.
func (h *Handler) optimizeContext(c *gin.Context) {
	var req OptimizeContextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	opts := optimizer.Options{
		Level:           req.Level,
		Tier:            req.Tier,
		BaseTokenBudget: req.Budget,
		PreserveTone:    req.Context.Tone != "",
		ExtraPreserve:   req.Extra,
	}

	var (
		result models.OptimizationResult
		err    error
	)
	if req.Chapter > 0 {
		result, err = h.optimizer.OptimizeChapterContext(req.Context, req.Chapter, opts)
	} else {
		result, err = h.optimizer.OptimizeStoryContext(req.Context, opts)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) batchOptimize(c *gin.Context) {
	var req BatchOptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	items := make([]optimizer.BatchItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, optimizer.BatchItem{Context: item.Context, Kind: item.Kind})
	}

	results, err := h.optimizer.BatchOptimize(items, req.Tier)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, BatchOptimizeResponse{Results: results})
}

func (h *Handler) generateChapter(c *gin.Context) {
	var req GenerateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	tier := req.Tier
	if tier == "" {
		tier = models.TierBasic
	}

	result, err := h.generation.GenerateChapter(c.Request.Context(), req.UserID, tier, req.Context, req.Chapter)
	if err != nil {
		if !isExpectedError(err) {
			h.logger.Error("Error generating chapter",
				zap.String("userID", req.UserID),
				zap.Int("chapter", req.Chapter),
				zap.Error(err),
			)
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) compressionStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.Snapshot())
}

func (h *Handler) resetCompressionStats(c *gin.Context) {
	h.stats.Reset()
	c.Status(http.StatusNoContent)
}

func (h *Handler) estimateCost(c *gin.Context) {
	op := models.OperationType(c.DefaultQuery("operation", string(models.OperationChapter)))
	complexity := models.ComplexityTier(c.DefaultQuery("complexity", string(models.ComplexityMedium)))

	breakdown := h.ledger.EstimateCost(op, complexity)
	c.JSON(http.StatusOK, gin.H{
		"operation":  op,
		"complexity": complexity,
		"estimate":   breakdown,
		"credits":    h.ledger.ToCredits(breakdown.TotalUSD),
	})
}

func (h *Handler) getAccount(c *gin.Context) {
	userID := c.Param("user_id")
	account, err := h.credits.GetAccount(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *Handler) grantCredits(c *gin.Context) {
	var req GrantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "Invalid request body: " + err.Error()})
		return
	}

	tier := req.Tier
	if tier == "" {
		tier = models.TierBasic
	}

	newBalance, err := h.generation.GrantMonthlyCredits(c.Request.Context(), req.UserID, tier)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, GrantCreditsResponse{UserID: req.UserID, NewBalance: newBalance})
}

// handleServiceError переводит доменные ошибки в HTTP статусы.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var apiErr APIError

	switch {
	case errors.Is(err, models.ErrInsufficientCredits):
		statusCode = http.StatusPaymentRequired
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		apiErr = APIError{Message: "Resource not found"}
	case errors.Is(err, models.ErrInvalidInput):
		statusCode = http.StatusBadRequest
		apiErr = APIError{Message: err.Error()}
	case errors.Is(err, models.ErrGenerationFailed):
		statusCode = http.StatusBadGateway
		apiErr = APIError{Message: "Generation provider error"}
	default:
		statusCode = http.StatusInternalServerError
		apiErr = APIError{Message: "Internal server error"}
	}

	c.JSON(statusCode, apiErr)
}

// isExpectedError сообщает, является ли ошибка ожидаемой доменной ошибкой,
// которую не нужно логировать как server error.
func isExpectedError(err error) bool {
	return errors.Is(err, models.ErrInsufficientCredits) ||
		errors.Is(err, models.ErrAccountNotFound) ||
		errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrInvalidInput)
}
