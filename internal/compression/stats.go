package compression

import "sync"

// StatsSnapshot - моментальный срез накопленной статистики движка.
type StatsSnapshot struct {
	TotalCompressions int64            `json:"total_compressions"`
	TokensSaved       int64            `json:"tokens_saved"`
	CostSavedUSD      float64          `json:"cost_saved_usd"`
	AverageRatio      float64          `json:"average_ratio"`
	MethodCounts      map[string]int64 `json:"method_counts"`
}

// Stats - накопительная статистика движка сжатия. Каждый экземпляр Engine
// владеет собственным объектом Stats, поэтому тесты могут создавать
// независимые движки; глобального синглтона нет.
type Stats struct {
	mu                sync.Mutex
	totalCompressions int64
	tokensSaved       int64
	costSavedUSD      float64
	averageRatio      float64
	methodCounts      map[string]int64
}

// NewStats создает пустой объект статистики.
func NewStats() *Stats {
	return &Stats{methodCounts: make(map[string]int64)}
}

// record учитывает один завершенный прогон сжатия.
// Средний ratio обновляется инкрементально взвешенно, без пересчета с нуля.
func (s *Stats) record(method string, tokensSaved int, costSavedUSD, ratio float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalCompressions++
	s.tokensSaved += int64(tokensSaved)
	s.costSavedUSD += costSavedUSD
	s.averageRatio += (ratio - s.averageRatio) / float64(s.totalCompressions)
	s.methodCounts[method]++
}

// Snapshot возвращает копию текущей статистики.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int64, len(s.methodCounts))
	for k, v := range s.methodCounts {
		counts[k] = v
	}
	return StatsSnapshot{
		TotalCompressions: s.totalCompressions,
		TokensSaved:       s.tokensSaved,
		CostSavedUSD:      s.costSavedUSD,
		AverageRatio:      s.averageRatio,
		MethodCounts:      counts,
	}
}

// Reset обнуляет статистику.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalCompressions = 0
	s.tokensSaved = 0
	s.costSavedUSD = 0
	s.averageRatio = 0
	s.methodCounts = make(map[string]int64)
}
