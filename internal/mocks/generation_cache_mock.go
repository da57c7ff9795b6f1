package mocks

import (
	"context"

	"fabula-server/internal/cache"
	"fabula-server/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockGenerationCache is a mock type for the GenerationCache type
type MockGenerationCache struct {
	mock.Mock
}

// Get provides a mock function with given fields: ctx, storyCtx, chapter
func (_m *MockGenerationCache) Get(ctx context.Context, storyCtx models.StoryContext, chapter int) (*cache.CachedGeneration, error) {
	ret := _m.Called(ctx, storyCtx, chapter)

	var r0 *cache.CachedGeneration
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*cache.CachedGeneration)
	}

	return r0, ret.Error(1)
}

// Set provides a mock function with given fields: ctx, storyCtx, chapter, gen
func (_m *MockGenerationCache) Set(ctx context.Context, storyCtx models.StoryContext, chapter int, gen *cache.CachedGeneration) error {
	ret := _m.Called(ctx, storyCtx, chapter, gen)
	return ret.Error(0)
}

// NewMockGenerationCache creates a new instance of MockGenerationCache.
// The first argument is typically a *testing.T value.
func NewMockGenerationCache(t interface {
	mock.TestingT
	Helper()
}) *MockGenerationCache {
	m := &MockGenerationCache{}
	m.Mock.Test(t)
	t.Helper()
	return m
}

var _ cache.GenerationCache = (*MockGenerationCache)(nil)
