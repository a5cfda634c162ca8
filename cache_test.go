package main

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoresCache(t *testing.T) {
	board := &ScoreBoard{TotalConversationsAnalyzed: 1}

	t.Run("empty cache misses", func(t *testing.T) {
		cache := NewScoresCache(time.Minute)

		_, ok := cache.Get()
		assert.False(t, ok)
		assert.True(t, cache.IsExpired())
	})

	t.Run("set then get", func(t *testing.T) {
		cache := NewScoresCache(time.Minute)
		cache.Set(board)

		cached, ok := cache.Get()
		require.True(t, ok)
		assert.Equal(t, board, cached)
		assert.False(t, cache.IsExpired())
		assert.False(t, cache.LastUpdated().IsZero())
	})

	t.Run("expires after TTL", func(t *testing.T) {
		cache := NewScoresCache(10 * time.Millisecond)
		cache.Set(board)

		time.Sleep(20 * time.Millisecond)

		_, ok := cache.Get()
		assert.False(t, ok)
		assert.True(t, cache.IsExpired())
	})

	t.Run("clear invalidates", func(t *testing.T) {
		cache := NewScoresCache(time.Minute)
		cache.Set(board)
		cache.Clear()

		_, ok := cache.Get()
		assert.False(t, ok)
		assert.True(t, cache.LastUpdated().IsZero())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewScoresCache(time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				cache.Set(board)
			}()
			go func() {
				defer wg.Done()
				cache.Get()
			}()
		}
		wg.Wait()

		cached, ok := cache.Get()
		require.True(t, ok)
		assert.Equal(t, board, cached)
	})
}
