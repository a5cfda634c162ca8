package main

import (
	"sync"
	"time"
)

// ScoresCache provides thread-safe TTL caching for the computed leaderboard,
// since recomputing it scans every stored conversation.
type ScoresCache struct {
	mu          sync.RWMutex
	board       *ScoreBoard
	lastUpdated time.Time
	ttl         time.Duration
}

// NewScoresCache creates a new scores cache with the specified TTL.
func NewScoresCache(ttl time.Duration) *ScoresCache {
	return &ScoresCache{
		ttl: ttl,
	}
}

// Get retrieves the cached leaderboard if present and not expired.
func (c *ScoresCache) Get() (*ScoreBoard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.board == nil {
		return nil, false
	}

	if time.Since(c.lastUpdated) > c.ttl {
		return nil, false
	}

	return c.board, true
}

// Set updates the cache with a freshly computed leaderboard.
func (c *ScoresCache) Set(board *ScoreBoard) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.board = board
	c.lastUpdated = time.Now()
}

// Clear removes the cached leaderboard.
func (c *ScoresCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.board = nil
	c.lastUpdated = time.Time{}
}

// LastUpdated returns when the cache was last updated.
func (c *ScoresCache) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.lastUpdated
}

// IsExpired checks if the cache has expired.
func (c *ScoresCache) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.board == nil {
		return true
	}

	return time.Since(c.lastUpdated) > c.ttl
}
