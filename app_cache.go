package main

import "phase-viewer/internal/cache"

// Layer Cache Management Functions (Wails-exported)

// CacheStats represents layer cache statistics for frontend
type CacheStats struct {
	cache.Stats
	HitRate float64 `json:"hitRate"`
}

// GetCacheStats returns current layer cache statistics
func (a *App) GetCacheStats() CacheStats {
	if a.session == nil {
		return CacheStats{}
	}

	stats := a.session.Cache.Stats()
	out := CacheStats{Stats: stats}
	if total := stats.Hits + stats.Misses; total > 0 {
		out.HitRate = float64(stats.Hits) / float64(total)
	}
	return out
}

// ClearCache drops every rendered layer; attached layers re-render on the
// next request
func (a *App) ClearCache() {
	if a.session != nil {
		a.session.Cache.Purge()
	}
}
