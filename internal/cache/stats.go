package cache

import "sync/atomic"

// statistics are always collected; Prometheus export is optional.
type statistics struct {
	freshHits       atomic.Int64
	staleHits       atomic.Int64
	misses          atomic.Int64
	loads           atomic.Int64
	loadErrors      atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	FreshHits       int64   `json:"fresh_hits"`
	StaleHits       int64   `json:"stale_hits"`
	Misses          int64   `json:"misses"`
	Loads           int64   `json:"loads"`
	LoadErrors      int64   `json:"load_errors"`
	Refreshes       int64   `json:"refreshes"`
	RefreshFailures int64   `json:"refresh_failures"`
	Entries         int     `json:"entries"`
	HitRatio        float64 `json:"hit_ratio"`
}

func (s *statistics) snapshot(entries int) Stats {
	out := Stats{
		FreshHits:       s.freshHits.Load(),
		StaleHits:       s.staleHits.Load(),
		Misses:          s.misses.Load(),
		Loads:           s.loads.Load(),
		LoadErrors:      s.loadErrors.Load(),
		Refreshes:       s.refreshes.Load(),
		RefreshFailures: s.refreshFailures.Load(),
		Entries:         entries,
	}
	hits := out.FreshHits + out.StaleHits
	if total := hits + out.Misses; total > 0 {
		out.HitRatio = float64(hits) / float64(total)
	}
	return out
}
