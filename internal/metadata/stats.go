package metadata

import "fmt"

// Stats counts service activity since creation or the last ResetStats.
type Stats struct {
	ValidGets         int64
	CacheHits         int64
	CacheMisses       int64
	CachePuts         int64
	CacheEvictions    int64 // explicit and provider-triggered evictions
	CapacityEvictions int64 // evictions forced by the LRU bound
	RecursiveGets     int64
}

// HitRate is CacheHits over ValidGets, or 0 when nothing was requested.
func (s Stats) HitRate() float64 {
	if s.ValidGets == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(s.ValidGets)
}

func (s Stats) String() string {
	return fmt.Sprintf("gets=%d hits=%d misses=%d puts=%d evictions=%d capacity_evictions=%d recursive=%d",
		s.ValidGets, s.CacheHits, s.CacheMisses, s.CachePuts, s.CacheEvictions, s.CapacityEvictions, s.RecursiveGets)
}
