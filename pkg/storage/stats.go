package storage

import "sync/atomic"

// Stats counts storage operations. Shared by whichever backend is active so
// counters survive a failover.
type Stats struct {
	cacheHits       atomic.Int64
	cacheMisses     atomic.Int64
	sets            atomic.Int64
	deletes         atomic.Int64
	evictions       atomic.Int64
	failovers       atomic.Int64
	compressedSaves atomic.Int64
	bytesSaved      atomic.Int64
}

// noteCompression records one save that went through gzip and how many bytes
// the compression shaved off the stored value.
func (s *Stats) noteCompression(rawLen, storedLen int) {
	s.compressedSaves.Add(1)
	s.bytesSaved.Add(int64(rawLen - storedLen))
}

// StatsSnapshot is the JSON view of storage counters.
type StatsSnapshot struct {
	CacheHits       int64  `json:"cache_hits"`
	CacheMisses     int64  `json:"cache_misses"`
	Sets            int64  `json:"sets"`
	Deletes         int64  `json:"deletes"`
	Evictions       int64  `json:"evictions"`
	Failovers       int64  `json:"failovers"`
	CompressedSaves int64  `json:"compressed_saves"`
	BytesSaved      int64  `json:"bytes_saved"`
	Backend         string `json:"backend"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		CacheHits:       s.cacheHits.Load(),
		CacheMisses:     s.cacheMisses.Load(),
		Sets:            s.sets.Load(),
		Deletes:         s.deletes.Load(),
		Evictions:       s.evictions.Load(),
		Failovers:       s.failovers.Load(),
		CompressedSaves: s.compressedSaves.Load(),
		BytesSaved:      s.bytesSaved.Load(),
	}
}
