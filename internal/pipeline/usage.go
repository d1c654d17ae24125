package pipeline

import "sync/atomic"

// UsageCounters tracks process-lifetime request/error/retry/cache counts
// for metrics exposition. All fields are updated with atomic ops so the
// counters can be read concurrently with in-flight requests without a
// lock, matching the lock-free read path the rest of this package uses
// for Snapshot access.
type UsageCounters struct {
	requests             atomic.Int64
	errors               atomic.Int64
	retries              atomic.Int64
	cacheHits            atomic.Int64
	cacheMisses          atomic.Int64
	overloadedRejections atomic.Int64
	bytesBilled          atomic.Int64
}

// NewUsageCounters returns a zeroed UsageCounters.
func NewUsageCounters() *UsageCounters {
	return &UsageCounters{}
}

func (u *UsageCounters) RecordRequest() { u.requests.Add(1) }
func (u *UsageCounters) RecordError()   { u.errors.Add(1) }
func (u *UsageCounters) RecordRetry()   { u.retries.Add(1) }

func (u *UsageCounters) RecordCacheHit()  { u.cacheHits.Add(1) }
func (u *UsageCounters) RecordCacheMiss() { u.cacheMisses.Add(1) }

func (u *UsageCounters) RecordOverloadedRejection() { u.overloadedRejections.Add(1) }

// RecordBytesBilled adds n (the BigQuery bytes billed for a wet-run or
// dry-run) to the running total.
func (u *UsageCounters) RecordBytesBilled(n int64) {
	if n > 0 {
		u.bytesBilled.Add(n)
	}
}

// UsageSnapshot is a point-in-time, non-atomic read of all counters for
// rendering into a metrics response.
type UsageSnapshot struct {
	Requests             int64
	Errors               int64
	Retries              int64
	CacheHits            int64
	CacheMisses          int64
	OverloadedRejections int64
	BytesBilled          int64
}

// Snapshot reads every counter into a plain struct.
func (u *UsageCounters) Snapshot() UsageSnapshot {
	return UsageSnapshot{
		Requests:             u.requests.Load(),
		Errors:               u.errors.Load(),
		Retries:              u.retries.Load(),
		CacheHits:            u.cacheHits.Load(),
		CacheMisses:          u.cacheMisses.Load(),
		OverloadedRejections: u.overloadedRejections.Load(),
		BytesBilled:          u.bytesBilled.Load(),
	}
}
