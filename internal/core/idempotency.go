package core

import "container/list"

// IdempotencyChecker implements two-tier deduplication: an in-memory
// LRU for the hot path and the Postgres invocation log for keys that
// aged out of memory.
type IdempotencyChecker struct {
	lru *IdempotencyLRU

	dbChecker DBIdempotencyChecker

	metrics *IdempotencyMetrics
}

// DBIdempotencyChecker is the interface for the durable dedup lookup.
type DBIdempotencyChecker interface {
	IsDuplicate(selector string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       NewIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   NewIdempotencyMetrics(),
	}
}

// IsDuplicate checks whether the invocation was already processed,
// reporting which tier caught it.
func (ic *IdempotencyChecker) IsDuplicate(selector string, idempotencyKey string) (bool, string) {
	if ic.lru.Contains(idempotencyKey) {
		ic.metrics.RecordDuplicate(selector, "lru")
		return true, "lru"
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(selector, idempotencyKey)
		if err != nil {
			// Conservative: a DB hiccup must not block processing.
			ic.metrics.RecordTier2Error()
			return false, ""
		}

		if isDup {
			ic.metrics.RecordDuplicate(selector, "postgres")
			ic.lru.Add(idempotencyKey)
			return true, "postgres"
		}
	}

	return false, ""
}

// MarkProcessed adds the key to the LRU after successful processing.
func (ic *IdempotencyChecker) MarkProcessed(idempotencyKey string) {
	ic.lru.Add(idempotencyKey)
}

// GetMetrics returns dedup counters for monitoring.
func (ic *IdempotencyChecker) GetMetrics() *IdempotencyMetrics {
	return ic.metrics
}

// Size returns current LRU entry count.
func (ic *IdempotencyChecker) Size() int {
	return ic.lru.Size()
}

// WarmFromKeys preloads recent keys, typically read from the
// invocation log on restart.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	ic.lru.WarmFromKeys(keys)
}

// --- LRU Implementation ---

// IdempotencyLRU is an LRU cache for idempotency keys.
// Not thread-safe. Only accessed from the single-threaded processor.
type IdempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewIdempotencyLRU(capacity int) *IdempotencyLRU {
	return &IdempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if the key exists and promotes it to the front.
func (lru *IdempotencyLRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key, or promotes it if present.
func (lru *IdempotencyLRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *IdempotencyLRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// WarmFromKeys loads a batch of keys into the LRU on restart so
// recently processed invocations skip the cold DB path.
func (lru *IdempotencyLRU) WarmFromKeys(keys []string) {
	for _, key := range keys {
		if _, exists := lru.cache[key]; exists {
			continue
		}
		entry := &lruEntry{key: key}
		elem := lru.lruList.PushFront(entry)
		lru.cache[key] = elem

		if lru.lruList.Len() > lru.capacity {
			lru.evictOldest()
		}
	}
}

// Size returns the current number of entries.
func (lru *IdempotencyLRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions.
func (lru *IdempotencyLRU) Evictions() int64 {
	return lru.evictions
}

// --- Metrics ---

// IdempotencyMetrics tracks dedup stats.
// Not thread-safe. Only accessed from the single-threaded processor.
type IdempotencyMetrics struct {
	duplicatesLRU      map[string]int64 // selector -> count
	duplicatesPostgres map[string]int64
	tier2Errors        int64
}

func NewIdempotencyMetrics() *IdempotencyMetrics {
	return &IdempotencyMetrics{
		duplicatesLRU:      make(map[string]int64),
		duplicatesPostgres: make(map[string]int64),
	}
}

func (m *IdempotencyMetrics) RecordDuplicate(selector string, tier string) {
	if tier == "lru" {
		m.duplicatesLRU[selector]++
	} else {
		m.duplicatesPostgres[selector]++
	}
}

func (m *IdempotencyMetrics) RecordTier2Error() {
	m.tier2Errors++
}

func (m *IdempotencyMetrics) GetDuplicates(selector string) (lru int64, postgres int64) {
	return m.duplicatesLRU[selector], m.duplicatesPostgres[selector]
}

func (m *IdempotencyMetrics) GetTier2Errors() int64 {
	return m.tier2Errors
}
