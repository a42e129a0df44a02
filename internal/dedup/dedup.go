// Copyright 2025 James Ross
// Package dedup implements the in-memory, process-local dedup index: a
// refcounted set of chunk addresses that the engine consults before writing
// a chunk to storage. The index is sharded to keep lock contention local to
// a slice of the address space under concurrent ingest, the same shape the
// teacher's in-memory stats and reference-counting maps use a single
// sync.RWMutex for at smaller scale.
package dedup

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShardCount matches spec §5's suggested default.
const DefaultShardCount = 16

// Index tracks, for each known chunk address, how many live references
// point at it. A chunk is eligible for deletion exactly when its reference
// count reaches zero.
type Index struct {
	shards []*shard
	mask   uint64
}

type shard struct {
	mu    sync.RWMutex
	refs  map[string]int64
}

// New builds an Index with shardCount shards. shardCount is rounded up to
// the next power of two so the shard selector can mask instead of mod.
func New(shardCount int) *Index {
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	idx := &Index{shards: make([]*shard, n), mask: uint64(n - 1)}
	for i := range idx.shards {
		idx.shards[i] = &shard{refs: make(map[string]int64)}
	}
	return idx
}

func (idx *Index) shardFor(address string) *shard {
	if len(idx.shards) == 1 {
		return idx.shards[0]
	}
	return idx.shards[xxhash.Sum64String(address)&idx.mask]
}

// Contains reports whether address has at least one live reference.
func (idx *Index) Contains(address string) bool {
	s := idx.shardFor(address)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[address] > 0
}

// Acquire registers one reference to address, returning the address's
// refcount after the increment and whether this call discovered the
// address for the first time (i.e. the caller is responsible for writing
// the chunk to storage). Concurrent Acquire calls on the same address are
// serialized by the shard lock, so exactly one caller ever sees
// wasNew == true for a given address's first reference.
func (idx *Index) Acquire(address string) (refCount int64, wasNew bool) {
	s := idx.shardFor(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.refs[address]
	s.refs[address] = before + 1
	return before + 1, before == 0
}

// Release removes one reference from address, returning the refcount after
// the decrement and whether it reached zero (the caller is responsible for
// deleting the underlying chunk). Releasing an address with no references
// is a no-op that returns (0, false).
func (idx *Index) Release(address string) (refCount int64, reachedZero bool) {
	s := idx.shardFor(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.refs[address]
	if !ok || current <= 0 {
		return 0, false
	}
	current--
	if current <= 0 {
		delete(s.refs, address)
		return 0, true
	}
	s.refs[address] = current
	return current, false
}

// RefCount returns the current reference count for address, or 0 if unknown.
func (idx *Index) RefCount(address string) int64 {
	s := idx.shardFor(address)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[address]
}

// Len returns the total number of distinct addresses with a live reference.
func (idx *Index) Len() int {
	total := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		total += len(s.refs)
		s.mu.RUnlock()
	}
	return total
}

// Snapshot returns a point-in-time copy of every tracked address and its
// refcount. Shards are copied one at a time, so the result is not atomic
// across shards.
func (idx *Index) Snapshot() map[string]int64 {
	out := make(map[string]int64, idx.Len())
	for _, s := range idx.shards {
		s.mu.RLock()
		for addr, count := range s.refs {
			out[addr] = count
		}
		s.mu.RUnlock()
	}
	return out
}
