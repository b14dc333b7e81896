package memcore

import (
	"hash/fnv"
	"sync"
)

// KeyedLocks serializes operations on the same key (an episode ID) without
// a single global write lock. Per spec §5: writes to a single episode are
// serialized by episode ID; writes and reads across episodes proceed
// concurrently. Locks must never be held across a suspension point that
// performs durable I/O — callers take the lock only around the decision
// logic that must observe a consistent in-memory view, release it, then do
// the I/O.
type KeyedLocks struct {
	shards []shard
}

type shard struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLocks creates a sharded lock table with a fixed 64 shards.
// 64 shards is enough to keep contention low without much memory overhead
// for the expected episode-ID key space.
func NewKeyedLocks() *KeyedLocks {
	const shardCount = 64
	kl := &KeyedLocks{shards: make([]shard, shardCount)}
	for i := range kl.shards {
		kl.shards[i].locks = make(map[string]*sync.Mutex)
	}
	return kl
}

func (kl *KeyedLocks) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &kl.shards[h.Sum32()%uint32(len(kl.shards))]
}

// Lock acquires the mutex for key, creating it on first use.
func (kl *KeyedLocks) Lock(key string) {
	s := kl.shardFor(key)
	s.mu.Lock()
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	s.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for key. It panics if key has no lock, the
// same as releasing an unlocked sync.Mutex would.
func (kl *KeyedLocks) Unlock(key string) {
	s := kl.shardFor(key)
	s.mu.Lock()
	m, ok := s.locks[key]
	s.mu.Unlock()
	if !ok {
		panic("memcore: Unlock of unlocked key " + key)
	}
	m.Unlock()
}

// WithLock runs fn with key's lock held, releasing it when fn returns.
func (kl *KeyedLocks) WithLock(key string, fn func()) {
	kl.Lock(key)
	defer kl.Unlock(key)
	fn()
}
