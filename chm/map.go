// Package chm implements a segmented, lock-striped concurrent hash map:
// shared/exclusive per-bucket locks, lock-free head insertion via CAS, and
// coordinated grow-only rehashing.
//
// The outer general-purpose container API (constructors, allocator
// plumbing) is intentionally not provided here; Map exposes only the
// operations that must be preserved, and callers own composing it into a
// higher-level container.
package chm

import (
	"sync"
	"sync/atomic"

	"github.com/tailored-agentic-units/tomkv/backoff"
)

// defaultGrowthFactor is the load factor above which an insert flags a
// rehash: size / bucket_count > growthFactor.
const defaultGrowthFactor = 1.0

// defaultInitialSegments is the number of segments activated eagerly by
// New when no WithInitialSegments option is given.
const defaultInitialSegments = 1

// Option configures a Map at construction using a functional-options
// pattern.
type Option[K comparable, V any] func(*Map[K, V])

// WithGrowthFactor overrides the load factor that triggers a rehash.
func WithGrowthFactor[K comparable, V any](f float64) Option[K, V] {
	return func(m *Map[K, V]) { m.growthFactor = f }
}

// WithInitialSegments overrides how many segments New activates eagerly,
// sizing the map's starting bucket count up front instead of growing it
// from a single 2-bucket segment.
func WithInitialSegments[K comparable, V any](n int) Option[K, V] {
	return func(m *Map[K, V]) { m.initialSegments = n }
}

// Map is a concurrent, segmented hash map. The zero value is not usable;
// construct with New.
type Map[K comparable, V any] struct {
	hasher Hasher[K]

	segments [wordBits]atomic.Pointer[segment[K, V]]

	bucketCount atomic.Uint64
	size        atomic.Int64

	growthFactor    float64
	initialSegments int

	rehashRequired atomic.Bool
	rehashMu       sync.Mutex

	segmentCreate sync.Mutex // guards lazy segment activation: a segment is created under this mutex and published with a plain atomic Store, not a CAS
}

// New constructs an empty Map using hasher for key hashing and equality.
func New[K comparable, V any](hasher Hasher[K], opts ...Option[K, V]) *Map[K, V] {
	m := &Map[K, V]{hasher: hasher, growthFactor: defaultGrowthFactor, initialSegments: defaultInitialSegments}
	for _, opt := range opts {
		opt(m)
	}
	if m.growthFactor <= 0 {
		m.growthFactor = defaultGrowthFactor
	}
	if m.initialSegments < 1 {
		m.initialSegments = defaultInitialSegments
	}

	for s := 0; s < m.initialSegments; s++ {
		m.segments[s].Store(newSegment[K, V](segmentSize(s)))
	}
	m.bucketCount.Store(segmentFirstIndex(m.initialSegments))
	return m
}

// NewComparable constructs a Map for a comparable key type using the
// default ComparableHasher.
func NewComparable[K comparable, V any]() *Map[K, V] {
	h := NewComparableHasher[K]()
	return New[K, V](h)
}

// Size returns the relaxed atomic entry count. It may briefly disagree
// with the observable count during concurrent insert/erase.
func (m *Map[K, V]) Size() int64 {
	return m.size.Load()
}

// Empty reports Size() == 0.
func (m *Map[K, V]) Empty() bool {
	return m.Size() == 0
}

// Find binds accessor to the entry matching key, holding the bucket's
// shared lock, and returns found == true. On a miss the accessor is left
// unbound and found is false.
func (m *Map[K, V]) Find(key K) (accessor *Accessor[K, V], found bool) {
	m.maybeRehash()

	for {
		count := m.bucketCount.Load()
		h := m.hasher.Hash(key)
		g := h % count
		buk := m.bucketAt(g)

		buk.lockShared()
		if m.bucketCount.Load() != count && (m.hasher.Hash(key)%m.bucketCount.Load()) != g {
			buk.unlockShared()
			continue
		}

		node := m.scan(buk, key)
		if node == nil {
			buk.unlockShared()
			return &Accessor[K, V]{}, false
		}
		return &Accessor[K, V]{bucket: buk, node: node, exclusive: false}, true
	}
}

// Emplace inserts (key, value) if key is absent, or leaves the map
// unchanged if it is present. accessor is always bound to the resulting
// entry (the new one on success, the pre-existing one on failure);
// exclusive selects which lock flavor the returned accessor holds.
func (m *Map[K, V]) Emplace(key K, value V, exclusive bool) (accessor *Accessor[K, V], inserted bool) {
	m.maybeRehash()

	b := backoff.Default()
	for {
		count := m.bucketCount.Load()
		h := m.hasher.Hash(key)
		g := h % count
		buk := m.bucketAt(g)

		if exclusive {
			buk.lockExclusive()
		} else {
			buk.lockShared()
		}
		if m.bucketCount.Load() != count && (m.hasher.Hash(key)%m.bucketCount.Load()) != g {
			if exclusive {
				buk.unlockExclusive()
			} else {
				buk.unlockShared()
			}
			continue
		}

		if existing := m.scan(buk, key); existing != nil {
			return &Accessor[K, V]{bucket: buk, node: existing, exclusive: exclusive}, false
		}

		node := &entryNode[K, V]{key: key, mapped: value}
		for {
			head := buk.head.Load()
			node.next.Store(head)
			if buk.head.CompareAndSwap(head, node) {
				break
			}
			// Another shared-locked emplace in this bucket won the CAS; re-scan
			// the whole list from the fresh head in case it inserted the same
			// key (no stop marker is used, so already-checked nodes are checked
			// again), otherwise retry.
			if again := m.scanFrom(buk.head.Load(), key); again != nil {
				return &Accessor[K, V]{bucket: buk, node: again, exclusive: exclusive}, false
			}
			b.Wait()
		}

		newSize := m.size.Add(1)
		if float64(newSize)/float64(count) > m.growthFactor {
			m.rehashRequired.Store(true) // release-ish: paired with acquire load in maybeRehash
		}

		return &Accessor[K, V]{bucket: buk, node: node, exclusive: exclusive}, true
	}
}

// Erase removes at most one entry with the given key and reports whether
// one was removed.
func (m *Map[K, V]) Erase(key K) bool {
	m.maybeRehash()

	for {
		count := m.bucketCount.Load()
		h := m.hasher.Hash(key)
		g := h % count
		buk := m.bucketAt(g)

		buk.lockExclusive()
		if m.bucketCount.Load() != count && (m.hasher.Hash(key)%m.bucketCount.Load()) != g {
			buk.unlockExclusive()
			continue
		}

		removed := m.unlink(buk, key)
		buk.unlockExclusive()
		if removed {
			m.size.Add(-1)
		}
		return removed
	}
}

// EraseAccessor removes the entry currently bound to accessor. accessor
// must be an exclusive handle previously returned by Find or Emplace on
// this map; it is unbound afterward.
func (m *Map[K, V]) EraseAccessor(accessor *Accessor[K, V]) bool {
	if !accessor.Bound() || !accessor.exclusive {
		return false
	}
	key := accessor.node.key
	buk := accessor.bucket
	removed := m.unlink(buk, key)
	accessor.Release()
	if removed {
		m.size.Add(-1)
	}
	return removed
}

// ForEach iterates every entry with no lock protection beyond bucket
// ordering. Valid only when the caller externally guarantees no concurrent
// modification. Used by shutdown-time snapshotting.
func (m *Map[K, V]) ForEach(visit func(key K, value V)) {
	count := m.bucketCount.Load()
	for g := uint64(0); g < count; g++ {
		buk := m.bucketAt(g)
		for n := buk.head.Load(); n != nil; n = n.next.Load() {
			visit(n.key, n.mapped)
		}
	}
}

func (m *Map[K, V]) scan(buk *bucket[K, V], key K) *entryNode[K, V] {
	return m.scanFrom(buk.head.Load(), key)
}

func (m *Map[K, V]) scanFrom(head *entryNode[K, V], key K) *entryNode[K, V] {
	for n := head; n != nil; n = n.next.Load() {
		if m.hasher.Equal(n.key, key) {
			return n
		}
	}
	return nil
}

// unlink removes the node matching key from buk's list. Callers must hold
// buk's exclusive lock.
func (m *Map[K, V]) unlink(buk *bucket[K, V], key K) bool {
	var prev *entryNode[K, V]
	for n := buk.head.Load(); n != nil; n = n.next.Load() {
		if m.hasher.Equal(n.key, key) {
			next := n.next.Load()
			if prev == nil {
				buk.head.Store(next)
			} else {
				prev.next.Store(next)
			}
			return true
		}
		prev = n
	}
	return false
}

// bucketAt returns the bucket for global index g, lazily activating its
// owning segment if necessary.
func (m *Map[K, V]) bucketAt(g uint64) *bucket[K, V] {
	s := segmentIndex(g)
	seg := m.segments[s].Load()
	if seg == nil {
		seg = m.activateSegment(s)
	}
	offset := g - segmentFirstIndex(s)
	return &(*seg)[offset]
}

func (m *Map[K, V]) activateSegment(s int) *segment[K, V] {
	m.segmentCreate.Lock()
	defer m.segmentCreate.Unlock()
	if existing := m.segments[s].Load(); existing != nil {
		return existing
	}
	seg := newSegment[K, V](segmentSize(s))
	m.segments[s].Store(seg)
	return seg
}

// maybeRehash inspects the rehash_required flag and, if set, performs the
// grow-only rehash under a lock-all gate.
func (m *Map[K, V]) maybeRehash() {
	if !m.rehashRequired.Load() {
		return
	}

	m.rehashMu.Lock()
	defer m.rehashMu.Unlock()

	if !m.rehashRequired.Load() {
		return
	}

	oldCount := m.bucketCount.Load()
	if float64(m.size.Load())/float64(oldCount) <= m.growthFactor {
		m.rehashRequired.Store(false)
		return
	}

	// Acquire every current bucket's exclusive lock, in ascending index
	// order, before mutating anything. A fixed acquisition order across all
	// callers avoids lock-ordering deadlocks.
	buckets := make([]*bucket[K, V], oldCount)
	for g := uint64(0); g < oldCount; g++ {
		buckets[g] = m.bucketAt(g)
		buckets[g].lockExclusive()
	}

	newCount := oldCount * 2
	newSeg := m.activateSegment(segmentIndex(oldCount))
	_ = newSeg // segment now exists; bucketAt(g) for g in [oldCount, newCount) resolves into it.

	for g := uint64(0); g < oldCount; g++ {
		buk := buckets[g]
		head := buk.head.Load()
		buk.head.Store(nil)

		for n := head; n != nil; {
			next := n.next.Load()
			newG := m.hasher.Hash(n.key) % newCount
			dest := m.bucketAt(newG)
			for {
				destHead := dest.head.Load()
				n.next.Store(destHead)
				if dest.head.CompareAndSwap(destHead, n) {
					break
				}
			}
			n = next
		}
	}

	m.bucketCount.Store(newCount)
	m.rehashRequired.Store(false)

	for g := uint64(0); g < oldCount; g++ {
		buckets[g].unlockExclusive()
	}
}
