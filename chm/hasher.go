package chm

import "hash/maphash"

// Hasher supplies the hash and equality functions a Map needs for its key
// type. It generalizes the single-threaded Hasher[T] interface used by
// simpler generic maps in the wider ecosystem to a type usable under
// concurrent, segmented storage.
type Hasher[K any] interface {
	Hash(key K) uint64
	Equal(a, b K) bool
}

// ComparableHasher is the default Hasher for any comparable key type. It
// hashes with a process-lifetime random seed via hash/maphash, so hash
// values are stable within one run but not reproducible across runs or
// suitable for on-disk persistence.
type ComparableHasher[K comparable] struct {
	seed maphash.Seed
}

// NewComparableHasher returns a ready-to-use ComparableHasher.
func NewComparableHasher[K comparable]() ComparableHasher[K] {
	return ComparableHasher[K]{seed: maphash.MakeSeed()}
}

// Hash implements Hasher.
func (h ComparableHasher[K]) Hash(key K) uint64 {
	var m maphash.Hash
	m.SetSeed(h.seed)
	maphash.WriteComparable(&m, key)
	return m.Sum64()
}

// Equal implements Hasher.
func (h ComparableHasher[K]) Equal(a, b K) bool {
	return a == b
}

// StringHasher hashes any string-kinded type (plain string or a named
// string type such as mount.ID) directly through maphash.String, avoiding
// the reflection overhead WriteComparable pays for interface-shaped keys.
type StringHasher[K ~string] struct {
	seed maphash.Seed
}

// NewStringHasher returns a ready-to-use StringHasher for key type K.
func NewStringHasher[K ~string]() StringHasher[K] {
	return StringHasher[K]{seed: maphash.MakeSeed()}
}

// Hash implements Hasher.
func (h StringHasher[K]) Hash(key K) uint64 {
	return maphash.String(h.seed, string(key))
}

// Equal implements Hasher.
func (h StringHasher[K]) Equal(a, b K) bool {
	return a == b
}
