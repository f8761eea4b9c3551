package chm

// Accessor is a scoped handle bound to one bucket entry, held under either
// the bucket's shared or exclusive lock. It is not safe to copy; pass it by
// pointer or move it by reassigning the variable that owns it. Retaining a
// value read from an Accessor past Release is a programmer error the map
// does not detect.
type Accessor[K, V any] struct {
	bucket    *bucket[K, V]
	node      *entryNode[K, V]
	exclusive bool
	released  bool
}

// Bound reports whether the accessor is currently bound to an entry.
func (a *Accessor[K, V]) Bound() bool {
	return a != nil && a.node != nil && !a.released
}

// Key returns the bound entry's key. Calling it on an unbound accessor
// panics: use after release is a programmer error.
func (a *Accessor[K, V]) Key() K {
	a.mustBeBound()
	return a.node.key
}

// Value returns the bound entry's mapped value under whichever lock this
// accessor holds. When held under the shared lock this is an explicitly
// hazardous read path: the caller must not mutate the returned value
// unless V itself provides internal synchronization.
func (a *Accessor[K, V]) Value() V {
	a.mustBeBound()
	return a.node.mapped
}

// SetValue overwrites the bound entry's mapped value. Only valid on an
// exclusive accessor; calling it on a shared accessor panics.
func (a *Accessor[K, V]) SetValue(v V) {
	a.mustBeBound()
	if !a.exclusive {
		panic("chm: SetValue called on a shared Accessor")
	}
	a.node.mapped = v
}

// Release drops the accessor's lock and unbinds it. Safe to call multiple
// times; the second call is a no-op. Reassigning a bound accessor variable
// through a new lookup must call Release first: Find and Emplace return a
// fresh Accessor and do not release a previously held one.
func (a *Accessor[K, V]) Release() {
	if a == nil || a.released {
		return
	}
	a.released = true
	a.node = nil
	if a.bucket == nil {
		return
	}
	if a.exclusive {
		a.bucket.unlockExclusive()
	} else {
		a.bucket.unlockShared()
	}
	a.bucket = nil
}

func (a *Accessor[K, V]) mustBeBound() {
	if !a.Bound() {
		panic("chm: Accessor use after release or before a successful lookup")
	}
}
