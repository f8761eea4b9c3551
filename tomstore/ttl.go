package tomstore

import (
	"strconv"
	"time"
)

const (
	leafKey         = "key"
	leafMapped      = "mapped"
	leafDateCreated = "date_created"
	leafLifetime    = "lifetime"
)

// IsOutdated reports whether entry is outdated at now: both date_created
// and lifetime leaves exist and created+lifetime < now. An entry missing
// either leaf is never outdated.
func IsOutdated(entry *Node, now time.Time) bool {
	createdText, ok := GetLeaf(entry, leafDateCreated)
	if !ok {
		return false
	}
	lifetimeText, ok := GetLeaf(entry, leafLifetime)
	if !ok {
		return false
	}

	created, err := strconv.ParseInt(createdText, 10, 64)
	if err != nil {
		return false
	}
	lifetime, err := strconv.ParseInt(lifetimeText, 10, 64)
	if err != nil {
		return false
	}

	return created+lifetime < now.Unix()
}

// StampCreated writes date_created = now, used by the as-new write variants
// and Insert.
func StampCreated(entry *Node, now time.Time) {
	SetLeaf(entry, leafDateCreated, strconv.FormatInt(now.Unix(), 10))
}

// StampLifetime writes lifetime = seconds.
func StampLifetime(entry *Node, lifetime time.Duration) {
	SetLeaf(entry, leafLifetime, strconv.FormatInt(int64(lifetime/time.Second), 10))
}

// ClearLifetime removes the lifetime leaf, used by Insert when called
// without a lifetime argument.
func ClearLifetime(entry *Node) {
	DeleteLeaf(entry, leafLifetime)
}
