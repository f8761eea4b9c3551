package storage

import (
	"context"
	"time"

	"github.com/tailored-agentic-units/tomkv/mount"
	"github.com/tailored-agentic-units/tomkv/tomstore"
)

// SetKey overwrites the key leaf of every non-outdated matching entry.
// Returns the number of records modified.
func (s *Storage[K, M]) SetKey(ctx context.Context, path mount.Path, key K) (int, error) {
	return s.modify(ctx, path, false, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafKey, s.keyCodec.Encode(key))
	})
}

// SetMapped overwrites the mapped leaf of every non-outdated matching entry.
func (s *Storage[K, M]) SetMapped(ctx context.Context, path mount.Path, mapped M) (int, error) {
	return s.modify(ctx, path, false, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafMapped, s.mappedCodec.Encode(mapped))
	})
}

// SetValue overwrites both key and mapped leaves of every non-outdated
// matching entry.
func (s *Storage[K, M]) SetValue(ctx context.Context, path mount.Path, value Pair[K, M]) (int, error) {
	return s.modify(ctx, path, false, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafKey, s.keyCodec.Encode(value.Key))
		tomstore.SetLeaf(node, leafMapped, s.mappedCodec.Encode(value.Mapped))
	})
}

// SetKeyAsNew overwrites the key leaf unconditionally, even on an outdated
// entry, and refreshes date_created.
func (s *Storage[K, M]) SetKeyAsNew(ctx context.Context, path mount.Path, key K) (int, error) {
	return s.modify(ctx, path, true, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafKey, s.keyCodec.Encode(key))
		tomstore.StampCreated(node, now)
	})
}

// SetMappedAsNew overwrites the mapped leaf unconditionally and refreshes
// date_created.
func (s *Storage[K, M]) SetMappedAsNew(ctx context.Context, path mount.Path, mapped M) (int, error) {
	return s.modify(ctx, path, true, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafMapped, s.mappedCodec.Encode(mapped))
		tomstore.StampCreated(node, now)
	})
}

// SetValueAsNew overwrites both leaves unconditionally and refreshes
// date_created.
func (s *Storage[K, M]) SetValueAsNew(ctx context.Context, path mount.Path, value Pair[K, M]) (int, error) {
	return s.modify(ctx, path, true, func(node *tomstore.Node, now time.Time) {
		tomstore.SetLeaf(node, leafKey, s.keyCodec.Encode(value.Key))
		tomstore.SetLeaf(node, leafMapped, s.mappedCodec.Encode(value.Mapped))
		tomstore.StampCreated(node, now)
	})
}

// modify implements the shared plain/as-new modify protocol: for every
// matching mount record's entry, apply write only if the entry exists and
// (asNew or it is not outdated). Returns the number of records modified.
func (s *Storage[K, M]) modify(ctx context.Context, path mount.Path, asNew bool, write func(node *tomstore.Node, now time.Time)) (int, error) {
	mountID, remainder, err := mount.Resolve(s.registry, path)
	if err != nil {
		return 0, err
	}

	modified := 0
	for _, record := range s.registry.Records(mountID) {
		docPath := composePath(record.SubPath, remainder)
		err := s.coord.WithTom(ctx, record.TomID, true, func(tree *tomstore.Tree) error {
			node, ok := tree.Navigate(docPath)
			if !ok {
				return nil
			}
			if _, hasKey := tomstore.GetLeaf(node, leafKey); !hasKey {
				return nil
			}
			now := s.clock.Now()
			if !asNew && tomstore.IsOutdated(node, now) {
				return nil
			}
			write(node, now)
			modified++
			return nil
		})
		if err != nil {
			s.emitError(ctx, "storage.Storage.modify", err)
			return 0, err
		}
	}
	return modified, nil
}

// Insert writes (key, mapped) at path in every matching mount record whose
// entry is absent or outdated. When lifetime is non-nil the entry is
// stamped with date_created/lifetime; when nil, any existing lifetime leaf
// is cleared. Returns the number of records written.
func (s *Storage[K, M]) Insert(ctx context.Context, path mount.Path, value Pair[K, M], lifetime *time.Duration) (int, error) {
	mountID, remainder, err := mount.Resolve(s.registry, path)
	if err != nil {
		return 0, err
	}

	inserted := 0
	for _, record := range s.registry.Records(mountID) {
		docPath := composePath(record.SubPath, remainder)
		err := s.coord.WithTom(ctx, record.TomID, true, func(tree *tomstore.Tree) error {
			node, exists := tree.Navigate(docPath)
			now := s.clock.Now()
			if exists {
				if _, hasKey := tomstore.GetLeaf(node, leafKey); hasKey && !tomstore.IsOutdated(node, now) {
					return nil
				}
			}
			node = tree.NavigateCreate(docPath)
			tomstore.SetLeaf(node, leafKey, s.keyCodec.Encode(value.Key))
			tomstore.SetLeaf(node, leafMapped, s.mappedCodec.Encode(value.Mapped))
			if lifetime != nil {
				tomstore.StampCreated(node, now)
				tomstore.StampLifetime(node, *lifetime)
			} else {
				tomstore.ClearLifetime(node)
			}
			inserted++
			return nil
		})
		if err != nil {
			s.emitError(ctx, "storage.Storage.Insert", err)
			return 0, err
		}
	}
	return inserted, nil
}

// Remove deletes the entire named child at path from every matching mount
// record whose entry is present and not outdated. Returns the number of
// records removed from.
func (s *Storage[K, M]) Remove(ctx context.Context, path mount.Path) (int, error) {
	mountID, remainder, err := mount.Resolve(s.registry, path)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, record := range s.registry.Records(mountID) {
		docPath := composePath(record.SubPath, remainder)
		err := s.coord.WithTom(ctx, record.TomID, true, func(tree *tomstore.Tree) error {
			node, ok := tree.Navigate(docPath)
			if !ok {
				return nil
			}
			if _, hasKey := tomstore.GetLeaf(node, leafKey); !hasKey {
				return nil
			}
			if tomstore.IsOutdated(node, s.clock.Now()) {
				return nil
			}
			if tree.DeleteAt(docPath) {
				removed++
			}
			return nil
		})
		if err != nil {
			s.emitError(ctx, "storage.Storage.Remove", err)
			return 0, err
		}
	}
	return removed, nil
}
