// Package storage implements the storage façade: it resolves virtual paths
// against the mount registry, dispatches document-level operations across
// every mount record found, and applies the priority-merge and TTL policy.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/tomkv/clock"
	"github.com/tailored-agentic-units/tomkv/mount"
	"github.com/tailored-agentic-units/tomkv/observability"
	"github.com/tailored-agentic-units/tomkv/storageconf"
	"github.com/tailored-agentic-units/tomkv/tomstore"
)

// Event types emitted by the façade.
const (
	EventMountPublished observability.EventType = "storage.mount.published"
	EventMountRemoved   observability.EventType = "storage.mount.removed"
	EventOperationError observability.EventType = "storage.operation.error"
)

const (
	leafKey    = "key"
	leafMapped = "mapped"
)

// Option configures a Storage after config-driven initialization, following
// a functional-options pattern.
type Option[K comparable, M any] func(*Storage[K, M])

// WithRegistry overrides the config-created mount registry.
func WithRegistry[K comparable, M any](r *mount.Registry) Option[K, M] {
	return func(s *Storage[K, M]) { s.registry = r }
}

// WithCoordinator overrides the config-created tom coordinator.
func WithCoordinator[K comparable, M any](c *tomstore.Coordinator) Option[K, M] {
	return func(s *Storage[K, M]) { s.coord = c }
}

// WithClock overrides the default real clock, for deterministic TTL tests.
func WithClock[K comparable, M any](c clock.Clock) Option[K, M] {
	return func(s *Storage[K, M]) { s.clock = c }
}

// WithObserver overrides the default SlogObserver.
func WithObserver[K comparable, M any](o observability.Observer) Option[K, M] {
	return func(s *Storage[K, M]) { s.observer = o }
}

// Storage is the concurrent, mount-aware key-value storage façade.
type Storage[K comparable, M any] struct {
	registry    *mount.Registry
	coord       *tomstore.Coordinator
	keyCodec    ValueCodec[K]
	mappedCodec ValueCodec[M]
	clock       clock.Clock
	observer    observability.Observer
}

// resolveObserver composes cfg.Observers into a single Observer by looking
// each name up in the global observability registry. A config naming more
// than one observer fans out through a MultiObserver so, for example, the
// default "slog" sink and an operator-registered metrics sink both see
// every event.
func resolveObserver(names []string) (observability.Observer, error) {
	if len(names) == 0 {
		names = []string{"slog"}
	}

	observers := make([]observability.Observer, 0, len(names))
	for _, name := range names {
		obs, err := observability.GetObserver(name)
		if err != nil {
			return nil, fmt.Errorf("storage: resolve observer %q: %w", name, err)
		}
		observers = append(observers, obs)
	}
	if len(observers) == 1 {
		return observers[0], nil
	}
	return observability.NewMultiObserver(observers...), nil
}

// New constructs a Storage from configuration: it builds a mount registry
// seeded from cfg.Mounts, sized per cfg.Map, and a tom coordinator rooted at
// cfg.FileStore. Functional options applied afterward can override any
// subsystem.
func New[K comparable, M any](cfg *storageconf.Config, keyCodec ValueCodec[K], mappedCodec ValueCodec[M], opts ...Option[K, M]) (*Storage[K, M], error) {
	observer, err := resolveObserver(cfg.Observers)
	if err != nil {
		return nil, err
	}

	registry := mount.NewRegistry(
		mount.WithGrowthFactor(cfg.Map.GrowthFactor),
		mount.WithInitialSegments(cfg.Map.InitialSegments),
	)
	for _, decl := range cfg.Mounts {
		registry.Mount(mount.ID(decl.MountID), mount.ID(decl.TomID), mount.Path(decl.SubPath), decl.Priority)
	}

	fs := tomstore.NewFileSystem(cfg.FileStore.Root, tomstore.CompressionTag(cfg.FileStore.Compression))
	coord := tomstore.NewCoordinator(fs, tomstore.NewXMLCodec(), observer,
		tomstore.WithGrowthFactor(cfg.Map.GrowthFactor),
		tomstore.WithInitialSegments(cfg.Map.InitialSegments),
	)

	s := &Storage[K, M]{
		registry:    registry,
		coord:       coord,
		keyCodec:    keyCodec,
		mappedCodec: mappedCodec,
		clock:       clock.Real{},
		observer:    observer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mount publishes a new mount record, binding tomID@subPath under mountID
// at the given priority.
func (s *Storage[K, M]) Mount(ctx context.Context, mountID mount.ID, tomID mount.ID, subPath mount.Path, priority int) {
	s.registry.Mount(mountID, tomID, subPath, priority)
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventMountPublished,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "storage.Storage.Mount",
		Data: map[string]any{
			"mount": mount.Fingerprint(mountID),
			"tom":   mount.Fingerprint(tomID),
		},
	})
}

// Unmount removes every record under mountID. Callers must ensure no
// in-flight operation references mountID; see DESIGN.md's "Unmount safety"
// decision.
func (s *Storage[K, M]) Unmount(ctx context.Context, mountID mount.ID) bool {
	removed := s.registry.Unmount(mountID)
	if removed {
		s.observer.OnEvent(ctx, observability.Event{
			Type:      EventMountRemoved,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "storage.Storage.Unmount",
			Data:      map[string]any{"mount": mount.Fingerprint(mountID)},
		})
	}
	return removed
}

// Mounts returns the raw (tom id, sub-path) pairs under mountID in list
// order.
func (s *Storage[K, M]) Mounts(mountID mount.ID) []mount.Record {
	return s.registry.Records(mountID)
}

type rawEntry struct {
	keyText    string
	hasKey     bool
	mappedText string
	hasMapped  bool
	priority   int
}

// readEntries resolves path and reads the raw leaves of every matching
// mount record's entry, silently omitting missing nodes, nodes without a
// key leaf, and outdated entries. An entry with a key but no mapped leaf is
// returned with hasMapped == false. A resource error from any single mount
// short-circuits and discards partial results, failing closed rather than
// returning a partial read.
func (s *Storage[K, M]) readEntries(ctx context.Context, path mount.Path) ([]rawEntry, error) {
	mountID, remainder, err := mount.Resolve(s.registry, path)
	if err != nil {
		return nil, err
	}

	var out []rawEntry
	for _, record := range s.registry.Records(mountID) {
		docPath := composePath(record.SubPath, remainder)
		err := s.coord.WithTom(ctx, record.TomID, false, func(tree *tomstore.Tree) error {
			node, ok := tree.Navigate(docPath)
			if !ok {
				return nil
			}
			keyText, hasKey := tomstore.GetLeaf(node, leafKey)
			if !hasKey || tomstore.IsOutdated(node, s.clock.Now()) {
				return nil
			}
			mappedText, hasMapped := tomstore.GetLeaf(node, leafMapped)
			out = append(out, rawEntry{
				keyText:    keyText,
				hasKey:     hasKey,
				mappedText: mappedText,
				hasMapped:  hasMapped,
				priority:   record.Priority,
			})
			return nil
		})
		if err != nil {
			s.emitError(ctx, "storage.Storage.readEntries", err)
			return nil, err
		}
	}
	return out, nil
}

// Key returns the priority-merged set of keys at path.
func (s *Storage[K, M]) Key(ctx context.Context, path mount.Path) ([]K, error) {
	entries, err := s.readEntries(ctx, path)
	if err != nil {
		return nil, err
	}

	var candidates []candidate[K, struct{}]
	for _, e := range entries {
		key, decErr := s.keyCodec.Decode(e.keyText)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeValue, decErr)
		}
		candidates = append(candidates, candidate[K, struct{}]{pair: Pair[K, struct{}]{Key: key}, priority: e.priority})
	}

	merged := mergeByPriority(candidates)
	out := make([]K, len(merged))
	for i, p := range merged {
		out[i] = p.Key
	}
	return out, nil
}

// Mapped returns the priority-merged set of mapped values at path.
func (s *Storage[K, M]) Mapped(ctx context.Context, path mount.Path) ([]M, error) {
	pairs, err := s.Value(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]M, len(pairs))
	for i, p := range pairs {
		out[i] = p.Mapped
	}
	return out, nil
}

// Value returns the priority-merged set of (key, mapped) pairs at path.
func (s *Storage[K, M]) Value(ctx context.Context, path mount.Path) ([]Pair[K, M], error) {
	entries, err := s.readEntries(ctx, path)
	if err != nil {
		return nil, err
	}

	var candidates []candidate[K, M]
	for _, e := range entries {
		if !e.hasMapped {
			continue
		}
		key, decErr := s.keyCodec.Decode(e.keyText)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeValue, decErr)
		}
		mapped, decErr := s.mappedCodec.Decode(e.mappedText)
		if decErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecodeValue, decErr)
		}
		candidates = append(candidates, candidate[K, M]{pair: Pair[K, M]{Key: key, Mapped: mapped}, priority: e.priority})
	}

	return mergeByPriority(candidates), nil
}

func (s *Storage[K, M]) emitError(ctx context.Context, source string, err error) {
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventOperationError,
		Level:     observability.LevelError,
		Timestamp: time.Now(),
		Source:    source,
		Data:      map[string]any{"op_id": uuid.NewString(), "error": err.Error()},
	})
}

func composePath(subPath, remainder mount.Path) string {
	if remainder == "" {
		return string(subPath)
	}
	if subPath == "" {
		return string(remainder)
	}
	return string(subPath) + "/" + string(remainder)
}
