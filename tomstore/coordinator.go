package tomstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/tomkv/chm"
	"github.com/tailored-agentic-units/tomkv/mount"
	"github.com/tailored-agentic-units/tomkv/observability"
)

// Event types emitted by the coordinator.
const (
	EventTomMaterialized observability.EventType = "tomstore.materialized"
	EventTomFlushed      observability.EventType = "tomstore.flushed"
	EventTomDropped      observability.EventType = "tomstore.dropped"
)

// tomInfo is one tom table entry: mutex, owned-or-null tree, and the pending
// reader/writer counters the coordination protocol tracks.
type tomInfo struct {
	id             mount.ID
	mu             sync.Mutex
	tree           *Tree
	pendingReaders atomic.Int32
	pendingWriters atomic.Int32
}

// Coordinator implements the per-tom reader/writer protocol: lazy tree
// materialization, mutation serialization, flush-on-writer-quiescence,
// drop-on-total-quiescence.
type Coordinator struct {
	toms     *chm.Map[mount.ID, *tomInfo]
	fs       FileSystem
	codec    Codec
	observer observability.Observer
}

// CoordinatorOption tunes the concurrent map backing a Coordinator's tom
// table.
type CoordinatorOption func(*coordinatorSettings)

type coordinatorSettings struct {
	growthFactor    float64
	initialSegments int
}

// WithGrowthFactor overrides the tom table's rehash load factor. Values
// <= 0 keep the map's default.
func WithGrowthFactor(f float64) CoordinatorOption {
	return func(s *coordinatorSettings) { s.growthFactor = f }
}

// WithInitialSegments overrides how many segments the tom table activates
// eagerly. Values < 1 keep the map's default.
func WithInitialSegments(n int) CoordinatorOption {
	return func(s *coordinatorSettings) { s.initialSegments = n }
}

// NewCoordinator constructs a Coordinator over fs using codec to
// (de)serialize documents.
func NewCoordinator(fs FileSystem, codec Codec, observer observability.Observer, opts ...CoordinatorOption) *Coordinator {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}

	settings := coordinatorSettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	var chmOpts []chm.Option[mount.ID, *tomInfo]
	if settings.growthFactor > 0 {
		chmOpts = append(chmOpts, chm.WithGrowthFactor[mount.ID, *tomInfo](settings.growthFactor))
	}
	if settings.initialSegments >= 1 {
		chmOpts = append(chmOpts, chm.WithInitialSegments[mount.ID, *tomInfo](settings.initialSegments))
	}

	return &Coordinator{
		toms:     chm.New[mount.ID, *tomInfo](chm.NewStringHasher[mount.ID](), chmOpts...),
		fs:       fs,
		codec:    codec,
		observer: observer,
	}
}

// Body is the operation invoked with the in-memory tree and the composed
// document path. It returns an error only for resource failures; logical
// misses are the body's own concern to fold into its closure's captured
// result.
type Body func(tree *Tree) error

// WithTom runs body under the coordination protocol for id. write selects
// whether this is a reader or writer operation for the purpose of the
// pending counters and the flush decision.
func (c *Coordinator) WithTom(ctx context.Context, id mount.ID, write bool, body Body) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info := c.tomFor(id)

	if write {
		info.pendingWriters.Add(1)
	} else {
		info.pendingReaders.Add(1)
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	if write {
		info.pendingWriters.Add(-1)
	} else {
		info.pendingReaders.Add(-1)
	}

	if info.tree == nil {
		tree, err := c.materialize(id)
		if err != nil {
			return err
		}
		info.tree = tree
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventTomMaterialized,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "tomstore.Coordinator.WithTom",
			Data:      map[string]any{"tom": mount.Fingerprint(id)},
		})
	}

	bodyErr := body(info.tree)

	if write && info.pendingWriters.Load() == 0 {
		if err := c.flush(id, info.tree); err != nil {
			if bodyErr == nil {
				bodyErr = err
			}
		} else {
			c.observer.OnEvent(ctx, observability.Event{
				Type:      EventTomFlushed,
				Level:     observability.LevelInfo,
				Timestamp: time.Now(),
				Source:    "tomstore.Coordinator.WithTom",
				Data:      map[string]any{"tom": mount.Fingerprint(id)},
			})
		}
	}

	if info.pendingReaders.Load() == 0 && info.pendingWriters.Load() == 0 {
		info.tree = nil
		c.observer.OnEvent(ctx, observability.Event{
			Type:      EventTomDropped,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "tomstore.Coordinator.WithTom",
			Data:      map[string]any{"tom": mount.Fingerprint(id)},
		})
	}

	return bodyErr
}

func (c *Coordinator) tomFor(id mount.ID) *tomInfo {
	acc, _ := c.toms.Emplace(id, &tomInfo{id: id}, false)
	defer acc.Release()
	return acc.Value()
}

// materialize loads id's document from the filesystem, creating a fresh
// empty tom if none exists yet.
func (c *Coordinator) materialize(id mount.ID) (*Tree, error) {
	data, err := c.fs.Read(id)
	if err != nil {
		if isTomNotFound(err) {
			tree := NewTree()
			if writeErr := c.flush(id, tree); writeErr != nil {
				return nil, writeErr
			}
			return tree, nil
		}
		return nil, err
	}

	tree, err := c.codec.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, id, err)
	}
	return tree, nil
}

func (c *Coordinator) flush(id mount.ID, tree *Tree) error {
	data, err := c.codec.Marshal(tree)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailed, id, err)
	}
	if err := c.fs.Write(id, data); err != nil {
		return err
	}
	return nil
}

func isTomNotFound(err error) bool {
	return errors.Is(err, ErrTomNotFound)
}
