package storage

import (
	"context"
	"testing"
	"time"

	"github.com/tailored-agentic-units/tomkv/clock"
	"github.com/tailored-agentic-units/tomkv/mount"
	"github.com/tailored-agentic-units/tomkv/observability"
	"github.com/tailored-agentic-units/tomkv/storageconf"
)

func newTestStorage(t *testing.T) (*Storage[string, string], *clock.Fake) {
	t.Helper()
	cfg := storageconf.DefaultConfig()
	cfg.FileStore.Root = t.TempDir()
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	s, err := New[string, string](&cfg, StringCodec{}, StringCodec{}, WithClock[string, string](fake), WithObserver[string, string](observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, fake
}

// TestStorage_SingleMountRoundTrip covers S1: insert a value under one
// mount, then read it back through Value/Key/Mapped.
func TestStorage_SingleMountRoundTrip(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	s.Mount(ctx, "widgets", "tom-a", "", 0)

	n, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "gear"}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if n != 1 {
		t.Fatalf("Insert count = %d, want 1", n)
	}

	values, err := s.Value(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(values) != 1 || values[0].Key != "widgets/1" || values[0].Mapped != "gear" {
		t.Fatalf("Value = %+v", values)
	}

	keys, err := s.Key(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Key: %v", err)
	}
	if len(keys) != 1 || keys[0] != "widgets/1" {
		t.Fatalf("Key = %+v", keys)
	}

	mapped, err := s.Mapped(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Mapped: %v", err)
	}
	if len(mapped) != 1 || mapped[0] != "gear" {
		t.Fatalf("Mapped = %+v", mapped)
	}
}

// TestStorage_TwoMountsSameSubPathFanOut covers S2: two mounts publishing
// records for the same virtual prefix both receive the write, and both
// contribute to the merged read when priorities are equal.
func TestStorage_TwoMountsSameSubPathFanOut(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	s.Mount(ctx, "widgets", "tom-a", "", 0)
	s.Mount(ctx, "widgets", "tom-b", "", 0)

	n, err := s.SetValue(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "gear"})
	if err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if n != 0 {
		t.Fatalf("SetValue on absent entries = %d, want 0", n)
	}

	inserted, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "gear"}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("Insert count across two mounts = %d, want 2", inserted)
	}

	values, err := s.Value(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("Value across equal-priority mounts = %+v, want 2 entries", values)
	}
}

// TestStorage_PriorityMergeKeepsHighestOnly covers P7: with unequal
// priorities on the same key, only the highest-priority mount's entry
// survives the merge.
func TestStorage_PriorityMergeKeepsHighestOnly(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	s.Mount(ctx, "widgets", "tom-low", "", 0)
	if _, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "low-value"}, nil); err != nil {
		t.Fatalf("Insert low: %v", err)
	}

	s.Mount(ctx, "widgets", "tom-high", "", 5)
	// tom-low already has a non-outdated entry, so this Insert skips it and
	// only writes the fresh tom-high record, giving each mount a distinct
	// mapped value to distinguish which one survives the merge.
	if _, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "high-value"}, nil); err != nil {
		t.Fatalf("Insert high: %v", err)
	}

	values, err := s.Value(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(values) != 1 || values[0].Mapped != "high-value" {
		t.Fatalf("Value = %+v, want only the tom-high priority group", values)
	}
}

// TestStorage_UnmountedPathFails covers the unmounted-path error case.
func TestStorage_UnmountedPathFails(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	if _, err := s.Value(ctx, "nowhere/1"); err == nil {
		t.Fatal("expected error for unmounted path")
	}
}

// TestStorage_TTLOutdatedEntryHiddenFromReadsAndPlainWrites covers P6: an
// entry past its lifetime is invisible to reads and to plain Set*, but
// still visible to Insert/AsNew.
func TestStorage_TTLOutdatedEntryHiddenFromReadsAndPlainWrites(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()
	s.Mount(ctx, "widgets", "tom-a", "", 0)

	lifetime := 10 * time.Second
	if _, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "gear"}, &lifetime); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	fake.Advance(20 * time.Second)

	values, err := s.Value(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("Value on outdated entry = %+v, want empty", values)
	}

	modified, err := s.SetMapped(ctx, "widgets/1", "new-gear")
	if err != nil {
		t.Fatalf("SetMapped: %v", err)
	}
	if modified != 0 {
		t.Fatalf("SetMapped on outdated entry modified = %d, want 0", modified)
	}

	modified, err = s.SetMappedAsNew(ctx, "widgets/1", "fresh-gear")
	if err != nil {
		t.Fatalf("SetMappedAsNew: %v", err)
	}
	if modified != 1 {
		t.Fatalf("SetMappedAsNew on outdated entry modified = %d, want 1", modified)
	}

	values, err = s.Value(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Value after AsNew refresh: %v", err)
	}
	if len(values) != 1 || values[0].Mapped != "fresh-gear" {
		t.Fatalf("Value after AsNew refresh = %+v", values)
	}
}

// TestStorage_RemoveIsIdempotent covers Remove returning 0 once already
// removed, matching the original storage.hpp's idempotent delete.
func TestStorage_RemoveIsIdempotent(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	s.Mount(ctx, "widgets", "tom-a", "", 0)

	if _, err := s.Insert(ctx, "widgets/1", Pair[string, string]{Key: "widgets/1", Mapped: "gear"}, nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := s.Remove(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if n != 1 {
		t.Fatalf("Remove count = %d, want 1", n)
	}

	n, err = s.Remove(ctx, "widgets/1")
	if err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if n != 0 {
		t.Fatalf("second Remove count = %d, want 0", n)
	}
}

// TestStorage_UnmountRemovesRecords covers §4.3 unmount.
func TestStorage_UnmountRemovesRecords(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()
	s.Mount(ctx, "widgets", "tom-a", "", 0)

	if !s.Unmount(ctx, "widgets") {
		t.Fatal("Unmount reported no record removed")
	}
	if s.Unmount(ctx, "widgets") {
		t.Fatal("second Unmount unexpectedly reported a record removed")
	}
	if _, err := s.Value(ctx, "widgets/1"); err != mount.ErrUnmountedPath {
		t.Fatalf("Value after Unmount err = %v, want ErrUnmountedPath", err)
	}
}
