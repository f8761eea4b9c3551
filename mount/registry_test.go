package mount_test

import (
	"errors"
	"testing"

	"github.com/tailored-agentic-units/tomkv/mount"
)

func TestRegistry_MountAndRecords(t *testing.T) {
	reg := mount.NewRegistry()
	reg.Mount("mnt", "T1", "a/c", 0)
	reg.Mount("mnt", "T2", "a/c", 1)

	records := reg.Records("mnt")
	if len(records) != 2 {
		t.Fatalf("Records() len = %d, want 2", len(records))
	}

	// Publication is stack-order (most recent first).
	if records[0].TomID != "T2" || records[1].TomID != "T1" {
		t.Fatalf("Records() = %+v, want [T2, T1]", records)
	}
}

func TestRegistry_Unmount(t *testing.T) {
	reg := mount.NewRegistry()
	reg.Mount("mnt", "T1", "a", 0)

	if !reg.Has("mnt") {
		t.Fatal("Has(mnt) = false before Unmount")
	}
	if !reg.Unmount("mnt") {
		t.Fatal("Unmount(mnt) = false, want true")
	}
	if reg.Has("mnt") {
		t.Fatal("Has(mnt) = true after Unmount")
	}
	if reg.Unmount("mnt") {
		t.Fatal("second Unmount(mnt) = true, want false")
	}
}

func TestResolve_LongestPrefix(t *testing.T) {
	reg := mount.NewRegistry()
	reg.Mount("a/b", "T1", "x", 0)
	reg.Mount("a", "T2", "y", 0)

	mountID, remainder, err := mount.Resolve(reg, "a/b/c/d")
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if mountID != "a/b" {
		t.Fatalf("mountID = %q, want %q", mountID, "a/b")
	}
	if remainder != "c/d" {
		t.Fatalf("remainder = %q, want %q", remainder, "c/d")
	}
}

func TestResolve_NoRemainder(t *testing.T) {
	reg := mount.NewRegistry()
	reg.Mount("mnt", "T1", "x", 0)

	mountID, remainder, err := mount.Resolve(reg, "mnt")
	if err != nil {
		t.Fatalf("Resolve error = %v", err)
	}
	if mountID != "mnt" || remainder != "" {
		t.Fatalf("got (%q, %q), want (\"mnt\", \"\")", mountID, remainder)
	}
}

func TestResolve_Unmounted(t *testing.T) {
	reg := mount.NewRegistry()
	_, _, err := mount.Resolve(reg, "nope/path")
	if !errors.Is(err, mount.ErrUnmountedPath) {
		t.Fatalf("err = %v, want ErrUnmountedPath", err)
	}
}

func TestResolve_EmptyPath(t *testing.T) {
	reg := mount.NewRegistry()
	_, _, err := mount.Resolve(reg, "")
	if !errors.Is(err, mount.ErrEmptyPath) {
		t.Fatalf("err = %v, want ErrEmptyPath", err)
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := mount.Fingerprint("mnt")
	b := mount.Fingerprint("mnt")
	if a != b {
		t.Fatalf("Fingerprint not deterministic: %q vs %q", a, b)
	}
	if mount.Fingerprint("other") == a {
		t.Fatal("Fingerprint collision between distinct ids")
	}
}
