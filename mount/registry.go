package mount

import (
	"github.com/tailored-agentic-units/tomkv/chm"
	"github.com/zeebo/blake3"
)

// Registry is the mount table: mount id -> lock-free stack of mount
// records, built on top of the segmented concurrent hash map.
type Registry struct {
	table *chm.Map[ID, *stack]
}

// RegistryOption tunes the concurrent map backing a Registry.
type RegistryOption func(*registrySettings)

type registrySettings struct {
	growthFactor    float64
	initialSegments int
}

// WithGrowthFactor overrides the mount table's rehash load factor. Values
// <= 0 keep the map's default.
func WithGrowthFactor(f float64) RegistryOption {
	return func(s *registrySettings) { s.growthFactor = f }
}

// WithInitialSegments overrides how many segments the mount table activates
// eagerly. Values < 1 keep the map's default.
func WithInitialSegments(n int) RegistryOption {
	return func(s *registrySettings) { s.initialSegments = n }
}

// NewRegistry constructs an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	settings := registrySettings{}
	for _, opt := range opts {
		opt(&settings)
	}

	var chmOpts []chm.Option[ID, *stack]
	if settings.growthFactor > 0 {
		chmOpts = append(chmOpts, chm.WithGrowthFactor[ID, *stack](settings.growthFactor))
	}
	if settings.initialSegments >= 1 {
		chmOpts = append(chmOpts, chm.WithInitialSegments[ID, *stack](settings.initialSegments))
	}

	return &Registry{table: chm.New[ID, *stack](chm.NewStringHasher[ID](), chmOpts...)}
}

// Mount publishes a new mount record under mountID. Multiple calls with
// the same mountID accumulate records; they do not replace each other.
func (r *Registry) Mount(mountID ID, tomID ID, subPath Path, priority int) {
	s := r.stackFor(mountID)
	s.publish(&Record{TomID: tomID, SubPath: subPath, Priority: priority})
}

// Unmount removes every record under mountID and reports whether the mount
// id was present. Callers must ensure no in-flight façade operation
// references mountID while unmounting; this core performs no lock-free
// reclamation of in-flight readers.
func (r *Registry) Unmount(mountID ID) bool {
	return r.table.Erase(mountID)
}

// Has reports whether mountID has at least one published record.
func (r *Registry) Has(mountID ID) bool {
	acc, found := r.table.Find(mountID)
	if found {
		acc.Release()
	}
	return found
}

// Records returns the raw list of (tom id, sub-path, priority) records
// under mountID in list order, or nil if mountID is not mounted.
func (r *Registry) Records(mountID ID) []Record {
	acc, found := r.table.Find(mountID)
	if !found {
		return nil
	}
	defer acc.Release()
	return acc.Value().snapshot()
}

func (r *Registry) stackFor(mountID ID) *stack {
	acc, _ := r.table.Emplace(mountID, &stack{}, false)
	defer acc.Release()
	return acc.Value()
}

// fingerprintDomainKey separates mount-id fingerprints from any other
// blake3-keyed domain in this module (tomstore's on-disk sharding key is a
// distinct domain). ASCII, zero-padded to 32 bytes.
var fingerprintDomainKey = [32]byte{
	't', 'o', 'm', 'k', 'v', '.', 'm', 'o', 'u', 'n', 't', '.',
	'f', 'i', 'n', 'g', 'e', 'r', 'p', 'r', 'i', 'n', 't',
}

// Fingerprint returns a short, domain-separated blake3 digest of a mount or
// tom id, suitable for structured log fields that should not carry the raw
// identifier verbatim.
func Fingerprint(id ID) string {
	h, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("mount: blake3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(id))
	sum := h.Sum(nil)
	const shown = 8
	if len(sum) > shown {
		sum = sum[:shown]
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
