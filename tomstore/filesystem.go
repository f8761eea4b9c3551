package tomstore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/tailored-agentic-units/tomkv/mount"
	"github.com/zeebo/blake3"
)

// FileSystem is the exists/write/delete primitive set backing tom
// lifecycle. Its default implementation uses an atomic
// temp-file-then-rename write pattern, adapted to compress the document
// body before every write.
type FileSystem interface {
	Exists(id mount.ID) (bool, error)
	Read(id mount.ID) ([]byte, error)
	Write(id mount.ID, data []byte) error
	Delete(id mount.ID) error
}

// CompressionTag names the on-disk compression algorithm. Every tom
// document is text/xml, so selection is a fixed config choice rather than
// a content-sniffing probe.
type CompressionTag string

const (
	CompressionZstd CompressionTag = "zstd"
	CompressionNone CompressionTag = "none"
)

// zstdEncoder and zstdDecoder are process-lifetime, safe for concurrent use,
// avoiding per-call encoder/decoder allocation.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("tomstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("tomstore: zstd decoder initialization failed: " + err.Error())
	}
}

// shardDomainKey is a distinct blake3 domain from mount.Fingerprint's, so
// the same tom id never produces the same digest for two different
// purposes.
var shardDomainKey = [32]byte{
	't', 'o', 'm', 'k', 'v', '.', 't', 'o', 'm', 's', 't', 'o', 'r', 'e', '.', 's', 'h', 'a', 'r', 'd',
}

// shardedName maps a tom id to a sharded on-disk file name
// (root/xx/yy/<hex>.tom), spreading files across two levels of
// subdirectories by hashed name so a single directory never accumulates
// every tom.
func shardedName(root string, id mount.ID) string {
	h, err := blake3.NewKeyed(shardDomainKey[:])
	if err != nil {
		panic("tomstore: blake3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(id))
	sum := h.Sum(nil)
	digest := hex.EncodeToString(sum)
	return filepath.Join(root, digest[:2], digest[2:4], digest+".tom")
}

type fileSystem struct {
	root        string
	compression CompressionTag
}

// NewFileSystem returns a FileSystem rooted at root, compressing document
// bodies with compression before every write. An empty or unrecognized
// compression defaults to CompressionZstd.
func NewFileSystem(root string, compression CompressionTag) FileSystem {
	if compression != CompressionZstd && compression != CompressionNone {
		compression = CompressionZstd
	}
	return &fileSystem{root: root, compression: compression}
}

func (fs *fileSystem) Exists(id mount.ID) (bool, error) {
	_, err := os.Stat(shardedName(fs.root, id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
}

func (fs *fileSystem) Read(id mount.ID) ([]byte, error) {
	stored, err := os.ReadFile(shardedName(fs.root, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTomNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}
	if fs.compression == CompressionNone {
		return stored, nil
	}
	data, err := zstdDecoder.DecodeAll(stored, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decompress: %v", ErrFileSystem, id, err)
	}
	return data, nil
}

func (fs *fileSystem) Write(id mount.ID, data []byte) error {
	path := shardedName(fs.root, id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}

	compressed := data
	if fs.compression == CompressionZstd {
		compressed = zstdEncoder.EncodeAll(data, nil)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(compressed); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}
	return nil
}

func (fs *fileSystem) Delete(id mount.ID) error {
	path := shardedName(fs.root, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", ErrFileSystem, id, err)
	}

	dir := filepath.Dir(path)
	for dir != fs.root {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
	return nil
}
