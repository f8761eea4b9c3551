package storage

import (
	"errors"

	"github.com/tailored-agentic-units/tomkv/mount"
)

// ErrUnmountedPath aliases mount.ErrUnmountedPath at the façade boundary.
var ErrUnmountedPath = mount.ErrUnmountedPath

// ErrDecodeValue wraps a key/mapped decode failure encountered while
// reading a document leaf.
var ErrDecodeValue = errors.New("storage: value decode failed")
