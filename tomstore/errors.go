package tomstore

import "errors"

// ErrTomNotFound is returned by FileSystem.Read when the backing file for a
// tom id does not exist. The coordinator treats this as "create a fresh
// tom, written with a single empty tom/root subtree", not as a resource
// error.
var ErrTomNotFound = errors.New("tomstore: tom not found")

// ErrFileSystem wraps any other filesystem I/O failure. Fatal to the
// current operation.
var ErrFileSystem = errors.New("tomstore: filesystem error")

// ErrDecodeFailed wraps an XML parse failure. Fatal to the current
// operation.
var ErrDecodeFailed = errors.New("tomstore: document decode failed")

// ErrEncodeFailed wraps an XML serialization failure encountered while
// flushing. Fatal to the current operation.
var ErrEncodeFailed = errors.New("tomstore: document encode failed")
