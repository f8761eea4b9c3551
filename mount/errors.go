package mount

import "errors"

// ErrUnmountedPath is returned when a virtual path has no mount-id prefix
// in the registry.
var ErrUnmountedPath = errors.New("mount: virtual path is not mounted")

// ErrEmptyPath is returned by Resolve for the empty path, which is always
// invalid.
var ErrEmptyPath = errors.New("mount: virtual path is empty")
