package mount

import "strings"

// Resolve splits virtualPath into (mount id, remainder) by greedy
// longest-prefix match against reg. Returns ErrEmptyPath for the empty
// path and ErrUnmountedPath if no prefix of virtualPath is a mounted id.
func Resolve(reg *Registry, virtualPath Path) (mountID ID, remainder Path, err error) {
	if virtualPath == "" {
		return "", "", ErrEmptyPath
	}

	segments := strings.Split(string(virtualPath), "/")
	for i := len(segments); i >= 1; i-- {
		candidate := ID(strings.Join(segments[:i], "/"))
		if reg.Has(candidate) {
			return candidate, Path(strings.Join(segments[i:], "/")), nil
		}
	}

	return "", "", ErrUnmountedPath
}
