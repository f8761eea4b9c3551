// Package mount implements the mount registry and virtual path resolver: a
// lock-free singly linked stack of mount records per mount id, and greedy
// longest-prefix resolution of virtual paths against that registry.
package mount

// ID is the representation shared by mount ids and tom ids; the two id
// spaces are always the same underlying string type.
type ID string

// Path is a '/'-separated virtual or real sub-path.
type Path string
