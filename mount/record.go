package mount

import (
	"sync/atomic"

	"github.com/tailored-agentic-units/tomkv/backoff"
)

// Record is a mount record: immutable after publication. Linked via next
// into a per-mount-id lock-free stack.
type Record struct {
	TomID    ID
	SubPath  Path
	Priority int

	next atomic.Pointer[Record]
}

// stack is the atomic head of one mount id's lock-free linked list.
type stack struct {
	head atomic.Pointer[Record]
}

// publish CAS-prepends rec onto the stack, retrying with backoff on
// contention.
func (s *stack) publish(rec *Record) {
	b := backoff.Default()
	for {
		head := s.head.Load()
		rec.next.Store(head)
		if s.head.CompareAndSwap(head, rec) {
			return
		}
		b.Wait()
	}
}

// snapshot returns every record reachable from the head at the moment of
// the load, linearizable with the publishing CAS.
func (s *stack) snapshot() []Record {
	var out []Record
	for n := s.head.Load(); n != nil; n = n.next.Load() {
		out = append(out, Record{TomID: n.TomID, SubPath: n.SubPath, Priority: n.Priority})
	}
	return out
}
