package contextengine

import (
	"hash/fnv"
	"sync"
)

// stripedLocks gives per-key mutual exclusion over a fixed number of
// buckets, the same trick the teacher's cache layer uses to avoid a
// thundering herd of concurrent recomputations on the same resolved-context
// key without paying for one mutex per key.
type stripedLocks struct {
	locks []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	if n <= 0 {
		n = 64
	}
	return &stripedLocks{locks: make([]sync.Mutex, n)}
}

func (s *stripedLocks) bucket(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

func (s *stripedLocks) Lock(key string)   { s.bucket(key).Lock() }
func (s *stripedLocks) Unlock(key string) { s.bucket(key).Unlock() }
