// lockmap is a sharded lock map.
//
// The API is as if LockMap consisted of a lock for every possible uint64 key
// (an inode number, or a block number); LockMap.Acquire(k) acquires the lock
// associated with k and LockMap.Release(k) releases it.
//
// Only keys that are held or waited on have state. Shard i is responsible for
// all keys k with k % NSHARD = i.
package lockmap

import (
	"sync"
)

const NSHARD uint64 = 43

type lockState struct {
	held    bool
	waiters uint64
}

type lockShard struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state map[uint64]*lockState
}

func mkLockShard() *lockShard {
	s := &lockShard{state: make(map[uint64]*lockState)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *lockShard) acquire(k uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[k]
	if !ok {
		st = &lockState{}
		s.state[k] = st
	}
	for st.held {
		st.waiters++
		s.cond.Wait()
		st.waiters--
	}
	st.held = true
}

func (s *lockShard) release(k uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[k]
	if !ok || !st.held {
		panic("lockmap: release of unheld lock")
	}
	st.held = false
	if st.waiters > 0 {
		// waiters on other keys of this shard recheck and sleep again
		s.cond.Broadcast()
	} else {
		delete(s.state, k)
	}
}

type LockMap struct {
	shards []*lockShard
}

func MkLockMap() *LockMap {
	var shards []*lockShard
	for i := uint64(0); i < NSHARD; i++ {
		shards = append(shards, mkLockShard())
	}
	return &LockMap{shards: shards}
}

func (lmap *LockMap) Acquire(k uint64) {
	lmap.shards[k%NSHARD].acquire(k)
}

func (lmap *LockMap) Release(k uint64) {
	lmap.shards[k%NSHARD].release(k)
}

// AcquirePair locks two keys in ascending order; equal keys are locked once.
func (lmap *LockMap) AcquirePair(k1, k2 uint64) {
	if k1 == k2 {
		lmap.Acquire(k1)
		return
	}
	if k2 < k1 {
		k1, k2 = k2, k1
	}
	lmap.Acquire(k1)
	lmap.Acquire(k2)
}

func (lmap *LockMap) ReleasePair(k1, k2 uint64) {
	lmap.Release(k1)
	if k1 != k2 {
		lmap.Release(k2)
	}
}
