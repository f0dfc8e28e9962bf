package txlifecycle

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RecentSubmissions remembers hashes broadcast in the recent past. The
// replacement engine consults it after a broadcast: if the new hash was
// already in the candidate set, the submission is a duplicate of something
// already in flight and the engine notes it (but still proceeds, since the
// record now matches what is on the wire).
type RecentSubmissions struct {
	mu   sync.RWMutex
	seen map[common.Hash]time.Time

	// ttl is how long a hash counts as recent (0 means forever)
	ttl time.Duration

	stopOnce sync.Once
	stopChan chan struct{}
}

// NewRecentSubmissions creates a tracker with the given TTL. A background
// janitor evicts expired entries; call Close to stop it.
func NewRecentSubmissions(ttl time.Duration) *RecentSubmissions {
	r := &RecentSubmissions{
		seen:     map[common.Hash]time.Time{},
		ttl:      ttl,
		stopChan: make(chan struct{}),
	}
	if ttl > 0 {
		go r.janitor()
	}
	return r
}

// Mark records a hash as recently submitted. It reports whether the hash was
// already in the recent set.
func (r *RecentSubmissions) Mark(hash common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, existed := r.seen[hash]
	if existed && r.ttl > 0 && time.Since(r.seen[hash]) > r.ttl {
		existed = false
	}
	r.seen[hash] = time.Now()
	return existed
}

// Seen reports whether the hash is in the recent set.
func (r *RecentSubmissions) Seen(hash common.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at, ok := r.seen[hash]
	if !ok {
		return false
	}
	if r.ttl > 0 && time.Since(at) > r.ttl {
		return false
	}
	return true
}

// Close stops the janitor goroutine. Safe to call more than once.
func (r *RecentSubmissions) Close() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *RecentSubmissions) janitor() {
	interval := r.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.evictExpired()
		}
	}
}

func (r *RecentSubmissions) evictExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-r.ttl)
	for hash, at := range r.seen {
		if at.Before(cutoff) {
			delete(r.seen, hash)
		}
	}
}
