package session

import (
	"sync"
	"time"
)

// Replica is a non-authoritative, eventually-consistent view of a session.
// It applies versioned snapshots from the authority and rejects anything out
// of order or duplicated; it never invents a mutation of its own.
type Replica struct {
	mu sync.RWMutex

	lastServerSeq uint64
	lastSwitchSeq uint64
	snap          Snapshot
	synced        bool
}

func NewReplica() *Replica {
	return &Replica{}
}

// Apply installs a snapshot broadcast. Returns false when the broadcast is
// stale (server sequence or turn-switch sequence went backwards) and was
// ignored.
func (r *Replica) Apply(snap Snapshot, serverSeq uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.synced && serverSeq <= r.lastServerSeq {
		return false
	}
	if r.synced && snap.SwitchSeq < r.lastSwitchSeq {
		return false
	}
	r.lastServerSeq = serverSeq
	r.lastSwitchSeq = snap.SwitchSeq
	r.snap = snap
	r.synced = true
	return true
}

// State returns the last applied snapshot.
func (r *Replica) State() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snap, r.synced
}

// Remaining recomputes the countdown from the authority's wall-clock
// deadline, so a replica that restarted or lagged never gains free time.
func (r *Replica) Remaining(now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.synced || r.snap.DeadlineMs == 0 {
		return 0
	}
	d := time.UnixMilli(r.snap.DeadlineMs).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
