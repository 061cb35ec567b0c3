package ingest

import "sync"

// Tracker holds the identities that are claimed (queued or in progress) and
// done (finished with any outcome). A key is claimed at most once until it
// reaches done, and a done key is never reclaimed unless explicitly released.
//
// A path can also be pinned while an abandoned processor call for it is still
// running. No identity with a pinned path can be claimed, whatever was
// released or forgotten in the meantime.
type Tracker struct {
	mu      sync.Mutex
	claimed map[string]string
	done    map[string]doneEntry
	pinned  map[string]int
}

type doneEntry struct {
	path    string
	outcome Outcome
}

// TrackerStats summarizes tracker contents.
type TrackerStats struct {
	Claimed  int
	Done     int
	Pinned   int
	Outcomes map[Outcome]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		claimed: make(map[string]string),
		done:    make(map[string]doneEntry),
		pinned:  make(map[string]int),
	}
}

// TryClaim reserves id for processing. It returns false without changing
// state when id is already claimed or done, or its path is pinned.
func (t *Tracker) TryClaim(id FileIdentity) bool {
	key := id.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pinned[id.Path] > 0 {
		return false
	}
	if _, ok := t.claimed[key]; ok {
		return false
	}
	if _, ok := t.done[key]; ok {
		return false
	}
	t.claimed[key] = id.Path
	return true
}

// MarkDone moves id from claimed to done. Repeated calls keep the first
// outcome. Marking an unclaimed id records it as done so later scans skip it.
func (t *Tracker) MarkDone(id FileIdentity, outcome Outcome) {
	key := id.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.done[key]; ok {
		return
	}
	delete(t.claimed, key)
	t.done[key] = doneEntry{path: id.Path, outcome: outcome}
}

// Release drops a claim without completing it so a later scan can claim the
// identity again. Done entries are not affected.
func (t *Tracker) Release(id FileIdentity) bool {
	key := id.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.claimed[key]; !ok {
		return false
	}
	delete(t.claimed, key)
	return true
}

// ReleaseFailed removes every failed entry from done, making those identities
// eligible again. Returns the number released.
func (t *Tracker) ReleaseFailed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	released := 0
	for key, entry := range t.done {
		if entry.outcome == OutcomeFailed {
			delete(t.done, key)
			released++
		}
	}
	return released
}

// Forget removes all done entries for path regardless of outcome. Claimed
// entries are left alone so an in-flight item is never scheduled twice.
func (t *Tracker) Forget(path string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for key, entry := range t.done {
		if entry.path == path {
			delete(t.done, key)
			removed++
		}
	}
	return removed
}

// Pin blocks new claims on path until a matching Unpin.
func (t *Tracker) Pin(path string) {
	t.mu.Lock()
	t.pinned[path]++
	t.mu.Unlock()
}

// Unpin undoes one Pin.
func (t *Tracker) Unpin(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pinned[path] <= 1 {
		delete(t.pinned, path)
		return
	}
	t.pinned[path]--
}

// Seed records keys as done with the given outcome, typically from the ledger
// at startup. Keys that are already known are left unchanged.
func (t *Tracker) Seed(keys []string, outcome Outcome) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := 0
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := t.done[key]; ok {
			continue
		}
		if _, ok := t.claimed[key]; ok {
			continue
		}
		t.done[key] = doneEntry{path: PathFromKey(key), outcome: outcome}
		added++
	}
	return added
}

// IsClaimed reports whether id is currently claimed.
func (t *Tracker) IsClaimed(id FileIdentity) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.claimed[id.Key()]
	return ok
}

// OutcomeOf returns the recorded outcome for a done identity.
func (t *Tracker) OutcomeOf(id FileIdentity) (Outcome, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.done[id.Key()]
	return entry.outcome, ok
}

// Known reports whether id is claimed, done, or pinned.
func (t *Tracker) Known(id FileIdentity) bool {
	key := id.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pinned[id.Path] > 0 {
		return true
	}
	if _, ok := t.claimed[key]; ok {
		return true
	}
	_, ok := t.done[key]
	return ok
}

// Stats returns a snapshot of tracker counts.
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := TrackerStats{
		Claimed:  len(t.claimed),
		Done:     len(t.done),
		Pinned:   len(t.pinned),
		Outcomes: make(map[Outcome]int, 4),
	}
	for _, entry := range t.done {
		stats.Outcomes[entry.outcome]++
	}
	return stats
}
