package importer

import (
	"sync"
	"time"
)

// EntityType selects which identity space a registry operation works in.
type EntityType string

const (
	Posts    EntityType = "post"
	Comments EntityType = "comment"
	Terms    EntityType = "term"
	Users    EntityType = "user"
)

var entityTypes = []EntityType{Posts, Comments, Terms, Users}

// Registry answers "have I already created the target-side counterpart of old
// identity X (or natural key K)?" in O(1) and records new mappings. It lives
// for exactly one import run. Writes are guarded so the attachment path and
// prefill may touch it from more than one goroutine.
type Registry struct {
	mu      sync.RWMutex
	ids     map[EntityType]map[int64]int64  // old id -> new id
	keys    map[EntityType]map[string]int64 // natural key -> new id
	missing map[EntityType]map[string]bool  // lazy-mode negative cache
}

func NewRegistry() *Registry {
	r := &Registry{
		ids:     make(map[EntityType]map[int64]int64, len(entityTypes)),
		keys:    make(map[EntityType]map[string]int64, len(entityTypes)),
		missing: make(map[EntityType]map[string]bool, len(entityTypes)),
	}
	for _, t := range entityTypes {
		r.ids[t] = make(map[int64]int64)
		r.keys[t] = make(map[string]int64)
		r.missing[t] = make(map[string]bool)
	}
	return r
}

// MapOld returns the new identity recorded for an old identity.
func (r *Registry) MapOld(t EntityType, oldID int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[t][oldID]
	return id, ok
}

// RecordMapping records old -> new. A second encounter of the same old
// identity is a no-op; the first mapping wins.
func (r *Registry) RecordMapping(t EntityType, oldID, newID int64) {
	if oldID == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[t][oldID]; !ok {
		r.ids[t][oldID] = newID
	}
}

// ByKey returns the new identity recorded under a natural key.
func (r *Registry) ByKey(t EntityType, key string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.keys[t][key]
	return id, ok
}

// RecordKey records a natural key -> new identity entry.
func (r *Registry) RecordKey(t EntityType, key string, newID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[t][key] = newID
	delete(r.missing[t], key)
}

// SeedKeys bulk-loads natural keys, used by prefill.
func (r *Registry) SeedKeys(t EntityType, keys map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, id := range keys {
		r.keys[t][k] = id
	}
}

// MarkMissing caches a confirmed-absent natural key so lazy mode asks the
// store at most once per distinct key.
func (r *Registry) MarkMissing(t EntityType, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missing[t][key] = true
}

// Missing reports whether a key was already confirmed absent.
func (r *Registry) Missing(t EntityType, key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.missing[t][key]
}

// TermKey builds the natural key of a term.
func TermKey(taxonomy, slug string) string {
	return taxonomy + "\x00" + slug
}

// CommentFingerprint builds the duplicate-detection key of a comment. It is a
// heuristic fingerprint, not a strong identity.
func CommentFingerprint(authorName string, date time.Time) string {
	return authorName + "\x00" + date.UTC().Format("2006-01-02 15:04:05")
}
