package services

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CommitFunc persists one auto-saved value.
type CommitFunc func(ctx context.Context, value string) error

const (
	// DefaultQuietPeriod is how long after the last keystroke a free-text
	// edit waits before committing. Decision toggles are never debounced;
	// only rationale/notes fields go through the coordinator.
	DefaultQuietPeriod = 500 * time.Millisecond
	// DefaultRetryBackoff is the wait before the single commit retry.
	DefaultRetryBackoff = time.Second
)

type autosaveEntry struct {
	timer     *time.Timer
	value     string
	commit    CommitFunc
	gen       uint64 // key generation at Schedule time
	committed bool   // single-commit latch: timer fire vs FlushAll
}

// AutoSaveCoordinator coalesces rapid free-text edits into one commit per
// key. A newer Schedule for the same key cancels the older pending commit
// outright, so an out-of-order completion can never clobber a newer value.
type AutoSaveCoordinator struct {
	mu      sync.Mutex
	quiet   time.Duration
	backoff time.Duration
	pending map[string]*autosaveEntry
	unsaved map[string]string // key -> value that failed both attempts
	gen     map[string]uint64 // bumped on every Schedule; stale retries check it
	metrics *WorkflowMetrics
}

func NewAutoSaveCoordinator(quiet, backoff time.Duration) *AutoSaveCoordinator {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if backoff < 0 {
		backoff = DefaultRetryBackoff
	}
	return &AutoSaveCoordinator{
		quiet:   quiet,
		backoff: backoff,
		pending: make(map[string]*autosaveEntry),
		unsaved: make(map[string]string),
		gen:     make(map[string]uint64),
	}
}

// UseMetrics attaches a recorder; a nil recorder is a no-op.
func (c *AutoSaveCoordinator) UseMetrics(m *WorkflowMetrics) {
	c.metrics = m
}

// Schedule queues value for commit after the quiet period. Any pending
// commit for the same key is cancelled and replaced; different keys are
// independent.
func (c *AutoSaveCoordinator) Schedule(key string, value string, commit CommitFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.pending[key]; ok && !prev.committed {
		prev.timer.Stop()
		prev.committed = true // timer may already be racing; the latch wins
	}
	c.gen[key]++
	entry := &autosaveEntry{value: value, commit: commit, gen: c.gen[key]}
	entry.timer = time.AfterFunc(c.quiet, func() { c.fire(key, entry) })
	c.pending[key] = entry
}

// fire runs on timer expiry. The latch check under the mutex guarantees a
// concurrent FlushAll or Schedule has not already claimed the entry.
func (c *AutoSaveCoordinator) fire(key string, entry *autosaveEntry) {
	c.mu.Lock()
	if entry.committed || c.pending[key] != entry {
		c.mu.Unlock()
		return
	}
	entry.committed = true
	delete(c.pending, key)
	c.mu.Unlock()

	c.commitWithRetry(context.Background(), key, entry.value, entry.gen, entry.commit)
}

// FlushAll synchronously commits every pending value. Safe to call at any
// time, including mid-debounce: the per-entry latch prevents a concurrently
// firing timer from double-committing.
func (c *AutoSaveCoordinator) FlushAll(ctx context.Context) {
	c.mu.Lock()
	type flushItem struct {
		key   string
		value string
		gen   uint64
		fn    CommitFunc
	}
	items := make([]flushItem, 0, len(c.pending))
	for key, entry := range c.pending {
		if entry.committed {
			continue
		}
		entry.timer.Stop()
		entry.committed = true
		items = append(items, flushItem{key: key, value: entry.value, gen: entry.gen, fn: entry.commit})
	}
	c.pending = make(map[string]*autosaveEntry)
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].key < items[j].key })
	for _, item := range items {
		c.commitWithRetry(ctx, item.key, item.value, item.gen, item.fn)
	}
}

// commitWithRetry tries the commit, retries once after the backoff, and on a
// second failure records the key as unsaved rather than dropping the value.
// The retry is abandoned when a newer Schedule for the key arrived during
// the backoff: the key generation has moved on, so the held value is stale
// and must not reach the store.
func (c *AutoSaveCoordinator) commitWithRetry(ctx context.Context, key string, value string, gen uint64, commit CommitFunc) {
	if err := commit(ctx, value); err == nil {
		c.clearUnsaved(key)
		return
	}
	c.metrics.autosaveRetry()
	time.Sleep(c.backoff)
	if c.superseded(key, gen) {
		return
	}
	if err := commit(ctx, value); err == nil {
		c.clearUnsaved(key)
		return
	}
	c.metrics.autosaveFailure()
	c.mu.Lock()
	c.unsaved[key] = value
	c.mu.Unlock()
}

func (c *AutoSaveCoordinator) superseded(key string, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[key] != gen
}

func (c *AutoSaveCoordinator) clearUnsaved(key string) {
	c.mu.Lock()
	delete(c.unsaved, key)
	c.mu.Unlock()
}

// UnsavedKeys reports keys whose commits failed both attempts, sorted, so
// callers can surface a persistent unsaved-changes marker.
func (c *AutoSaveCoordinator) UnsavedKeys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.unsaved))
	for key := range c.unsaved {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// PendingCount reports how many keys currently await their quiet period.
func (c *AutoSaveCoordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
