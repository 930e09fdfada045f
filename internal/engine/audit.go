package engine

import (
	"sync"

	"github.com/lethehq/lethe/pkg/types"
)

// AuditLog is an append-only sequence of rule-application events. Entry order
// matches evaluation order; past entries are never mutated.
//
// An optional observer receives each entry as it is appended, which is how the
// HTTP server streams audit events to websocket clients.
type AuditLog struct {
	mu       sync.RWMutex
	entries  []types.AuditEntry
	observer func(types.AuditEntry)
}

// NewAuditLog returns an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// SetObserver installs a callback invoked synchronously on every append.
// Pass nil to remove the observer. The observer must not call back into the log.
func (l *AuditLog) SetObserver(fn func(types.AuditEntry)) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// Append adds an entry to the log.
func (l *AuditLog) Append(e types.AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	observer := l.observer
	l.mu.Unlock()

	if observer != nil {
		observer(e)
	}
}

// Entries returns a copy of all entries in append order.
func (l *AuditLog) Entries() []types.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
