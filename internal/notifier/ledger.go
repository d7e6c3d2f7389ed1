package notifier

import (
	"sync"
	"time"

	"hatsubai/internal/release"
)

// Ledger remembers which releases were announced during this process's
// lifetime. A nil *Ledger remembers nothing, which turns deduplication off.
type Ledger struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

func NewLedger() *Ledger {
	return &Ledger{sent: make(map[string]time.Time)}
}

func (l *Ledger) Seen(rec release.Record) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.sent[rec.Key()]
	return ok
}

func (l *Ledger) Mark(rec release.Record, at time.Time) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.sent[rec.Key()] = at
	l.mu.Unlock()
}

func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sent)
}
