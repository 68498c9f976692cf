package market

import (
	"sync"
	"time"

	"github.com/obsidian-labs/marketdata-pipeline/internal/log"
	"github.com/obsidian-labs/marketdata-pipeline/internal/object"
)

// DefaultFetchDeadline bounds how long a snapshot request may stay pending
// before it is considered lost and re-issued (SPEC_FULL.md §C.2).
const DefaultFetchDeadline = 10 * time.Second

type pendingEntry struct {
	requestedAt time.Time
}

// Market is the symbol -> Book registry plus the snapshot-pending flag and
// replay queue described in spec §4.3. The owning processor is its single
// writer; reads (e.g. from HTTP handlers) take the read side of mu.
type Market struct {
	mu            sync.RWMutex
	books         map[string]*Book
	pending       map[string]pendingEntry
	replay        map[string][]*object.OrderbookUpdate
	FetchDeadline time.Duration
}

// NewMarket constructs an empty registry.
func NewMarket() *Market {
	return &Market{
		books:         make(map[string]*Book),
		pending:       make(map[string]pendingEntry),
		replay:        make(map[string][]*object.OrderbookUpdate),
		FetchDeadline: DefaultFetchDeadline,
	}
}

// Get returns the book for symbol, if one exists.
func (m *Market) Get(symbol string) (*Book, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[symbol]
	return b, ok
}

// Set installs book, replacing any existing entry for its symbol.
func (m *Market) Set(b *Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.Symbol] = b
}

// Clear removes the book for symbol, if any, and drops its replay queue and
// pending flag.
func (m *Market) Clear(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.books, symbol)
	delete(m.pending, symbol)
	delete(m.replay, symbol)
}

// IsPending reports whether a snapshot request is outstanding for symbol.
// A pending flag older than FetchDeadline is treated as expired (and
// cleared) so a stuck fetch does not wedge the symbol forever.
func (m *Market) IsPending(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[symbol]
	if !ok {
		return false
	}
	deadline := m.FetchDeadline
	if deadline <= 0 {
		deadline = DefaultFetchDeadline
	}
	if time.Since(entry.requestedAt) > deadline {
		log.Market.Warnf("%s: snapshot fetch exceeded deadline %s, clearing pending flag", symbol, deadline)
		delete(m.pending, symbol)
		return false
	}
	return true
}

// SetPending marks symbol as having an outstanding snapshot request.
func (m *Market) SetPending(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[symbol] = pendingEntry{requestedAt: time.Now()}
}

// ClearPending clears the pending flag for symbol.
func (m *Market) ClearPending(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, symbol)
}

// QueueUpdate appends u to the per-symbol replay queue, used while a
// snapshot fetch is outstanding.
func (m *Market) QueueUpdate(symbol string, u *object.OrderbookUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replay[symbol] = append(m.replay[symbol], u)
}

// TakeReplayQueue returns and clears the replay queue for symbol. The
// underlying slice capacity is preserved across the reset to avoid
// reallocating on every resync (mirrors the teacher's FlushBuffer idiom).
func (m *Market) TakeReplayQueue(symbol string) []*object.OrderbookUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.replay[symbol]
	if len(q) == 0 {
		return nil
	}
	out := make([]*object.OrderbookUpdate, len(q))
	copy(out, q)
	m.replay[symbol] = q[:0]
	return out
}

// Symbols returns the set of currently tracked symbols.
func (m *Market) Symbols() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.books))
	for s := range m.books {
		out = append(out, s)
	}
	return out
}
