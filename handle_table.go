package smbc

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cloudsoda/smbc/internal/smb2"
)

// HandleID names an open file or directory within its session. IDs are
// never reused.
type HandleID uint64

type handle struct {
	id     HandleID
	fd     smb2.FileId
	name   string
	closed atomic.Bool
}

// handleTable tracks the handles open on one share. A slot is reserved
// before CREATE is sent so the local cap is enforced without any traffic,
// and committed only once the server returned a FileId.
type handleTable struct {
	mu      sync.Mutex
	open    map[HandleID]*handle
	pending int
	limit   int // 0 is unlimited

	metrics *Metrics
}

func newHandleTable(limit int, metrics *Metrics) *handleTable {
	return &handleTable{
		open:    make(map[HandleID]*handle),
		limit:   limit,
		metrics: metrics,
	}
}

func (t *handleTable) reserve() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit > 0 && len(t.open)+t.pending >= t.limit {
		return ErrTooManyOpenFiles
	}
	t.pending++
	return nil
}

// release gives back a reservation whose CREATE failed.
func (t *handleTable) release() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending--
}

func (t *handleTable) commit(h *handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending--
	t.open[h.id] = h
	t.metrics.handleOpened()
}

// remove reports whether id was present.
func (t *handleTable) remove(id HandleID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.open[id]; !ok {
		return false
	}
	delete(t.open, id)
	t.metrics.handleClosed()
	return true
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.open)
}

// drain removes every handle and marks it closed, so later Close calls on
// the owning File or Dir are no-ops.
func (t *handleTable) drain() []*handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	hs := t.sortedLocked()
	for _, h := range hs {
		h.closed.Store(true)
		delete(t.open, h.id)
		t.metrics.handleClosed()
	}
	return hs
}

func (t *handleTable) sortedLocked() []*handle {
	hs := make([]*handle, 0, len(t.open))
	for _, h := range t.open {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].id < hs[j].id })
	return hs
}
