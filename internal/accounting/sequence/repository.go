package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/mandir-erp/mandir-ledger/internal/platform/db"
)

// PGStore keeps counters in entry_sequences. The upsert takes the bucket row lock,
// which is held until the caller's transaction ends. A new bucket starts after the
// highest code already present for it, so legacy entries are never reissued.
type PGStore struct {
	q db.Querier
}

// NewPGStore binds the store to a pool or transaction.
func NewPGStore(q db.Querier) *PGStore {
	return &PGStore{q: q}
}

const nextValueSQL = `INSERT INTO entry_sequences (prefix, entrytype_id, year, month, last_value)
VALUES ($1, $2, $3, $4,
	COALESCE((SELECT MAX(substring(number FROM 8)::int) FROM entries WHERE number LIKE $5), 0) + 1)
ON CONFLICT (prefix, entrytype_id, year, month)
DO UPDATE SET last_value = entry_sequences.last_value + 1, updated_at = NOW()
RETURNING last_value`

// NextValue implements Store.
func (s *PGStore) NextValue(ctx context.Context, b Bucket) (int64, error) {
	pattern := fmt.Sprintf("%s%02d%02d%%", b.Prefix, b.Year%100, b.Month)
	var n int64
	if err := s.q.QueryRow(ctx, nextValueSQL, b.Prefix, b.EntryType, b.Year, b.Month, pattern).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// CodeTaken implements Store.
func (s *PGStore) CodeTaken(ctx context.Context, code string) (bool, error) {
	var taken bool
	err := s.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM entries WHERE number=$1)`, code).Scan(&taken)
	return taken, err
}

// MemoryStore is an in-process Store used by tests and fakes.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Bucket]int64
	taken    map[string]bool
	// Err, when set, is returned from NextValue.
	Err error
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Bucket]int64), taken: make(map[string]bool)}
}

// NextValue implements Store.
func (s *MemoryStore) NextValue(_ context.Context, b Bucket) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.counters[b]++
	return s.counters[b], nil
}

// CodeTaken implements Store.
func (s *MemoryStore) CodeTaken(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taken[code], nil
}

// Reserve marks code as used, as if an entry already carried it.
func (s *MemoryStore) Reserve(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taken[code] = true
}
