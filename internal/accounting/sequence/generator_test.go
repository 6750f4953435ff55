package sequence

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

func TestFormatAndParse(t *testing.T) {
	date := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	code := Format("REC", date, 1)
	require.Equal(t, "REC250100001", code)

	parsed, err := Parse(code)
	require.NoError(t, err)
	require.Equal(t, Code{Prefix: "REC", Year: 2025, Month: 1, Counter: 1}, parsed)

	_, err = Parse("REC2513000001")
	require.Error(t, err)
}

func TestGenerateResetsPerBucket(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	jan := time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC)

	first, err := Generate(ctx, store, "REC", 1, jan)
	require.NoError(t, err)
	second, err := Generate(ctx, store, "REC", 1, jan)
	require.NoError(t, err)
	other, err := Generate(ctx, store, "PAY", 2, jan)
	require.NoError(t, err)
	nextMonth, err := Generate(ctx, store, "REC", 1, feb)
	require.NoError(t, err)

	require.Equal(t, "REC250100001", first)
	require.Equal(t, "REC250100002", second)
	require.Equal(t, "PAY250100001", other)
	require.Equal(t, "REC250200001", nextMonth)
}

func TestGenerateConcurrentCallersGetContiguousCodes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	date := time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC)
	const callers = 64

	var wg sync.WaitGroup
	codes := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], errs[i] = Generate(ctx, store, "REC", 1, date)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	counters := make([]int, 0, callers)
	seen := make(map[string]bool, callers)
	for _, code := range codes {
		require.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
		parsed, err := Parse(code)
		require.NoError(t, err)
		counters = append(counters, int(parsed.Counter))
	}
	sort.Ints(counters)
	for i, n := range counters {
		require.Equal(t, i+1, n)
	}
}

func TestGenerateSkipsTakenCodes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	store.Reserve("JOR250300001")
	store.Reserve("JOR250300002")

	code, err := Generate(ctx, store, "JOR", 4, date)
	require.NoError(t, err)
	require.Equal(t, "JOR250300003", code)
}

func TestGenerateExhaustionIsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= MaxAttempts; i++ {
		store.Reserve(Format("JOR", date, i))
	}

	_, err := Generate(ctx, store, "JOR", 4, date)
	require.Error(t, err)
	require.Equal(t, shared.KindPersistence, shared.KindOf(err))
}

func TestGenerateStoreFailureAborts(t *testing.T) {
	store := NewMemoryStore()
	store.Err = errors.New("connection refused")
	_, err := Generate(context.Background(), store, "REC", 1, time.Now())
	require.Error(t, err)
	require.Equal(t, shared.KindPersistence, shared.KindOf(err))
}

func TestAllocateRetriesInsertCollision(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	date := time.Date(2025, time.April, 9, 0, 0, 0, 0, time.UTC)
	attempts := 0

	code, err := Allocate(ctx, store, "PAY", 2, date, func(code string) error {
		attempts++
		if attempts == 1 {
			return shared.ErrSequenceCollision
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Equal(t, "PAY250400002", code)

	_, err = Allocate(ctx, store, "PAY", 2, date, func(string) error { return shared.ErrUnbalanced })
	require.ErrorIs(t, err, shared.ErrUnbalanced)
}
