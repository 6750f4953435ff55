// Package sequence allocates human readable entry codes of the form
// PREFIX + YY + MM + 5-digit counter, one counter per (prefix, entry type, year, month).
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mandir-erp/mandir-ledger/internal/accounting/shared"
)

const (
	// MaxAttempts bounds collision retries for a single allocation.
	MaxAttempts = 5
	// MaxCounter is the largest value representable by the 5-digit counter.
	MaxCounter = 99999
	codeLength = 3 + 2 + 2 + 5
)

// ErrCounterOverflow indicates the bucket exhausted its 5-digit space.
var ErrCounterOverflow = errors.New("sequence: counter overflow")

// Bucket identifies one independent counter.
type Bucket struct {
	Prefix    string
	EntryType int
	Year      int
	Month     int
}

// NewBucket derives the bucket for a date.
func NewBucket(prefix string, entryType int, date time.Time) Bucket {
	return Bucket{Prefix: prefix, EntryType: entryType, Year: date.Year(), Month: int(date.Month())}
}

func (b Bucket) String() string {
	return fmt.Sprintf("%s:%d:%04d-%02d", b.Prefix, b.EntryType, b.Year, b.Month)
}

// Store is the persistence contract. NextValue must atomically increment the bucket
// counter and keep it locked until the surrounding transaction ends.
type Store interface {
	NextValue(ctx context.Context, bucket Bucket) (int64, error)
	CodeTaken(ctx context.Context, code string) (bool, error)
}

// Format renders a code.
func Format(prefix string, date time.Time, n int64) string {
	return fmt.Sprintf("%s%02d%02d%05d", prefix, date.Year()%100, int(date.Month()), n)
}

// Code is a parsed entry code.
type Code struct {
	Prefix  string
	Year    int
	Month   int
	Counter int64
}

// Parse splits a code produced by Format.
func Parse(code string) (Code, error) {
	if len(code) != codeLength {
		return Code{}, fmt.Errorf("sequence: malformed code %q", code)
	}
	yy, err := strconv.Atoi(code[3:5])
	if err != nil {
		return Code{}, fmt.Errorf("sequence: malformed year in %q", code)
	}
	mm, err := strconv.Atoi(code[5:7])
	if err != nil || mm < 1 || mm > 12 {
		return Code{}, fmt.Errorf("sequence: malformed month in %q", code)
	}
	n, err := strconv.ParseInt(code[7:], 10, 64)
	if err != nil {
		return Code{}, fmt.Errorf("sequence: malformed counter in %q", code)
	}
	return Code{Prefix: code[:3], Year: 2000 + yy, Month: mm, Counter: n}, nil
}

// Generate returns the next unused code for the bucket.
func Generate(ctx context.Context, store Store, prefix string, entryType int, date time.Time) (string, error) {
	if len(prefix) != 3 {
		return "", fmt.Errorf("%w: prefix %q must have 3 letters", shared.ErrValidation, prefix)
	}
	bucket := NewBucket(prefix, entryType, date)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		n, err := store.NextValue(ctx, bucket)
		if err != nil {
			return "", shared.Persistence("sequence next value", err)
		}
		if n > MaxCounter {
			return "", shared.Persistence("sequence "+bucket.String(), ErrCounterOverflow)
		}
		code := Format(prefix, date, n)
		taken, err := store.CodeTaken(ctx, code)
		if err != nil {
			return "", shared.Persistence("sequence verify", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", exhausted(bucket)
}

// Allocate generates a code and hands it to insert. When insert reports
// shared.ErrSequenceCollision the counter is advanced and the insert retried.
func Allocate(ctx context.Context, store Store, prefix string, entryType int, date time.Time, insert func(code string) error) (string, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		code, err := Generate(ctx, store, prefix, entryType, date)
		if err != nil {
			return "", err
		}
		err = insert(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, shared.ErrSequenceCollision) {
			return "", err
		}
	}
	return "", exhausted(NewBucket(prefix, entryType, date))
}

func exhausted(bucket Bucket) error {
	return &shared.PersistenceError{
		Op:  "sequence " + bucket.String(),
		Err: fmt.Errorf("%w after %d attempts", shared.ErrSequenceCollision, MaxAttempts),
	}
}
