package docnum

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memorySeqStore struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func newMemorySeqStore() *memorySeqStore {
	return &memorySeqStore{seqs: make(map[string]int64)}
}

func (m *memorySeqStore) NextSeq(ctx context.Context, docType string, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s:%d", docType, year)
	m.seqs[key]++
	return m.seqs[key], nil
}

func TestNextFormat(t *testing.T) {
	gen := NewGenerator(newMemorySeqStore())
	gen.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	first, err := gen.Next(context.Background(), "GRN")
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-0001", first)

	second, err := gen.Next(context.Background(), "GRN")
	require.NoError(t, err)
	require.Equal(t, "GRN-2026-0002", second)

	other, err := gen.Next(context.Background(), "TRF")
	require.NoError(t, err)
	require.Equal(t, "TRF-2026-0001", other)
}

func TestNextRequiresDocType(t *testing.T) {
	gen := NewGenerator(newMemorySeqStore())
	_, err := gen.Next(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidDocType)
}

func TestNextUniqueUnderConcurrency(t *testing.T) {
	gen := NewGenerator(newMemorySeqStore())
	const n = 64

	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			number, err := gen.Next(context.Background(), "ADJ")
			require.NoError(t, err)
			results <- number
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool, n)
	for number := range results {
		require.False(t, seen[number], "duplicate number %s", number)
		seen[number] = true
	}
	require.Len(t, seen, n)
}
