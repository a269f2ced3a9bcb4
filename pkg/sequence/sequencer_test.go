package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequencer(t *testing.T) {
	s := New(0)
	assert.Equal(t, uint64(1), s.Next())
	assert.Equal(t, uint64(2), s.Next())
	assert.Equal(t, uint64(2), s.Current())

	s.Reset(40)
	assert.Equal(t, uint64(41), s.Next())

	resumed := New(99)
	assert.Equal(t, uint64(99), resumed.Current())
	assert.Equal(t, uint64(100), resumed.Next())
}

func TestSequencer_Concurrent(t *testing.T) {
	s := New(0)
	const workers, each = 8, 500

	var (
		mu   sync.Mutex
		seen = make(map[uint64]struct{}, workers*each)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				id := s.Next()
				mu.Lock()
				seen[id] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*each)
	assert.Equal(t, uint64(workers*each), s.Current())
}
