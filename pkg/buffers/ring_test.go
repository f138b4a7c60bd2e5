package buffers

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBuffer_TrimsOldestPastCapacity(t *testing.T) {
	rb := NewRingBuffer[int](3)
	for i := 1; i <= 5; i++ {
		rb.WriteOne(i)
	}

	assert.Equal(t, []int{3, 4, 5}, rb.ReadAll())
	assert.Equal(t, 3, rb.Len())
	assert.Equal(t, int64(5), rb.TotalAdded())
}

func TestRingBuffer_Last(t *testing.T) {
	tests := []struct {
		name   string
		writes int
		n      int
		want   []int
	}{
		{name: "fewer than n", writes: 2, n: 5, want: []int{1, 2}},
		{name: "exactly n", writes: 3, n: 3, want: []int{1, 2, 3}},
		{name: "wrapped", writes: 6, n: 2, want: []int{5, 6}},
		{name: "non-positive returns all", writes: 4, n: 0, want: []int{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer[int](4)
			for i := 1; i <= tt.writes; i++ {
				rb.WriteOne(i)
			}
			if tt.writes > 4 {
				// Only the newest four survive.
				require.Equal(t, 4, rb.Len())
			}
			assert.Equal(t, tt.want, rb.Last(tt.n))
		})
	}
}

func TestRingBuffer_FilterAndClear(t *testing.T) {
	rb := NewRingBuffer[string](10)
	for _, s := range []string{"log", "error", "warn", "error"} {
		rb.WriteOne(s)
	}

	assert.Equal(t, []string{"error", "error"}, rb.Filter(func(s string) bool { return s == "error" }))

	rb.Clear()
	assert.Empty(t, rb.ReadAll())
	assert.Equal(t, int64(4), rb.TotalAdded())

	rb.WriteOne("after")
	assert.Equal(t, []string{"after"}, rb.ReadAll())
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	rb := NewRingBuffer[int](0)
	rb.WriteOne(1)
	rb.WriteOne(2)
	assert.Equal(t, 1, rb.Cap())
	assert.Equal(t, []int{2}, rb.ReadAll())
}

func TestRingBuffer_ConcurrentWrites(t *testing.T) {
	rb := NewRingBuffer[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rb.WriteOne(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, rb.Len())
	assert.Equal(t, int64(800), rb.TotalAdded())
}
