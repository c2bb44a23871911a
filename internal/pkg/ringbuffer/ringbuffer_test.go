package ringbuffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		expected int
	}{
		{
			name:     "valid capacity",
			capacity: 10,
			expected: 10,
		},
		{
			name:     "zero capacity should default to 1",
			capacity: 0,
			expected: 1,
		},
		{
			name:     "negative capacity should default to 1",
			capacity: -5,
			expected: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := New[int](tt.capacity)
			require.NotNil(t, rb)
			require.Equal(t, tt.expected, rb.Capacity())
			require.Equal(t, 0, rb.Len())
		})
	}
}

func TestRingBuffer_Push(t *testing.T) {
	t.Run("push to empty buffer", func(t *testing.T) {
		rb := New[string](5)
		rb.Push(100, "first")
		require.Equal(t, 1, rb.Len())
	})

	t.Run("push multiple items keeps order", func(t *testing.T) {
		rb := New[string](5)
		rb.Push(100, "first")
		rb.Push(200, "second")
		rb.Push(300, "third")
		require.Equal(t, 3, rb.Len())

		var seen []string

		rb.Range(func(_ int64, value string) bool {
			seen = append(seen, value)
			return true
		})
		require.Equal(t, []string{"first", "second", "third"}, seen)
	})

	t.Run("push beyond capacity drops oldest", func(t *testing.T) {
		rb := New[int](3)
		rb.Push(100, 1)
		rb.Push(200, 2)
		rb.Push(300, 3)
		rb.Push(400, 4)
		require.Equal(t, 3, rb.Len())

		var timestamps []int64

		rb.Range(func(ts int64, _ int) bool {
			timestamps = append(timestamps, ts)
			return true
		})
		require.Equal(t, []int64{200, 300, 400}, timestamps)
	})

	t.Run("duplicate timestamps are both kept", func(t *testing.T) {
		rb := New[struct{}](5)
		rb.Push(100, struct{}{})
		rb.Push(100, struct{}{})
		require.Equal(t, 2, rb.Len())
	})
}

func TestRingBuffer_CountSince(t *testing.T) {
	rb := New[struct{}](10)
	rb.Push(100, struct{}{})
	rb.Push(200, struct{}{})
	rb.Push(300, struct{}{})
	rb.Push(400, struct{}{})

	require.Equal(t, 4, rb.CountSince(0))
	require.Equal(t, 3, rb.CountSince(200))
	require.Equal(t, 1, rb.CountSince(400))
	require.Equal(t, 0, rb.CountSince(401))
}

func TestRingBuffer_CleanupBefore(t *testing.T) {
	t.Run("removes items before cutoff", func(t *testing.T) {
		rb := New[int](10)
		rb.Push(100, 1)
		rb.Push(200, 2)
		rb.Push(300, 3)

		removed := rb.CleanupBefore(250)
		require.Equal(t, 2, removed)
		require.Equal(t, 1, rb.Len())
		require.Equal(t, 1, rb.CountSince(0))
	})

	t.Run("cutoff equal to timestamp keeps the item", func(t *testing.T) {
		rb := New[int](10)
		rb.Push(100, 1)
		rb.Push(200, 2)

		removed := rb.CleanupBefore(200)
		require.Equal(t, 1, removed)
		require.Equal(t, 1, rb.Len())
	})

	t.Run("empty buffer removes nothing", func(t *testing.T) {
		rb := New[int](10)
		require.Equal(t, 0, rb.CleanupBefore(1000))
	})
}

func TestRingBuffer_Range(t *testing.T) {
	rb := New[int](5)
	rb.Push(100, 1)
	rb.Push(200, 2)
	rb.Push(300, 3)

	t.Run("visits oldest to newest", func(t *testing.T) {
		var values []int

		rb.Range(func(_ int64, value int) bool {
			values = append(values, value)
			return true
		})
		require.Equal(t, []int{1, 2, 3}, values)
	})

	t.Run("stops when fn returns false", func(t *testing.T) {
		var values []int

		rb.Range(func(_ int64, value int) bool {
			values = append(values, value)
			return len(values) < 2
		})
		require.Equal(t, []int{1, 2}, values)
	})
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := New[int](5)
	rb.Push(100, 1)
	rb.Push(200, 2)

	rb.Clear()
	require.Equal(t, 0, rb.Len())
	require.Equal(t, 0, rb.CountSince(0))

	// Buffer remains usable after clear.
	rb.Push(300, 3)
	require.Equal(t, 1, rb.Len())
}

func TestRingBuffer_ConcurrentAccess(t *testing.T) {
	rb := New[int](100)

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func(base int) {
			defer wg.Done()

			for j := range 20 {
				rb.Push(int64(base*100+j), j)
			}
		}(i)
	}

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			rb.CountSince(0)
			rb.Len()
		}()
	}

	wg.Wait()
	require.Equal(t, 100, rb.Len())
}
