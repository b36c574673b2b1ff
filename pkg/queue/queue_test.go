package queue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	seq     int
	payload [16]int16
}

func TestFIFOOrder(t *testing.T) {
	testCases := []struct {
		name  string
		ops   string // 'p' push, 'o' pop
		pops  []int
		final int
	}{
		{"push all then pop all", "pppooo", []int{1, 2, 3}, 0},
		{"interleaved", "popppoppoo", []int{1, 2, 3, 4}, 2},
		{"pop empty", "oopo", []int{1}, 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, c := New[item]().Split()
			var next int
			var popped []int
			for _, op := range tc.ops {
				switch op {
				case 'p':
					next++
					require.NoError(t, p.Push(&item{seq: next}))
				case 'o':
					if v, ok := c.Pop(); ok {
						popped = append(popped, v.seq)
					}
				}
			}
			require.Equal(t, tc.pops, popped)
			require.Equal(t, tc.final, c.Len())
		})
	}
}

func TestCapacity(t *testing.T) {
	p, c := New[item]().Split()
	for i := 1; i <= Capacity; i++ {
		require.NoError(t, p.Push(&item{seq: i}))
	}
	require.Equal(t, Capacity, p.Len())
	require.Equal(t, ErrFull, p.Push(&item{seq: Capacity + 1}))

	// the rejected item never shows up, the queued ones are intact.
	for i := 1; i <= Capacity; i++ {
		v, ok := c.Pop()
		require.True(t, ok)
		require.Equal(t, i, v.seq)
	}
	_, ok := c.Pop()
	require.False(t, ok)

	require.NoError(t, p.Push(&item{seq: 100}))
	v, ok := c.Peek()
	require.True(t, ok)
	require.Equal(t, 100, v.seq)
	require.Equal(t, 1, c.Len())
}

func TestWrapAround(t *testing.T) {
	p, c := New[item]().Split()
	for i := 0; i < Capacity*5; i++ {
		require.NoError(t, p.Push(&item{seq: i}))
		v, ok := c.Pop()
		require.True(t, ok)
		require.Equal(t, i, v.seq)
	}
}

func TestSplitOnce(t *testing.T) {
	q := New[item]()
	q.Split()
	require.Panics(t, func() { q.Split() })
}

func TestConcurrentOrder(t *testing.T) {
	const n = 10000
	p, c := New[item]().Split()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; {
			v := item{seq: i}
			v.payload[0] = int16(i)
			if p.Push(&v) == nil {
				i++
			}
		}
	}()
	for expect := 0; expect < n; {
		v, ok := c.Pop()
		if !ok {
			continue
		}
		require.Equal(t, expect, v.seq)
		require.Equal(t, int16(expect), v.payload[0])
		expect++
	}
	<-done
}
