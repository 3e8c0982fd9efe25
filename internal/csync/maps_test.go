package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMap_SetIfAbsent(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	require.True(t, m.SetIfAbsent("a", 1))
	require.False(t, m.SetIfAbsent("a", 2))

	v, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)

	m.Del("a")
	_, ok = m.Get("a")
	require.False(t, ok)
	require.Zero(t, m.Len())
}

func TestMap_SetIfAbsentConcurrent(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.SetIfAbsent("key", i) {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, won)
}

func TestMap_Seq2IsSnapshot(t *testing.T) {
	t.Parallel()

	m := NewMap[string, int]()
	m.Set("a", 1)
	m.Set("b", 2)

	got := map[string]int{}
	for k, v := range m.Seq2() {
		m.Set(k+k, v)
		got[k] = v
	}
	require.Equal(t, map[string]int{"a": 1, "b": 2}, got)
	require.Equal(t, 4, m.Len())
}
