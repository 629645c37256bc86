package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicOperations(t *testing.T) {
	s := New()

	t.Run("SetAndGet", func(t *testing.T) {
		s.Set("user_id", 12345)
		value, ok := s.Get("user_id")
		require.True(t, ok)
		assert.Equal(t, 12345, value)
	})

	t.Run("LastWriterWins", func(t *testing.T) {
		s.Set("token", "first")
		s.Set("token", "second")
		value, _ := s.Get("token")
		assert.Equal(t, "second", value)
	})

	t.Run("MissingKeyIsAbsentNotError", func(t *testing.T) {
		value, ok := s.Get("missing")
		assert.False(t, ok)
		assert.Nil(t, value)
	})

	t.Run("AbsentDistinctFromFalsyValue", func(t *testing.T) {
		s.Set("zero", 0)
		s.Set("empty", "")
		s.Set("nil", nil)

		for _, key := range []string{"zero", "empty", "nil"} {
			_, ok := s.Get(key)
			assert.True(t, ok, "key %q should be present", key)
		}
	})

	t.Run("Has", func(t *testing.T) {
		s.Set("present", 1)
		assert.True(t, s.Has("present"))
		assert.False(t, s.Has("never_set"))
	})

	t.Run("Delete", func(t *testing.T) {
		s.Set("doomed", true)
		assert.True(t, s.Delete("doomed"))
		assert.False(t, s.Delete("doomed"))
		assert.False(t, s.Has("doomed"))
	})

	t.Run("Clear", func(t *testing.T) {
		s.Set("a", 1)
		s.Set("b", 2)
		s.Clear()
		assert.Equal(t, 0, s.Len())
		assert.Empty(t, s.Keys())
	})
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	s := New()
	s.Set("k", "v1")

	snap := s.Snapshot()
	s.Set("k", "v2")
	s.Set("added_later", true)

	assert.Equal(t, map[string]any{"k": "v1"}, snap)
}

func TestValuesOfAnyShape(t *testing.T) {
	type artifact struct {
		Name string
		Size int
	}

	s := New()
	s.Set("struct", artifact{Name: "report", Size: 42})
	s.Set("slice", []int{1, 2, 3})
	s.Set("map", map[string]string{"k": "v"})

	value, ok := s.Get("struct")
	require.True(t, ok)
	assert.Equal(t, artifact{Name: "report", Size: 42}, value)
}

func TestConcurrentAccess(t *testing.T) {
	const goroutines = 32
	const perGoroutine = 500

	s := New()
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				key := fmt.Sprintf("w%d_k%d", worker, j)
				s.Set(key, j)

				// read-your-writes on the calling goroutine
				value, ok := s.Get(key)
				if !ok || value != j {
					t.Errorf("lost write for %s", key)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, goroutines*perGoroutine, s.Len())
}

func TestWritesVisibleAcrossGoroutines(t *testing.T) {
	s := New()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Set("k", 1)
	}()
	<-done

	value, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, value)
}

func TestShared(t *testing.T) {
	t.Cleanup(ResetShared)

	t.Run("SameInstanceEverywhere", func(t *testing.T) {
		ResetShared()

		const goroutines = 16
		instances := make([]*Store, goroutines)
		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				instances[slot] = Shared()
			}(i)
		}
		wg.Wait()

		for i := 1; i < goroutines; i++ {
			assert.Same(t, instances[0], instances[i])
		}
	})

	t.Run("StateIsShared", func(t *testing.T) {
		ResetShared()
		Shared().Set("cross_file", "value")
		value, ok := Shared().Get("cross_file")
		require.True(t, ok)
		assert.Equal(t, "value", value)
	})

	t.Run("ResetCreatesFreshInstance", func(t *testing.T) {
		ResetShared()
		first := Shared()
		first.Set("k", 1)

		ResetShared()
		second := Shared()
		assert.NotSame(t, first, second)
		assert.False(t, second.Has("k"))
	})
}
