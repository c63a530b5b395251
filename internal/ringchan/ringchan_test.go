package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_PublishWithinCapacity(t *testing.T) {
	r := New[int](3)

	assert.False(t, r.Publish(1))
	assert.False(t, r.Publish(2))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, 1, <-r.C())
	assert.Equal(t, 2, <-r.C())
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := New[string](2)

	r.Publish("a")
	r.Publish("b")
	dropped := r.Publish("c")

	assert.True(t, dropped, "full ring MUST report a dropped element")
	r.Close()

	var got []string
	for v := range r.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"b", "c"}, got)

	stats := r.Stats()
	assert.Equal(t, int64(3), stats.Written)
	assert.Equal(t, int64(1), stats.Overwritten)
}

func TestRing_PublishAfterClose(t *testing.T) {
	r := New[int](1)
	r.Close()
	r.Close() // second close is a no-op

	assert.NotPanics(t, func() { r.Publish(1) })
	assert.Equal(t, int64(1), r.Stats().Rejected)
}

func TestRing_ConcurrentPublishers(t *testing.T) {
	r := New[int](8)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Publish(p*100 + i)
			}
		}(p)
	}
	wg.Wait()

	stats := r.Stats()
	require.Equal(t, int64(400), stats.Written)
	assert.Equal(t, 8, r.Len(), "ring MUST hold exactly its capacity after overflow")
	assert.Equal(t, int64(392), stats.Overwritten)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
