package challenge

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestTakeDeletesOnRead(t *testing.T) {
	s := NewStore[string]()
	s.Put("k", "v", time.Minute)

	v, ok := s.Take("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	_, ok = s.Take("k")
	assert.False(t, ok)
}

func TestTakeExpired(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStore[int](WithClock[int](clock.Now))
	s.Put("k", 1, 2*time.Minute)

	clock.Advance(2 * time.Minute)
	_, ok := s.Take("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStore[int](WithClock[int](clock.Now))
	s.Put("curto", 1, time.Second)
	s.Put("longo", 2, time.Hour)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, s.Sweep())
	assert.Equal(t, 1, s.Len())

	v, ok := s.Take("longo")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestConcurrentTakeHasOneWinner(t *testing.T) {
	s := NewStore[string]()
	s.Put("nonce", "desafio", time.Minute)

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take("nonce"); ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestJanitorStopsOnClose(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewStore[int](WithClock[int](clock.Now))
	s.Put("k", 1, time.Millisecond)
	clock.Advance(time.Second)

	s.StartJanitor(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, 5*time.Millisecond)

	s.Close()
	s.Close()
}
