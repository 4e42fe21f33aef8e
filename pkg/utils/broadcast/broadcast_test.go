//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package broadcast

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func collect(ch <-chan int, wg *sync.WaitGroup, out *[]int) {
	defer wg.Done()
	for v := range ch {
		*out = append(*out, v)
	}
}

func TestBroadcast_FanOut(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", "fanout", source, WithSendTimeout[int](time.Second))

	var wg sync.WaitGroup
	var got1, got2 []int
	wg.Add(2)
	go collect(b.Subscribe(), &wg, &got1)
	go collect(b.Subscribe(), &wg, &got2)

	for i := 1; i <= 3; i++ {
		source <- i
	}
	close(source)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, got1)
	assert.Equal(t, []int{1, 2, 3}, got2)
}

func TestBroadcast_CancelSubscription(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", "cancel", source)
	defer b.Close()

	ch := b.Subscribe()
	b.CancelSubscription(ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// no listeners: sending must not block
	source <- 1
}

func TestBroadcast_SlowListenerIsSkipped(t *testing.T) {
	source := make(chan int)
	b := NewBroadcastServer("test", "slow", source, WithSendTimeout[int](time.Millisecond))
	_ = b.Subscribe() // never read
	source <- 1
	source <- 2
	b.Close()

	bs := b.(*broadcastServer[int])
	assert.Eventually(t, func() bool { return bs.numSkip.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), bs.numSnd.Load())
}

func TestBroadcast_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcastServer("test", "closed", make(chan int))
	b.Close()
	time.Sleep(10 * time.Millisecond)
	_, ok := <-b.Subscribe()
	assert.False(t, ok)
}
