package signal

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesSubscribers(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(EventUnauthorized, func() { got = append(got, "first") })
	bus.Subscribe(EventUnauthorized, func() { got = append(got, "second") })
	bus.Subscribe("other", func() { got = append(got, "other") })

	bus.Publish(EventUnauthorized)

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	var calls int32

	unsub := bus.Subscribe(EventUnauthorized, func() { atomic.AddInt32(&calls, 1) })
	bus.Publish(EventUnauthorized)
	unsub()
	unsub()
	bus.Publish(EventUnauthorized)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHandlerMaySubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	var nested int32

	bus.Subscribe(EventUnauthorized, func() {
		bus.Subscribe(EventUnauthorized, func() { atomic.AddInt32(&nested, 1) })
	})

	assert.NotPanics(t, func() { bus.Publish(EventUnauthorized) })
	assert.Equal(t, int32(0), atomic.LoadInt32(&nested))
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewBus()
	var calls int64
	bus.Subscribe(EventUnauthorized, func() { atomic.AddInt64(&calls, 1) })

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(EventUnauthorized)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), atomic.LoadInt64(&calls))
}
