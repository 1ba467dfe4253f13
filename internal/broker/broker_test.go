package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"footprint/internal/events"
)

func event(domain string) *events.CanonicalEvent {
	return &events.CanonicalEvent{Type: events.TypeView, Domain: domain, Timestamp: time.Now()}
}

func TestPublishReachesDomainSubscribers(t *testing.T) {
	b := New()
	a, cancelA := b.Subscribe("a.com")
	defer cancelA()
	other, cancelOther := b.Subscribe("b.com")
	defer cancelOther()

	b.Publish(event("a.com"))

	select {
	case got := <-a:
		assert.Equal(t, "a.com", got.Domain)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
	assert.Empty(t, other)
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	var mu sync.Mutex
	drops := 0
	b := New(WithBuffer(1), OnDrop(func(string) {
		mu.Lock()
		drops++
		mu.Unlock()
	}))
	ch, cancel := b.Subscribe("a.com")
	defer cancel()

	b.Publish(event("a.com"))
	b.Publish(event("a.com"))
	b.Publish(event("a.com"))

	assert.Len(t, ch, 1)
	mu.Lock()
	assert.Equal(t, 2, drops)
	mu.Unlock()
}

func TestCancelClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("a.com")
	require.Equal(t, 1, b.Subscribers("a.com"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, b.Subscribers("a.com"))
	b.Publish(event("a.com"))
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe("a.com")
	b.Close()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe("a.com")
	_, open = <-late
	assert.False(t, open)
}
