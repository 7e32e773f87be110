package sse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBroker_Publish_DeliversToSubscriber(t *testing.T) {
	b := New()
	ch, id := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish("step", map[string]int{"step": 3})

	select {
	case ev := <-ch:
		assert.Equal(t, "step", ev.Name)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroker_Unsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	ch, id := b.Subscribe()
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)

	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_Publish_DropsOldestAndMarksLagWhenFull(t *testing.T) {
	b := NewWithBuffer(2)
	ch, id := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish("a", nil)
	b.Publish("b", nil)
	b.Publish("c", nil) // buffer full at 2; drop oldest ("a"), enqueue "c" + "lag"

	first := <-ch
	assert.Equal(t, "b", first.Name)
	second := <-ch
	assert.Equal(t, "c", second.Name)
}

func TestBroker_Publish_KeepsOnlyMostRecentEventWhenSubscriberNeverReads(t *testing.T) {
	// Drop-oldest always frees a slot before the retry, so a subscriber that
	// never reads stays connected and simply sees only the latest events —
	// maxConsecutiveDrops exists as a last-resort guard, not something a
	// single bounded channel under one writer can normally trip.
	b := NewWithBuffer(1)
	ch, id := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < 50; i++ {
		b.Publish("flood", i)
	}

	assert.Equal(t, 1, b.SubscriberCount())
	ev := <-ch
	assert.Equal(t, "flood", ev.Name)
}

func TestBroker_SubscriberCount(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.SubscriberCount())
	_, id1 := b.Subscribe()
	_, id2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())
	b.Unsubscribe(id1)
	b.Unsubscribe(id2)
	assert.Equal(t, 0, b.SubscriberCount())
}
