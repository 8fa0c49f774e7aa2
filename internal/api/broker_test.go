package api

import (
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe(FleetTopic)

    evt := SSEEvent{Type: EventBookingCreated, Data: map[string]any{"bookingId": "b1"}}
    b.Publish(FleetTopic, evt)

    select {
    case got := <-ch:
        assert.Equal(t, evt.Type, got.Type)
        assert.Equal(t, "b1", got.Data["bookingId"])
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }

    b.Unsubscribe(FleetTopic, ch)
    _, ok := <-ch
    assert.False(t, ok, "channel should be closed after unsubscribe")

    // second unsubscribe is a no-op
    b.Unsubscribe(FleetTopic, ch)
}

func TestBrokerTopicsAreIsolated(t *testing.T) {
    b := NewBroker()
    fleet := b.Subscribe(FleetTopic)
    other := b.Subscribe("other")
    defer b.Unsubscribe(FleetTopic, fleet)
    defer b.Unsubscribe("other", other)

    b.Publish(FleetTopic, SSEEvent{Type: EventDriverUpdated})
    require.Len(t, fleet, 1)
    assert.Len(t, other, 0)
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe(FleetTopic)
    defer b.Unsubscribe(FleetTopic, ch)

    done := make(chan struct{})
    go func() {
        for i := 0; i < cap(ch)+10; i++ {
            b.Publish(FleetTopic, SSEEvent{Type: EventVehicleUpdated})
        }
        close(done)
    }()
    select {
    case <-done:
    case <-time.After(time.Second):
        t.Fatal("publish blocked on a slow subscriber")
    }
    assert.Len(t, ch, cap(ch))
}

func TestTypeFilter(t *testing.T) {
    assert.Nil(t, typeFilter(" "))
    f := typeFilter("booking.created, booking.assigned,,")
    assert.True(t, accepts(f, EventBookingAssigned))
    assert.False(t, accepts(f, EventDriverUpdated))
    assert.True(t, accepts(nil, EventDriverUpdated))
}
