package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversEventsInOrder(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Event, 4)
	ready := make(chan struct{})
	go func() {
		ch, err := bus.Subscribe(ctx)
		if err != nil {
			close(ready)
			return
		}
		close(ready)
		for msg := range ch {
			e, err := Decode(msg)
			if err == nil {
				received <- e
			}
			msg.Ack()
		}
	}()
	<-ready

	first := NewEvent(EventTurnStarted)
	first.ExchangeID = "ex-1"
	second := NewEvent(EventTurnCompleted)
	second.ExchangeID = "ex-1"
	second.ElapsedSeconds = 1.5

	require.NoError(t, bus.Publish(first))
	require.NoError(t, bus.Publish(second))

	for _, want := range []EventType{EventTurnStarted, EventTurnCompleted} {
		select {
		case e := <-received:
			assert.Equal(t, want, e.Type)
			assert.Equal(t, "ex-1", e.ExchangeID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	done := make(chan struct{})
	go func() {
		bus.PublishBlind(NewEvent(EventSessionReset))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked without subscribers")
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.PublishBlind(NewEvent(EventDocDeleted))
}

func TestPublishSetsMetadata(t *testing.T) {
	bus := NewBus()
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	go bus.PublishBlind(NewEvent(EventDocUploaded))

	select {
	case msg := <-ch:
		assert.Equal(t, "0", msg.Metadata.Get(MetadataSequence))
		assert.Equal(t, string(EventDocUploaded), msg.Metadata.Get(MetadataEventType))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}

	assert.Eventually(t, func() bool { return bus.Published() == 1 }, time.Second, 10*time.Millisecond)
}
