package logstream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsewatch/pulsewatch/internal/models"
)

func receiveLine(t *testing.T, sub *Subscription) models.LogLine {
	t.Helper()
	select {
	case line, open := <-sub.Lines:
		require.True(t, open, "subscription closed unexpectedly")
		return line
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for log line")
		return models.LogLine{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New(8, nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Publish("x")

	line := receiveLine(t, sub)
	assert.Equal(t, "x", line.Message)
	assert.False(t, line.Timestamp.IsZero())
}

func TestNoReplayForLateSubscriber(t *testing.T) {
	b := New(8, nil)
	early := b.Subscribe()
	defer b.Unsubscribe(early)

	b.Publish("x")

	late := b.Subscribe()
	defer b.Unsubscribe(late)
	b.Publish("y")

	assert.Equal(t, "x", receiveLine(t, early).Message)
	assert.Equal(t, "y", receiveLine(t, early).Message)
	// The late subscriber only ever sees what was published after it
	// attached.
	assert.Equal(t, "y", receiveLine(t, late).Message)
	select {
	case line := <-late.Lines:
		t.Fatalf("unexpected replayed line: %q", line.Message)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := New(2, nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for n := 0; n < 5; n++ {
		b.Publish(fmt.Sprintf("line-%d", n))
	}

	// The publisher never blocked; the queue holds the newest lines.
	assert.Equal(t, "line-3", receiveLine(t, sub).Message)
	assert.Equal(t, "line-4", receiveLine(t, sub).Message)
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	b := New(2, nil)

	done := make(chan struct{})
	go func() {
		for n := 0; n < 1000; n++ {
			b.Publish("noise")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(2, nil)
	sub := b.Subscribe()
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.Lines
	assert.False(t, open)

	// Idempotent.
	b.Unsubscribe(sub)
}

func TestPrintf(t *testing.T) {
	b := New(4, nil)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	b.Printf("scan %s in %d ms", "completed", 42)
	assert.Equal(t, "scan completed in 42 ms", receiveLine(t, sub).Message)
}
