package bus

import (
	"testing"
	"time"

	"smc-scanner/internal/models"
)

func TestSubscribePublish_DeliversMatchingAlert(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(Filter{Symbol: "NIFTY50"})

	b.Publish(models.Alert{ID: "1", Symbol: "NIFTY50", Type: models.AlertBOSEntry})
	b.Publish(models.Alert{ID: "2", Symbol: "BANKNIFTY", Type: models.AlertBOSEntry})

	select {
	case a := <-ch:
		if a.ID != "1" {
			t.Fatalf("expected alert 1, got %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for matching alert")
	}

	select {
	case a := <-ch:
		t.Fatalf("did not expect non-matching alert to be delivered, got %+v", a)
	default:
	}
}

func TestPublish_DropsOldestWhenSubscriberChannelFull(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(Filter{})

	for i := 0; i < subscriberBufferSize+5; i++ {
		b.Publish(models.Alert{ID: itoa(uint64(i)), Symbol: "X"})
	}

	b.mu.RLock()
	dropped := b.subscribers[id].dropped
	b.mu.RUnlock()
	if dropped == 0 {
		t.Fatal("expected some alerts to be dropped once the channel filled")
	}

	// Channel should still be readable and not deadlocked.
	select {
	case <-ch:
	default:
		t.Fatal("expected channel to still hold buffered alerts")
	}
}

func TestRecent_ReturnsNewestFirstBoundedBy100(t *testing.T) {
	b := New()
	for i := 0; i < 150; i++ {
		b.Publish(models.Alert{ID: itoa(uint64(i)), Symbol: "X"})
	}

	recent := b.Recent(0)
	if len(recent) != ringBufferSize {
		t.Fatalf("expected ring buffer capped at %d, got %d", ringBufferSize, len(recent))
	}
	if recent[0].ID != itoa(149) {
		t.Fatalf("expected newest alert first, got %s", recent[0].ID)
	}
}

func TestMarkRead_ReflectsInRecent(t *testing.T) {
	b := New()
	b.Publish(models.Alert{ID: "a1", Symbol: "X"})
	b.MarkRead("a1")

	recent := b.Recent(1)
	if len(recent) != 1 || !recent[0].Read {
		t.Fatalf("expected alert a1 to be marked read, got %+v", recent)
	}
}

func TestUnsubscribe_ClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(Filter{})
	b.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Fatal("expected subscriber count to drop to zero")
	}
}
