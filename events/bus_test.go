package events

import (
	"testing"
	"time"

	"github.com/munin-agent/munin/ircconn"
)

func TestSubscribePublishDeliversInOrder(t *testing.T) {
	b := New(nil)
	defer b.Close()

	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Publish(ircconn.Event{Kind: ircconn.EventJoined, Nick: "alice"})

	select {
	case ev := <-ch1:
		if ev.Nick != "alice" {
			t.Fatalf("ch1 got %q", ev.Nick)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on ch1")
	}
	select {
	case ev := <-ch2:
		if ev.Nick != "alice" {
			t.Fatalf("ch2 got %q", ev.Nick)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on ch2")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(nil)
	defer b.Close()

	h, ch := b.Subscribe()
	if !b.Unsubscribe(h) {
		t.Fatal("expected Unsubscribe to succeed")
	}
	if b.Unsubscribe(h) {
		t.Fatal("expected second Unsubscribe to report false")
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed")
	}
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.SubscriberCount())
	}
}

func TestSubscribeFilteredDropsNonMatching(t *testing.T) {
	b := New(nil)
	defer b.Close()

	_, ch := b.SubscribeFiltered(4, func(ev ircconn.Event) bool {
		return ev.Kind == ircconn.EventJoined
	})

	b.Publish(ircconn.Event{Kind: ircconn.EventParted})
	b.Publish(ircconn.Event{Kind: ircconn.EventJoined, Nick: "bob"})

	select {
	case ev := <-ch:
		if ev.Kind != ircconn.EventJoined {
			t.Fatalf("expected only the Joined event through, got %v", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the filtered event")
	}

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("expected no further events, got %v", ev.Kind)
		}
	default:
	}
}

func TestPublishDropsOldestWhenQueueFull(t *testing.T) {
	b := New(nil)
	defer b.Close()

	_, ch := b.SubscribeFiltered(1, nil)

	b.Publish(ircconn.Event{Kind: ircconn.EventJoined, Nick: "first"})
	b.Publish(ircconn.Event{Kind: ircconn.EventJoined, Nick: "second"})

	select {
	case ev := <-ch:
		if ev.Nick != "second" {
			t.Fatalf("expected the oldest entry dropped in favor of the newest, got %q", ev.Nick)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the surviving event")
	}
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	b := New(nil)
	_, ch1 := b.Subscribe()
	_, ch2 := b.Subscribe()

	b.Close()

	if _, ok := <-ch1; ok {
		t.Fatal("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatal("expected ch2 closed")
	}
}
