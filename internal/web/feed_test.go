package web

import (
	"sync"
	"testing"
)

func TestUnsubscribeLeavesChannelOpen(t *testing.T) {
	feed := NewFeed()

	id, ch := feed.subscribe()
	feed.unsubscribe(id)

	// A publish racing an unsubscribe may still hold the channel; it must
	// stay open so the non-blocking send can never panic.
	feed.Publish(FeedFrame{Stage: "monitoring"})

	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatalf("channel must stay open after unsubscribe")
		}
		t.Fatalf("no delivery expected after unsubscribe")
	default:
	}
}

func TestPublishConcurrentWithSubscriberChurn(t *testing.T) {
	feed := NewFeed()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				feed.Publish(FeedFrame{Stage: "fly_home_blind"})
			}
		}
	}()

	for i := 0; i < 5000; i++ {
		id, _ := feed.subscribe()
		feed.unsubscribe(id)
	}
	close(done)
	wg.Wait()
}
