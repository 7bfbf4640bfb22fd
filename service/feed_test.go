package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	calls  [][]domain.ChangeEvent
	err    error
	signal chan struct{}
}

func (p *recordingPublisher) EnqueueChanges(ctx context.Context, userID string, events []domain.ChangeEvent) error {
	p.mu.Lock()
	p.calls = append(p.calls, events)
	p.mu.Unlock()
	if p.signal != nil {
		p.signal <- struct{}{}
	}
	return p.err
}

func (p *recordingPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestChangeFeedDeliversEvents(t *testing.T) {
	pub := &recordingPublisher{signal: make(chan struct{}, 1)}
	feed := NewChangeFeed(pub, log.New(), 1, 8, time.Second)
	defer feed.Close()

	feed.Publish("u", changeEvent("board", "b1", domain.OpCreated))

	select {
	case <-pub.signal:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}
	if pub.callCount() != 1 {
		t.Fatalf("expected 1 publish, got %d", pub.callCount())
	}
}

func TestChangeFeedPublishErrorIsSwallowed(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("queue down"), signal: make(chan struct{}, 1)}
	feed := NewChangeFeed(pub, log.New(), 1, 8, time.Second)
	defer feed.Close()

	feed.Publish("u", changeEvent("task", "t1", domain.OpMoved))

	select {
	case <-pub.signal:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for publish")
	}
}

func TestNilChangeFeedIsNoop(t *testing.T) {
	var feed *ChangeFeed
	feed.Publish("u", changeEvent("task", "t1", domain.OpCreated))
	feed.Close()
}

func TestChangeFeedCloseWaitsForWorkers(t *testing.T) {
	pub := &recordingPublisher{}
	feed := NewChangeFeed(pub, log.New(), 2, 8, time.Second)

	for i := 0; i < 5; i++ {
		feed.Publish("u", changeEvent("task", "t", domain.OpUpdated))
	}
	feed.Close()

	if pub.callCount() != 5 {
		t.Fatalf("expected all buffered events delivered before close, got %d", pub.callCount())
	}
	// Publishing after close must not panic.
	feed.Publish("u", changeEvent("task", "t", domain.OpUpdated))
}

func TestNextTimestampMonotonic(t *testing.T) {
	prev := nextTimestamp()
	for i := 0; i < 1000; i++ {
		cur := nextTimestamp()
		if cur <= prev {
			t.Fatalf("timestamps not strictly increasing: %d then %d", prev, cur)
		}
		prev = cur
	}
}
