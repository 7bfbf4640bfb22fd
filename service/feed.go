package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Publisher delivers change events to the change feed queue.
type Publisher interface {
	EnqueueChanges(ctx context.Context, userID string, events []domain.ChangeEvent) error
}

type feedJob struct {
	userID string
	events []domain.ChangeEvent
}

// ChangeFeed asynchronously publishes change events after successful
// mutations. Delivery is best-effort: a saturated buffer drops the events
// with a warning rather than blocking the request path, and publish
// failures are logged, never surfaced to the caller.
type ChangeFeed struct {
	publisher Publisher
	logger    *log.Logger
	jobs      chan feedJob
	timeout   time.Duration
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    atomic.Bool
}

// NewChangeFeed starts the worker goroutines that drain the feed buffer.
func NewChangeFeed(p Publisher, logger *log.Logger, workers, buffer int, timeout time.Duration) *ChangeFeed {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 1024
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &ChangeFeed{
		publisher: p,
		logger:    logger,
		jobs:      make(chan feedJob, buffer),
		timeout:   timeout,
	}
	for i := 0; i < workers; i++ {
		f.wg.Add(1)
		go f.worker()
	}
	return f
}

func (f *ChangeFeed) worker() {
	defer f.wg.Done()
	for j := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		err := f.publisher.EnqueueChanges(ctx, j.userID, j.events)
		cancel()
		if err != nil && f.logger != nil {
			f.logger.Warnf("change feed publish failed, user: %s, events: %d, err: %v", j.userID, len(j.events), err)
		}
	}
}

// Publish hands events to the feed workers without blocking. A nil feed is
// a no-op so services can run without a configured queue.
func (f *ChangeFeed) Publish(userID string, events ...domain.ChangeEvent) {
	if f == nil || len(events) == 0 {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed.Load() {
		return
	}
	select {
	case f.jobs <- feedJob{userID: userID, events: events}:
	default:
		if f.logger != nil {
			f.logger.Warnf("change feed buffer full, dropping %d events for user %s", len(events), userID)
		}
	}
}

// Close stops accepting events and waits for in-flight publishes.
func (f *ChangeFeed) Close() {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.closed.Swap(true) {
		f.mu.Unlock()
		return
	}
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}

func changeEvent(entityType, entityID, op string) domain.ChangeEvent {
	return domain.ChangeEvent{
		EntityType: entityType,
		EntityID:   entityID,
		Op:         op,
		Timestamp:  nextTimestamp(),
	}
}
