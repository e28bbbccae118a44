package messagelog

import (
	"context"
	"sync"

	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// Feed is a live view of one group: the history at subscription time
// followed by every message appended afterwards, each exactly once.
type Feed struct {
	// History is the full message history when the feed started.
	History []*models.Message

	// C receives messages appended after the feed started. It is closed when
	// the feed is closed or its context ends.
	C <-chan *models.Message

	cancel context.CancelFunc
	done   chan struct{}
}

// Close stops the feed and waits for C to be closed.
func (f *Feed) Close() {
	f.cancel()
	<-f.done
}

// Subscribe opens a Feed on the group.
//
// The store subscription is registered before history is read, so no
// message committed in between is missed. Live rows already present in
// History are skipped.
func (l *Log) Subscribe(ctx context.Context, groupID string) (*Feed, error) {
	if _, err := directory.RequireGroup(ctx, l.store, groupID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	q := newQueue()
	sub, err := l.store.Subscribe(ctx, storage.Messages, storage.Filter{"group_id": groupID}, func(r storage.Row) {
		q.push(models.MessageFromRow(r))
	})
	if err != nil {
		cancel()
		return nil, err
	}

	history, err := l.history(ctx, groupID)
	if err != nil {
		sub.Cancel()
		cancel()
		return nil, err
	}

	seen := make(map[string]bool, len(history))
	for _, m := range history {
		seen[m.ID] = true
	}

	out := make(chan *models.Message)
	feed := &Feed{History: history, C: out, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(feed.done)
		defer close(out)
		defer sub.Cancel()

		for {
			batch, ok := q.wait(ctx)
			if !ok {
				return
			}
			for _, m := range batch {
				if seen[m.ID] {
					delete(seen, m.ID)
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return feed, nil
}

// queue is an unbounded FIFO so the store's publish path never blocks on a
// slow reader.
type queue struct {
	mu    sync.Mutex
	items []*models.Message
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(m *models.Message) {
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// wait blocks until items are queued and returns all of them, or returns
// false when ctx ends.
func (q *queue) wait(ctx context.Context) ([]*models.Message, bool) {
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		q.mu.Unlock()
		if len(batch) > 0 {
			return batch, true
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}
