package nsqrelay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/storage"
)

func TestEncodeDecode(t *testing.T) {
	ev := realtime.Event{
		Collection: storage.Messages,
		Row: storage.Row{
			"id":          "m1",
			"seq":         int64(42),
			"group_id":    []byte("g1"),
			"mention_all": true,
			"created_at":  int64(1700000000123),
		},
	}

	body, err := encode("origin-a", ev)
	require.NoError(t, err)

	origin, got, err := decode(body)
	require.NoError(t, err)
	assert.Equal(t, "origin-a", origin)
	assert.Equal(t, storage.Messages, got.Collection)
	assert.Equal(t, "g1", got.Row.String("group_id"))
	assert.Equal(t, int64(42), got.Row.Int("seq"))
	assert.Equal(t, int64(1700000000123), got.Row.Int("created_at"))
	assert.True(t, got.Row.Bool("mention_all"))

	// The caller's row is left untouched.
	assert.Equal(t, []byte("g1"), ev.Row["group_id"])
}

func TestDecodeRejectsIncompleteEnvelope(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"origin":"a"}`, `{"event":{"collection":"messages"}}`} {
		_, _, err := decode([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestHandleMessage(t *testing.T) {
	broker := realtime.NewBroker()
	r := newRelay(broker, "", 0)
	assert.Equal(t, DefaultTopic, r.topic)

	var got []string
	broker.Subscribe(storage.Messages, storage.Filter{"group_id": "g1"}, func(row storage.Row) {
		got = append(got, row.String("id"))
	})

	ev := realtime.Event{Collection: storage.Messages, Row: storage.Row{"id": "m1", "group_id": "g1"}}

	own, err := encode(r.origin, ev)
	require.NoError(t, err)
	require.NoError(t, r.HandleMessage(nsq.NewMessage(nsq.MessageID{}, own)))
	assert.Empty(t, got, "own events must not be delivered twice")

	remote, err := encode("another-instance", ev)
	require.NoError(t, err)
	require.NoError(t, r.HandleMessage(nsq.NewMessage(nsq.MessageID{}, remote)))
	assert.Equal(t, []string{"m1"}, got)

	require.NoError(t, r.HandleMessage(nsq.NewMessage(nsq.MessageID{}, []byte("garbage"))))
	assert.Equal(t, []string{"m1"}, got)
}

func TestForwardDropsWhenQueueFull(t *testing.T) {
	r := newRelay(realtime.NewBroker(), "", 2)
	ev := realtime.Event{Collection: storage.Messages, Row: storage.Row{"id": "m1"}}

	// Nothing drains the queue, so the third event must be dropped
	// rather than block the caller.
	returned := make(chan struct{})
	go func() {
		for range 3 {
			r.Forward(ev)
		}
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked on a full queue")
	}
	assert.Len(t, r.queue, 2)

	r.Stop()
}

func TestRunPublishesUntilStopped(t *testing.T) {
	r := newRelay(realtime.NewBroker(), "topic-a", 0)

	var mu sync.Mutex
	var topics []string
	published := make(chan struct{}, 2)
	r.publish = func(topic string, body []byte) error {
		mu.Lock()
		topics = append(topics, topic)
		mu.Unlock()
		published <- struct{}{}
		if len(body) == 0 {
			return errors.New("empty body")
		}
		return nil
	}
	r.start()

	ev := realtime.Event{Collection: storage.Messages, Row: storage.Row{"id": "m1"}}
	r.Forward(ev)
	r.Forward(ev)
	for range 2 {
		select {
		case <-published:
		case <-time.After(time.Second):
			t.Fatal("queued event was not published")
		}
	}

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"topic-a", "topic-a"}, topics)
}
