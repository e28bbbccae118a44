// Package nsqrelay carries committed store inserts between service instances
// over NSQ so that WebSocket viewers connected to one instance see rows
// written by another.
//
// Every instance publishes its local events to a shared topic and consumes
// that topic on its own ephemeral channel. Events that carry the instance's
// own origin are dropped on receipt, since the local broker already
// delivered them.
package nsqrelay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/storage"
)

// DefaultTopic is the NSQ topic events are relayed on.
const DefaultTopic = "zehem.inserts"

// DefaultQueueSize bounds the events waiting to be published. Events
// forwarded while the queue is full are dropped.
const DefaultQueueSize = 1024

// Options configures a Relay.
type Options struct {
	// NSQDAddr is the nsqd TCP address used for publishing.
	NSQDAddr string

	// LookupdAddrs are nsqlookupd HTTP addresses used to discover
	// publishers. When empty the consumer connects to NSQDAddr directly.
	LookupdAddrs []string

	// Topic defaults to DefaultTopic.
	Topic string

	// QueueSize defaults to DefaultQueueSize.
	QueueSize int
}

// envelope is the wire form of one relayed event.
type envelope struct {
	Origin string         `json:"origin"`
	Event  realtime.Event `json:"event"`
}

// Relay is a realtime.Sink that forwards events to NSQ and feeds events from
// other instances back into the local broker.
type Relay struct {
	origin   string
	topic    string
	broker   *realtime.Broker
	producer *nsq.Producer
	consumer *nsq.Consumer
	publish  func(topic string, body []byte) error

	queue    chan []byte
	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Ensure Relay implements realtime.Sink
var _ realtime.Sink = (*Relay)(nil)

// Start connects to NSQ, attaches the relay to broker and begins consuming.
func Start(broker *realtime.Broker, opts Options) (*Relay, error) {
	if opts.NSQDAddr == "" {
		return nil, fmt.Errorf("nsqd address is required")
	}
	r := newRelay(broker, opts.Topic, opts.QueueSize)

	cfg := nsq.NewConfig()
	producer, err := nsq.NewProducer(opts.NSQDAddr, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	producer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	r.producer = producer
	r.publish = producer.Publish

	channel := "relay-" + r.origin + "#ephemeral"
	consumer, err := nsq.NewConsumer(r.topic, channel, cfg)
	if err != nil {
		producer.Stop()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	consumer.SetLogger(nsqLogger{}, nsq.LogLevelWarning)
	consumer.AddHandler(r)
	r.consumer = consumer

	if len(opts.LookupdAddrs) > 0 {
		err = consumer.ConnectToNSQLookupds(opts.LookupdAddrs)
	} else {
		err = consumer.ConnectToNSQD(opts.NSQDAddr)
	}
	if err != nil {
		consumer.Stop()
		producer.Stop()
		return nil, fmt.Errorf("failed to connect consumer: %w", err)
	}

	r.start()
	broker.AddSink(r)
	slog.Info("NSQ relay started", "topic", r.topic, "origin", r.origin, "nsqd", opts.NSQDAddr)
	return r, nil
}

func newRelay(broker *realtime.Broker, topic string, queueSize int) *Relay {
	if topic == "" {
		topic = DefaultTopic
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Relay{
		origin: uuid.NewString(),
		topic:  topic,
		broker: broker,
		queue:  make(chan []byte, queueSize),
		stop:   make(chan struct{}),
	}
}

func (r *Relay) start() {
	r.wg.Add(1)
	go r.run()
}

// Forward queues ev for publishing. It never waits on NSQ: the store calls
// it while holding its commit lock, so a full queue drops the event.
func (r *Relay) Forward(ev realtime.Event) {
	body, err := encode(r.origin, ev)
	if err != nil {
		slog.Warn("Failed to encode relay event", "collection", ev.Collection, "error", err)
		return
	}
	select {
	case r.queue <- body:
	default:
		slog.Warn("Relay queue full, dropping event", "collection", ev.Collection)
		metrics.RecordRelay("dropped")
	}
}

// run publishes queued events until Stop is called.
func (r *Relay) run() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case body := <-r.queue:
			if err := r.publish(r.topic, body); err != nil {
				slog.Warn("Relay publish failed", "topic", r.topic, "error", err)
				continue
			}
			metrics.RecordRelay("out")
		}
	}
}

// HandleMessage implements nsq.Handler.
func (r *Relay) HandleMessage(m *nsq.Message) error {
	origin, ev, err := decode(m.Body)
	if err != nil {
		// A malformed body will never decode; finish it instead of requeueing.
		slog.Warn("Dropping malformed relay event", "error", err)
		return nil
	}
	if origin == r.origin {
		return nil
	}
	r.broker.Deliver(ev)
	metrics.RecordRelay("in")
	return nil
}

// Stop disconnects from NSQ. Events still queued are discarded. It is safe
// to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.wg.Wait()
		if r.consumer != nil {
			r.consumer.Stop()
			<-r.consumer.StopChan
		}
		if r.producer != nil {
			r.producer.Stop()
		}
	})
}

func encode(origin string, ev realtime.Event) ([]byte, error) {
	row := make(storage.Row, len(ev.Row))
	for k, v := range ev.Row {
		// Some drivers scan text as []byte, which JSON would base64.
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[k] = v
	}
	ev.Row = row
	return json.Marshal(envelope{Origin: origin, Event: ev})
}

func decode(body []byte) (string, realtime.Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", realtime.Event{}, err
	}
	if env.Origin == "" || env.Event.Collection == "" {
		return "", realtime.Event{}, fmt.Errorf("incomplete relay envelope")
	}
	return env.Origin, env.Event, nil
}

// nsqLogger routes go-nsq's internal logging into slog.
type nsqLogger struct{}

func (nsqLogger) Output(_ int, s string) error {
	slog.Debug("nsq", "msg", strings.TrimSpace(s))
	return nil
}
