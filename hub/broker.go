package hub

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/eclipse/paho.golang/paho"

	"github.com/roach88/fermata/syncutil"
)

// Handler consumes one delivered inbound message. Acknowledgement is the
// handler's responsibility via Delivery.Ack; the broker only acks messages
// no handler matched.
type Handler func(ctx context.Context, d *Delivery) error

// Delivery is one inbound message handed to a matching subscription.
type Delivery struct {
	// Packet is the inbound message as published by the scenario driver.
	Packet *paho.Publish

	ack func()
}

// Ack acknowledges the delivered message back to the broker. Each call
// produces one acknowledgement; calling exactly once is the handler's
// contract.
func (d *Delivery) Ack() { d.ack() }

type subscription struct {
	filter  string
	handler Handler
}

// Config carries explicit broker construction parameters.
type Config struct {
	// Log receives debug-level traffic events. Defaults to slog.Default.
	Log *slog.Logger
}

// Broker is the in-process transport double.
//
// It is a passive, thread-safe target: protocol workers call Publish,
// Subscribe, and Unsubscribe from their own goroutines while the scenario
// driver injects inbound messages and awaits outbound effects. One mutex
// guards the broker's own state; the await queues and counters synchronize
// themselves, so no operation ever holds two locks.
type Broker struct {
	mu           sync.Mutex
	log          *slog.Logger
	connected    bool
	onDisconnect func()

	// subs is consulted in registration order; first match wins.
	subs       []subscription
	subscribed map[string]struct{}

	pubAcks   []AckKind
	subAcks   []AckKind
	unsubAcks []AckKind

	published []*paho.Publish
	byCorr    map[string]*paho.Publish
	packetSeq uint16

	pubCount syncutil.Counter
	ackCount syncutil.Counter

	ackedIDs *syncutil.Queue[uint16]
	pubCorrs *syncutil.Queue[[]byte]
}

// New creates a disconnected broker with empty outcome queues.
func New(cfg Config) *Broker {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		log:        log,
		subscribed: make(map[string]struct{}),
		byCorr:     make(map[string]*paho.Publish),
		ackedIDs:   syncutil.NewQueue[uint16](),
		pubCorrs:   syncutil.NewQueue[[]byte](),
	}
}

// Connect always succeeds.
func (b *Broker) Connect(_ context.Context) error {
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	b.log.Debug("broker connected")
	return nil
}

// Disconnect flips the connected flag and fires the registered disconnect
// callback, if any.
func (b *Broker) Disconnect() {
	b.mu.Lock()
	b.connected = false
	cb := b.onDisconnect
	b.mu.Unlock()

	b.log.Debug("broker disconnected")
	if cb != nil {
		cb()
	}
}

// Connected reports whether the broker is currently connected.
func (b *Broker) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// OnDisconnect registers the callback fired by Disconnect.
func (b *Broker) OnDisconnect(fn func()) {
	b.mu.Lock()
	b.onDisconnect = fn
	b.mu.Unlock()
}

// Subscribe records the filter and consumes the next subscribe outcome.
//
// The filter is recorded as attempted regardless of outcome, but the
// handler is registered only on Success: a failed or dropped subscription
// must not receive traffic. On Drop the call blocks until ctx gives up and
// returns the context's cause.
func (b *Broker) Subscribe(ctx context.Context, filter string, handler Handler) error {
	b.mu.Lock()
	b.subscribed[filter] = struct{}{}
	outcome := nextOutcome(&b.subAcks)
	if outcome == Success {
		b.subs = append(b.subs, subscription{filter: filter, handler: handler})
	}
	b.mu.Unlock()

	b.log.Debug("subscribe", "filter", filter, "outcome", outcome)
	return b.settle(ctx, OpSubscribe, outcome)
}

// Unsubscribe consumes the next unsubscribe outcome. It never deregisters
// the handler; stopping traffic is out of the double's scope.
func (b *Broker) Unsubscribe(ctx context.Context, filter string) error {
	b.mu.Lock()
	outcome := nextOutcome(&b.unsubAcks)
	b.mu.Unlock()

	b.log.Debug("unsubscribe", "filter", filter, "outcome", outcome)
	return b.settle(ctx, OpUnsubscribe, outcome)
}

// Publish records the outbound message and consumes the next publish
// outcome.
//
// Recording happens unconditionally before the outcome applies: a publish
// injected as Fail or Drop is still indexed by sequence and correlation,
// still counted, and still wakes AwaitPublish, because scenarios assert
// "a publish was attempted" on exactly those paths.
func (b *Broker) Publish(ctx context.Context, p *paho.Publish) error {
	var corr []byte
	if p.Properties != nil && p.Properties.CorrelationData != nil {
		corr = p.Properties.CorrelationData
	}

	b.mu.Lock()
	seq := len(b.published)
	b.published = append(b.published, p)
	if corr != nil {
		b.byCorr[string(corr)] = p
	}
	outcome := nextOutcome(&b.pubAcks)
	b.mu.Unlock()

	b.pubCount.Increment()
	b.pubCorrs.Enqueue(corr)

	b.log.Debug("publish", "topic", p.Topic, "seq", seq, "outcome", outcome)
	return b.settle(ctx, OpPublish, outcome)
}

// settle maps a consumed outcome onto the operation's return.
func (b *Broker) settle(ctx context.Context, op Op, outcome AckKind) error {
	switch outcome {
	case Fail:
		return &AckError{Op: op, Kind: Fail}
	case Drop:
		// The broker itself never times out; the missing acknowledgement is
		// surfaced by the caller's own deadline.
		<-ctx.Done()
		return fmt.Errorf("%s dropped, no acknowledgement: %w", op, context.Cause(ctx))
	default:
		return nil
	}
}

// Deliver injects one inbound message.
//
// The first subscription whose filter matches the topic consumes the
// message; its handler runs on the calling goroutine and its error is
// returned as-is. A message no filter matches is auto-acknowledged so an
// awaiting scenario never hangs on it.
func (b *Broker) Deliver(ctx context.Context, p *paho.Publish) error {
	b.mu.Lock()
	var handler Handler
	for _, sub := range b.subs {
		if MatchTopic(sub.filter, p.Topic) {
			handler = sub.handler
			break
		}
	}
	b.mu.Unlock()

	if handler == nil {
		b.log.Debug("inbound unmatched, auto-acked", "topic", p.Topic, "packet_id", p.PacketID)
		b.Ack(p.PacketID)
		return nil
	}

	b.log.Debug("inbound delivered", "topic", p.Topic, "packet_id", p.PacketID)
	return handler(ctx, &Delivery{Packet: p, ack: func() { b.Ack(p.PacketID) }})
}

// Ack records one acknowledgement and wakes AwaitAck.
func (b *Broker) Ack(packetID uint16) {
	b.ackCount.Increment()
	b.ackedIDs.Enqueue(packetID)
	b.log.Debug("acked", "packet_id", packetID)
}

// AwaitAck blocks until the next acknowledgement and returns its packet ID.
func (b *Broker) AwaitAck(ctx context.Context) (uint16, error) {
	return b.ackedIDs.Dequeue(ctx)
}

// AwaitPublish blocks until the next outbound publish and returns its
// correlation identity, which is nil for a publish that carried none.
func (b *Broker) AwaitPublish(ctx context.Context) ([]byte, error) {
	return b.pubCorrs.Dequeue(ctx)
}

// EnqueuePublishAck appends an outcome to the publish queue.
func (b *Broker) EnqueuePublishAck(k AckKind) {
	b.mu.Lock()
	b.pubAcks = append(b.pubAcks, k)
	b.mu.Unlock()
}

// EnqueueSubscribeAck appends an outcome to the subscribe queue.
func (b *Broker) EnqueueSubscribeAck(k AckKind) {
	b.mu.Lock()
	b.subAcks = append(b.subAcks, k)
	b.mu.Unlock()
}

// EnqueueUnsubscribeAck appends an outcome to the unsubscribe queue.
func (b *Broker) EnqueueUnsubscribeAck(k AckKind) {
	b.mu.Lock()
	b.unsubAcks = append(b.unsubAcks, k)
	b.mu.Unlock()
}

// PublishedByCorrelation returns the most recent outbound message with the
// given correlation identity. An empty identity is a valid key; nil means
// "no correlation" and never matches.
func (b *Broker) PublishedByCorrelation(corr []byte) (*paho.Publish, bool) {
	if corr == nil {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.byCorr[string(corr)]
	return p, ok
}

// Published returns the outbound message at the given sequence index.
func (b *Broker) Published(seq int) (*paho.Publish, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq < 0 || seq >= len(b.published) {
		return nil, false
	}
	return b.published[seq], true
}

// PublishedMessages returns a snapshot of all outbound messages in
// sequence order.
func (b *Broker) PublishedMessages() []*paho.Publish {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*paho.Publish, len(b.published))
	copy(out, b.published)
	return out
}

// HasSubscribed reports whether a subscribe was attempted for the exact
// filter, regardless of its injected outcome.
func (b *Broker) HasSubscribed(filter string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subscribed[filter]
	return ok
}

// SubscribedTopics returns every attempted filter, sorted.
func (b *Broker) SubscribedTopics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.subscribed))
	for topic := range b.subscribed {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// PublicationCount returns the number of publishes attempted, including
// failed and dropped ones.
func (b *Broker) PublicationCount() int64 {
	return b.pubCount.Value()
}

// AcknowledgementCount returns the number of acknowledgements produced,
// including broker auto-acks of unmatched inbound messages.
func (b *Broker) AcknowledgementCount() int64 {
	return b.ackCount.Value()
}

// NextPacketID mints the next inbound packet identifier.
func (b *Broker) NextPacketID() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.packetSeq++
	return b.packetSeq
}

// nextOutcome pops the head of an outcome queue; empty means Success.
// Callers hold b.mu.
func nextOutcome(q *[]AckKind) AckKind {
	if len(*q) == 0 {
		return Success
	}
	k := (*q)[0]
	*q = (*q)[1:]
	return k
}
