// Package hub provides the simulated broker the harness connects the
// component under test to in place of a real transport.
//
// The broker is a passive double: it implements the capability surface a
// production client expects (connect, publish, subscribe, unsubscribe,
// inbound delivery) while letting the scenario driver inject per-call
// acknowledgement outcomes and observe everything the component published.
//
// Outcome injection is three independent FIFO queues, one per operation
// kind. Each Publish, Subscribe, or Unsubscribe consumes the head of its
// queue; an empty queue means Success. Fail returns a broker-level
// rejection synchronously. Drop swallows the request: no acknowledgement is
// ever produced and the call blocks until the caller's own context gives
// up, because detecting the missing ack is the job of the component under
// test, not the broker.
//
// Inbound messages are delivered to the first registered subscription whose
// filter matches the topic, in registration order. A message no filter
// matches is acknowledged by the broker itself so an awaiting scenario
// never deadlocks on it.
package hub
