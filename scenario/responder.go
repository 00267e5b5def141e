package scenario

import (
	"context"
	"fmt"

	"github.com/eclipse/paho.golang/paho"

	"github.com/roach88/fermata/hub"
)

// Responder is a canned request handler subscribed during the prologue. It
// stands in for protocol code under test: delivered messages are
// acknowledged and answered through the same broker surface real handlers
// use, so pushed outcomes and the recorded message log apply to it.
type Responder struct {
	broker *hub.Broker
	spec   ResponderSpec
}

// NewResponder subscribes the responder through Broker.Subscribe. A pushed
// subscribe outcome of fail or drop affects it like any other subscriber.
func NewResponder(ctx context.Context, broker *hub.Broker, spec ResponderSpec) (*Responder, error) {
	r := &Responder{broker: broker, spec: spec}
	if err := broker.Subscribe(ctx, spec.Filter, r.handle); err != nil {
		return nil, fmt.Errorf("responder subscribe %q: %w", spec.Filter, err)
	}
	return r, nil
}

// Filter returns the topic filter the responder subscribed with.
func (r *Responder) Filter() string {
	return r.spec.Filter
}

func (r *Responder) handle(ctx context.Context, d *hub.Delivery) error {
	if r.spec.Ack == nil || *r.spec.Ack {
		d.Ack()
	}
	if r.spec.Reply == nil {
		return nil
	}
	reply, err := r.buildReply(d.Packet)
	if err != nil {
		return err
	}
	return r.broker.Publish(ctx, reply)
}

// buildReply shapes the reply from the template. The topic falls back to
// the request's response topic; correlation data is copied unless the
// template disables it.
func (r *Responder) buildReply(req *paho.Publish) (*paho.Publish, error) {
	tmpl := r.spec.Reply

	topic := ""
	if tmpl.Topic != nil {
		topic = *tmpl.Topic
	} else if req.Properties != nil {
		topic = req.Properties.ResponseTopic
	}
	if topic == "" {
		return nil, fmt.Errorf("reply to %q has no topic: template and request response topic are both empty", req.Topic)
	}

	reply := &paho.Publish{
		Topic:      topic,
		QoS:        req.QoS,
		Properties: &paho.PublishProperties{},
	}
	if tmpl.Qos != nil {
		reply.QoS = byte(*tmpl.Qos)
	}
	if tmpl.Payload != nil {
		reply.Payload = []byte(*tmpl.Payload)
	}
	if tmpl.ContentType != nil {
		reply.Properties.ContentType = *tmpl.ContentType
	}
	if tmpl.CopyCorrelation == nil || *tmpl.CopyCorrelation {
		if req.Properties != nil && req.Properties.CorrelationData != nil {
			reply.Properties.CorrelationData = append([]byte(nil), req.Properties.CorrelationData...)
		}
	}
	for k, v := range tmpl.Metadata {
		reply.Properties.User = append(reply.Properties.User, paho.UserProperty{Key: k, Value: v})
	}
	return reply, nil
}
