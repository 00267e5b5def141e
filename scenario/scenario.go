package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fermata/hub"
)

// PushAcks seeds the broker's acknowledgement outcome queues before any
// action runs. Unlisted operations acknowledge with success.
type PushAcks struct {
	Publish     []hub.AckKind `yaml:"publish"`
	Subscribe   []hub.AckKind `yaml:"subscribe"`
	Unsubscribe []hub.AckKind `yaml:"unsubscribe"`
}

// ReplyTemplate shapes the message a responder publishes back. A nil topic
// falls back to the request's response topic; correlation data is copied
// from the request unless copy-correlation is false.
type ReplyTemplate struct {
	Topic           *string           `yaml:"topic"`
	Payload         *string           `yaml:"payload"`
	ContentType     *string           `yaml:"content-type"`
	Metadata        map[string]string `yaml:"metadata"`
	Qos             *int              `yaml:"qos"`
	CopyCorrelation *bool             `yaml:"copy-correlation"`
}

// ResponderSpec subscribes a canned request handler during the prologue.
// Delivered messages are acknowledged unless ack is false, and answered
// with the reply template when one is given.
type ResponderSpec struct {
	Filter string         `yaml:"filter"`
	Ack    *bool          `yaml:"ack"`
	Reply  *ReplyTemplate `yaml:"reply"`
}

// Prologue describes the fixture state established before the first action.
type Prologue struct {
	PushAcks        PushAcks        `yaml:"push-acks"`
	CountdownEvents map[string]int  `yaml:"countdown-events"`
	Responders      []ResponderSpec `yaml:"responders"`
	Ceiling         *Duration       `yaml:"ceiling"`
}

// PublishedMessage is an epilogue expectation against one recorded outbound
// message. Payload defaults to false, meaning "do not check"; an explicit
// null asserts an empty payload.
type PublishedMessage struct {
	CorrelationIndex *int              `yaml:"correlation-index"`
	Topic            *string           `yaml:"topic"`
	Payload          any               `yaml:"payload"`
	Metadata         map[string]string `yaml:"metadata"`
}

func (m *PublishedMessage) UnmarshalYAML(node *yaml.Node) error {
	type plain PublishedMessage
	out := plain{Payload: false}
	if err := node.Decode(&out); err != nil {
		return err
	}
	*m = PublishedMessage(out)
	return nil
}

// Epilogue describes the expected end state once every action has run.
// Nil fields are not checked.
type Epilogue struct {
	SubscribedTopics     []string           `yaml:"subscribed-topics"`
	PublicationCount     *int               `yaml:"publication-count"`
	PublishedMessages    []PublishedMessage `yaml:"published-messages"`
	AcknowledgementCount *int               `yaml:"acknowledgement-count"`
}

// Scenario is one scenario file: fixture state, ordered actions, and the
// expected end state.
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Prologue    Prologue `yaml:"prologue"`
	Actions     []Action `yaml:"actions"`
	Epilogue    Epilogue `yaml:"epilogue"`
}

// Parse decodes scenario YAML with strict field checking at the top level.
// Unknown action tags fail; unknown fields inside action bodies are caught
// by Vet, which runs the embedded CUE schema over the raw document.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validate(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &sc, nil
}

// Load reads and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func validate(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("missing required field: name")
	}
	for name, count := range sc.Prologue.CountdownEvents {
		if count < 0 {
			return fmt.Errorf("countdown event %q has negative count %d", name, count)
		}
	}
	for i, r := range sc.Prologue.Responders {
		if r.Filter == "" {
			return fmt.Errorf("responder %d is missing a topic filter", i)
		}
	}
	for i, a := range sc.Actions {
		if a.Kind != Sync {
			continue
		}
		body := a.AsSync()
		if body.SignalEvent == nil && body.WaitEvent == nil {
			return fmt.Errorf("action %d: sync names neither signal-event nor wait-event", i)
		}
		for _, event := range []*string{body.SignalEvent, body.WaitEvent} {
			if event == nil {
				continue
			}
			if _, ok := sc.Prologue.CountdownEvents[*event]; !ok {
				return fmt.Errorf("action %d: sync references undeclared event %q", i, *event)
			}
		}
	}
	return nil
}
