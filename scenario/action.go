package scenario

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ActionKind identifies one member of the closed action set.
type ActionKind int

const (
	AwaitAck ActionKind = iota
	AwaitPublish
	Disconnect
	FreezeTime
	ReceiveRequest
	ReceiveResponse
	ReceiveTelemetry
	Sleep
	Sync
	UnfreezeTime
)

// String returns the YAML tag for the kind.
func (k ActionKind) String() string {
	switch k {
	case AwaitAck:
		return "await acknowledgement"
	case AwaitPublish:
		return "await publish"
	case Disconnect:
		return "disconnect"
	case FreezeTime:
		return "freeze time"
	case ReceiveRequest:
		return "receive request"
	case ReceiveResponse:
		return "receive response"
	case ReceiveTelemetry:
		return "receive telemetry"
	case Sleep:
		return "sleep"
	case Sync:
		return "sync"
	case UnfreezeTime:
		return "unfreeze time"
	default:
		return fmt.Sprintf("actionkind(%d)", int(k))
	}
}

// AwaitAckAction waits for the next acknowledgement sent back to the broker
// and records its packet ID under packet-index.
type AwaitAckAction struct {
	PacketIndex *int `yaml:"packet-index"`
}

// AwaitPublishAction waits for the next outbound publish and records its
// correlation data under correlation-index.
type AwaitPublishAction struct {
	CorrelationIndex *int `yaml:"correlation-index"`
}

// ReceiveRequestAction delivers an inbound request message to the broker.
type ReceiveRequestAction struct {
	Topic            *string           `yaml:"topic"`
	Payload          *string           `yaml:"payload"`
	ContentType      *string           `yaml:"content-type"`
	FormatIndicator  *int              `yaml:"format-indicator"`
	Metadata         map[string]string `yaml:"metadata"`
	CorrelationIndex *int              `yaml:"correlation-index"`
	CorrelationID    *string           `yaml:"correlation-id"`
	Qos              *int              `yaml:"qos"`
	MessageExpiry    *Duration         `yaml:"message-expiry"`
	ResponseTopic    *string           `yaml:"response-topic"`
	PacketIndex      *int              `yaml:"packet-index"`
}

// ReceiveResponseAction delivers an inbound response message to the broker.
type ReceiveResponseAction struct {
	Topic                *string           `yaml:"topic"`
	Payload              *string           `yaml:"payload"`
	ContentType          *string           `yaml:"content-type"`
	FormatIndicator      *int              `yaml:"format-indicator"`
	Metadata             map[string]string `yaml:"metadata"`
	CorrelationIndex     *int              `yaml:"correlation-index"`
	CorrelationID        *string           `yaml:"correlation-id"`
	Qos                  *int              `yaml:"qos"`
	MessageExpiry        *Duration         `yaml:"message-expiry"`
	Status               *string           `yaml:"status"`
	StatusMessage        *string           `yaml:"status-message"`
	IsApplicationError   *string           `yaml:"is-application-error"`
	InvalidPropertyName  *string           `yaml:"invalid-property-name"`
	InvalidPropertyValue *string           `yaml:"invalid-property-value"`
	PacketIndex          *int              `yaml:"packet-index"`
}

// ReceiveTelemetryAction delivers an inbound telemetry message to the broker.
type ReceiveTelemetryAction struct {
	Topic           *string           `yaml:"topic"`
	Payload         *string           `yaml:"payload"`
	ContentType     *string           `yaml:"content-type"`
	FormatIndicator *int              `yaml:"format-indicator"`
	Metadata        map[string]string `yaml:"metadata"`
	Qos             *int              `yaml:"qos"`
	MessageExpiry   *Duration         `yaml:"message-expiry"`
	SourceIndex     *int              `yaml:"source-index"`
	PacketIndex     *int              `yaml:"packet-index"`
}

// SleepAction advances through the given span of virtual time.
type SleepAction struct {
	Duration Duration `yaml:"duration"`
}

// SyncAction signals and/or waits on named countdown events from the
// prologue's countdown-events table.
type SyncAction struct {
	SignalEvent *string `yaml:"signal-event"`
	WaitEvent   *string `yaml:"wait-event"`
}

// Action is one step of a scenario. Kind selects the payload; the bodyless
// kinds (disconnect, freeze time, unfreeze time) carry none.
type Action struct {
	Kind ActionKind
	Body any
}

func (a *Action) AsAwaitAck() *AwaitAckAction {
	if body, ok := a.Body.(AwaitAckAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsAwaitPublish() *AwaitPublishAction {
	if body, ok := a.Body.(AwaitPublishAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsReceiveRequest() *ReceiveRequestAction {
	if body, ok := a.Body.(ReceiveRequestAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsReceiveResponse() *ReceiveResponseAction {
	if body, ok := a.Body.(ReceiveResponseAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsReceiveTelemetry() *ReceiveTelemetryAction {
	if body, ok := a.Body.(ReceiveTelemetryAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsSleep() *SleepAction {
	if body, ok := a.Body.(SleepAction); ok {
		return &body
	}
	return nil
}

func (a *Action) AsSync() *SyncAction {
	if body, ok := a.Body.(SyncAction); ok {
		return &body
	}
	return nil
}

type actionEnvelope struct {
	Action string `yaml:"action"`
}

// UnmarshalYAML decodes the action tag first, then the body for the tag.
// Tags outside the closed set are errors.
func (a *Action) UnmarshalYAML(node *yaml.Node) error {
	*a = Action{}

	var envelope actionEnvelope
	if err := node.Decode(&envelope); err != nil {
		return err
	}

	var err error
	switch envelope.Action {
	default:
		return fmt.Errorf("unrecognized action %q", envelope.Action)
	case "await acknowledgement":
		a.Kind = AwaitAck
		var body AwaitAckAction
		err = node.Decode(&body)
		a.Body = body
	case "await publish":
		a.Kind = AwaitPublish
		var body AwaitPublishAction
		err = node.Decode(&body)
		a.Body = body
	case "disconnect":
		a.Kind = Disconnect
		return nil
	case "freeze time":
		a.Kind = FreezeTime
		return nil
	case "receive request":
		a.Kind = ReceiveRequest
		var body ReceiveRequestAction
		err = node.Decode(&body)
		a.Body = body
	case "receive response":
		a.Kind = ReceiveResponse
		var body ReceiveResponseAction
		err = node.Decode(&body)
		a.Body = body
	case "receive telemetry":
		a.Kind = ReceiveTelemetry
		var body ReceiveTelemetryAction
		err = node.Decode(&body)
		a.Body = body
	case "sleep":
		a.Kind = Sleep
		var body SleepAction
		err = node.Decode(&body)
		a.Body = body
	case "sync":
		a.Kind = Sync
		var body SyncAction
		err = node.Decode(&body)
		a.Body = body
	case "unfreeze time":
		a.Kind = UnfreezeTime
		return nil
	}

	return err
}
