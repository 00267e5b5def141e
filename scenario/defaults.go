package scenario

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed defaults.toml
var builtinDefaultsTOML string

// ReceiveRequestDefaults fills nil fields of receive request actions.
type ReceiveRequestDefaults struct {
	Topic            *string   `toml:"topic"`
	Payload          *string   `toml:"payload"`
	ContentType      *string   `toml:"content-type"`
	FormatIndicator  *int      `toml:"format-indicator"`
	CorrelationIndex *int      `toml:"correlation-index"`
	Qos              *int      `toml:"qos"`
	MessageExpiry    *Duration `toml:"message-expiry"`
	ResponseTopic    *string   `toml:"response-topic"`
}

// ReceiveResponseDefaults fills nil fields of receive response actions.
type ReceiveResponseDefaults struct {
	Topic            *string   `toml:"topic"`
	Payload          *string   `toml:"payload"`
	ContentType      *string   `toml:"content-type"`
	FormatIndicator  *int      `toml:"format-indicator"`
	CorrelationIndex *int      `toml:"correlation-index"`
	Qos              *int      `toml:"qos"`
	MessageExpiry    *Duration `toml:"message-expiry"`
	Status           *string   `toml:"status"`
	StatusMessage    *string   `toml:"status-message"`
}

// ReceiveTelemetryDefaults fills nil fields of receive telemetry actions.
type ReceiveTelemetryDefaults struct {
	Topic           *string   `toml:"topic"`
	Payload         *string   `toml:"payload"`
	ContentType     *string   `toml:"content-type"`
	FormatIndicator *int      `toml:"format-indicator"`
	Qos             *int      `toml:"qos"`
	MessageExpiry   *Duration `toml:"message-expiry"`
	SourceIndex     *int      `toml:"source-index"`
}

// ActionDefaults groups the per-kind receive defaults.
type ActionDefaults struct {
	ReceiveRequest   ReceiveRequestDefaults   `toml:"receive-request"`
	ReceiveResponse  ReceiveResponseDefaults  `toml:"receive-response"`
	ReceiveTelemetry ReceiveTelemetryDefaults `toml:"receive-telemetry"`
}

// Defaults is the TOML defaults document. It is loaded once and passed to a
// Loader; nothing in this package holds default state.
type Defaults struct {
	Ceiling Duration       `toml:"ceiling"`
	MinTick Duration       `toml:"min-tick"`
	Actions ActionDefaults `toml:"actions"`
}

// BuiltinDefaults parses the embedded defaults file.
func BuiltinDefaults() (Defaults, error) {
	d, err := parseDefaults(builtinDefaultsTOML)
	if err != nil {
		return Defaults{}, fmt.Errorf("embedded defaults: %w", err)
	}
	return d, nil
}

// LoadDefaults reads a defaults TOML file. Keys outside the schema are
// errors.
func LoadDefaults(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Defaults{}, fmt.Errorf("failed to read defaults file: %w", err)
	}
	d, err := parseDefaults(string(data))
	if err != nil {
		return Defaults{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func parseDefaults(data string) (Defaults, error) {
	var d Defaults
	md, err := toml.Decode(data, &d)
	if err != nil {
		return Defaults{}, fmt.Errorf("failed to parse defaults TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Defaults{}, fmt.Errorf("unrecognized defaults key %q", undecoded[0].String())
	}
	return d, nil
}

// Loader decodes scenario files and fills receive actions from a Defaults
// value.
type Loader struct {
	Defaults Defaults
}

// Load reads and parses a scenario file, then applies defaults.
func (l *Loader) Load(path string) (*Scenario, error) {
	sc, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.Apply(sc)
	return sc, nil
}

// Apply fills nil fields of every receive action from the defaults. Fields
// set in the scenario file always win.
func (l *Loader) Apply(sc *Scenario) {
	for i := range sc.Actions {
		a := &sc.Actions[i]
		switch a.Kind {
		case ReceiveRequest:
			body := a.AsReceiveRequest()
			d := l.Defaults.Actions.ReceiveRequest
			fill(&body.Topic, d.Topic)
			fill(&body.Payload, d.Payload)
			fill(&body.ContentType, d.ContentType)
			fill(&body.FormatIndicator, d.FormatIndicator)
			fill(&body.CorrelationIndex, d.CorrelationIndex)
			fill(&body.Qos, d.Qos)
			fill(&body.MessageExpiry, d.MessageExpiry)
			fill(&body.ResponseTopic, d.ResponseTopic)
			a.Body = *body
		case ReceiveResponse:
			body := a.AsReceiveResponse()
			d := l.Defaults.Actions.ReceiveResponse
			fill(&body.Topic, d.Topic)
			fill(&body.Payload, d.Payload)
			fill(&body.ContentType, d.ContentType)
			fill(&body.FormatIndicator, d.FormatIndicator)
			fill(&body.CorrelationIndex, d.CorrelationIndex)
			fill(&body.Qos, d.Qos)
			fill(&body.MessageExpiry, d.MessageExpiry)
			fill(&body.Status, d.Status)
			fill(&body.StatusMessage, d.StatusMessage)
			a.Body = *body
		case ReceiveTelemetry:
			body := a.AsReceiveTelemetry()
			d := l.Defaults.Actions.ReceiveTelemetry
			fill(&body.Topic, d.Topic)
			fill(&body.Payload, d.Payload)
			fill(&body.ContentType, d.ContentType)
			fill(&body.FormatIndicator, d.FormatIndicator)
			fill(&body.Qos, d.Qos)
			fill(&body.MessageExpiry, d.MessageExpiry)
			fill(&body.SourceIndex, d.SourceIndex)
			a.Body = *body
		}
	}
}

// fill copies src into *dst when the scenario left the field unset.
func fill[T any](dst **T, src *T) {
	if *dst == nil && src != nil {
		v := *src
		*dst = &v
	}
}
