package hub

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AckKind is an injected acknowledgement outcome consumed by one broker
// operation. The zero value is Success, which is also the default when an
// outcome queue is empty.
type AckKind int

const (
	// Success acknowledges the operation normally.
	Success AckKind = iota
	// Fail rejects the operation with a broker-level error.
	Fail
	// Drop swallows the operation: no acknowledgement is ever produced.
	Drop
)

// String returns the scenario-file spelling of the outcome.
func (k AckKind) String() string {
	switch k {
	case Success:
		return "success"
	case Fail:
		return "fail"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("ackkind(%d)", int(k))
	}
}

// UnmarshalYAML decodes an outcome from its scenario-file spelling.
func (k *AckKind) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.New("ack kind must be a scalar")
	}
	switch value.Value {
	case "success":
		*k = Success
	case "fail":
		*k = Fail
	case "drop":
		*k = Drop
	default:
		return fmt.Errorf("unrecognized ack kind %q", value.Value)
	}
	return nil
}
