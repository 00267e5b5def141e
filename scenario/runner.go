package scenario

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"

	"github.com/roach88/fermata/clock"
	"github.com/roach88/fermata/hub"
	"github.com/roach88/fermata/internal/canon"
	"github.com/roach88/fermata/syncutil"
)

// Reserved user property keys of the simulated protocol.
const (
	propSourceID         = "__srcId"
	propStatus           = "__stat"
	propStatusMessage    = "__stMsg"
	propIsApplicationErr = "__apErr"
	propInvalidName      = "__propName"
	propInvalidValue     = "__propVal"
)

const defaultCeiling = 10 * time.Second

// Recorder receives transcript events as a run progresses. Detail is
// canonical JSON.
type Recorder interface {
	RecordEvent(ctx context.Context, seq int, kind string, detail []byte) error
}

// Event is one transcript entry. Events carry no wall-clock timestamps, so
// a scenario that pins its correlation ids replays to an identical
// transcript.
type Event struct {
	Seq    int
	Kind   string
	Detail []byte
}

// Report is the verdict for one scenario run. The runner reports scenario
// failures here rather than as errors; Run returns an error only when the
// scenario cannot be executed at all.
type Report struct {
	Scenario string
	Pass     bool
	Failures []string
	Events   []Event
}

// RunnerConfig configures a Runner. The zero value runs with builtin
// settings and no transcript sink.
type RunnerConfig struct {
	Defaults Defaults
	Log      *slog.Logger
	Recorder Recorder

	// Ceiling bounds every blocking step in real time. It overrides the
	// defaults document; a scenario prologue ceiling overrides both.
	Ceiling time.Duration
}

// Runner replays scenarios, one fresh clock and broker pair per run.
type Runner struct {
	defaults Defaults
	log      *slog.Logger
	rec      Recorder
	ceiling  time.Duration
}

// NewRunner creates a runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		defaults: cfg.Defaults,
		log:      log,
		rec:      cfg.Recorder,
		ceiling:  cfg.Ceiling,
	}
}

// runState is the per-run mutable state: the clock and broker pair, the
// index tables that bind scenario indices to generated identifiers, and
// the freeze ticket stack.
type runState struct {
	sc      *Scenario
	clk     *clock.Clock
	broker  *hub.Broker
	tickets []clock.Ticket
	corr    map[int][]byte
	packets map[int]uint16
	sources map[int]string
	events  map[string]*syncutil.Countdown
	seq     int
	report  *Report
}

// Run replays one scenario. Every blocking step is bounded by the resolved
// ceiling in real time, so a scenario that hangs under a frozen clock still
// terminates with a failure.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Report, error) {
	st := &runState{
		sc:      sc,
		clk:     clock.New(clock.Config{MinTick: r.defaults.MinTick.ToDuration()}),
		corr:    make(map[int][]byte),
		packets: make(map[int]uint16),
		sources: make(map[int]string),
		events:  make(map[string]*syncutil.Countdown),
		report:  &Report{Scenario: sc.Name, Pass: true},
	}
	st.broker = hub.New(hub.Config{Log: r.log})
	st.broker.OnDisconnect(func() {
		r.log.Debug("broker disconnected", "scenario", sc.Name)
	})
	if err := st.broker.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting broker: %w", err)
	}

	if err := r.emit(ctx, st, "start", map[string]any{"scenario": sc.Name}); err != nil {
		return nil, err
	}

	ceiling := r.ceilingFor(sc)
	if err := r.applyPrologue(ctx, st, ceiling); err != nil {
		return nil, fmt.Errorf("prologue: %w", err)
	}

	for i := range sc.Actions {
		a := &sc.Actions[i]
		detail, stepErr := r.step(ctx, st, a, ceiling)
		if stepErr != nil {
			r.fail(st, fmt.Sprintf("action %d (%s): %v", i, a.Kind, stepErr))
			break
		}
		if err := r.emit(ctx, st, a.Kind.String(), detail); err != nil {
			return nil, err
		}
	}

	if st.report.Pass {
		r.checkEpilogue(st)
	}

	failures := make([]any, len(st.report.Failures))
	for i, f := range st.report.Failures {
		failures[i] = f
	}
	verdict := map[string]any{"pass": st.report.Pass, "failures": failures}
	if err := r.emit(ctx, st, "verdict", verdict); err != nil {
		return nil, err
	}
	return st.report, nil
}

// ceilingFor resolves the real-time bound for blocking steps. The scenario
// prologue wins over the runner config, which wins over the defaults
// document.
func (r *Runner) ceilingFor(sc *Scenario) time.Duration {
	if sc.Prologue.Ceiling != nil {
		return sc.Prologue.Ceiling.ToDuration()
	}
	if r.ceiling > 0 {
		return r.ceiling
	}
	if !r.defaults.Ceiling.IsZero() {
		return r.defaults.Ceiling.ToDuration()
	}
	return defaultCeiling
}

func (r *Runner) applyPrologue(ctx context.Context, st *runState, ceiling time.Duration) error {
	p := &st.sc.Prologue

	for _, k := range p.PushAcks.Publish {
		st.broker.EnqueuePublishAck(k)
	}
	for _, k := range p.PushAcks.Subscribe {
		st.broker.EnqueueSubscribeAck(k)
	}
	for _, k := range p.PushAcks.Unsubscribe {
		st.broker.EnqueueUnsubscribeAck(k)
	}

	names := make([]string, 0, len(p.CountdownEvents))
	for name := range p.CountdownEvents {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st.events[name] = syncutil.NewCountdown(p.CountdownEvents[name], 1)
	}

	for _, spec := range p.Responders {
		subCtx, cancel := context.WithTimeout(ctx, ceiling)
		_, err := NewResponder(subCtx, st.broker, spec)
		cancel()
		detail := map[string]any{"filter": spec.Filter}
		if err != nil {
			// An injected fail or drop outcome lands here. The attempt is
			// recorded on the broker either way; the scenario's epilogue
			// decides whether that matters.
			detail["error"] = err.Error()
			r.log.Warn("responder subscribe rejected",
				"scenario", st.sc.Name, "filter", spec.Filter, "error", err)
		}
		if err := r.emit(ctx, st, "subscribe", detail); err != nil {
			return err
		}
	}
	return nil
}

// step executes one action and returns the transcript detail for its event.
// A non-nil error is a scenario failure, not a runner fault.
func (r *Runner) step(ctx context.Context, st *runState, a *Action, ceiling time.Duration) (map[string]any, error) {
	switch a.Kind {
	case AwaitAck:
		return r.stepAwaitAck(ctx, st, a.AsAwaitAck(), ceiling)
	case AwaitPublish:
		return r.stepAwaitPublish(ctx, st, a.AsAwaitPublish(), ceiling)
	case Disconnect:
		st.broker.Disconnect()
		return map[string]any{}, nil
	case FreezeTime:
		ticket := st.clk.Freeze()
		st.tickets = append(st.tickets, ticket)
		return map[string]any{"depth": len(st.tickets)}, nil
	case UnfreezeTime:
		if len(st.tickets) == 0 {
			return nil, fmt.Errorf("unfreeze with no outstanding freeze")
		}
		ticket := st.tickets[len(st.tickets)-1]
		st.tickets = st.tickets[:len(st.tickets)-1]
		st.clk.Unfreeze(ticket)
		return map[string]any{"depth": len(st.tickets)}, nil
	case ReceiveRequest, ReceiveResponse, ReceiveTelemetry:
		return r.stepReceive(ctx, st, a, ceiling)
	case Sleep:
		return r.stepSleep(ctx, st, a.AsSleep(), ceiling)
	case Sync:
		return r.stepSync(ctx, st, a.AsSync(), ceiling)
	default:
		return nil, fmt.Errorf("unsupported action kind %v", a.Kind)
	}
}

func (r *Runner) stepAwaitAck(ctx context.Context, st *runState, body *AwaitAckAction, ceiling time.Duration) (map[string]any, error) {
	waitCtx, cancel := context.WithTimeout(ctx, ceiling)
	packetID, err := st.broker.AwaitAck(waitCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("awaiting acknowledgement: %w", err)
	}

	detail := map[string]any{"packet-id": int(packetID)}
	if body.PacketIndex != nil {
		detail["packet-index"] = *body.PacketIndex
		if want, ok := st.packets[*body.PacketIndex]; ok {
			if want != packetID {
				return nil, fmt.Errorf("acknowledged packet %d, want %d for packet-index %d",
					packetID, want, *body.PacketIndex)
			}
		} else {
			st.packets[*body.PacketIndex] = packetID
		}
	}
	return detail, nil
}

func (r *Runner) stepAwaitPublish(ctx context.Context, st *runState, body *AwaitPublishAction, ceiling time.Duration) (map[string]any, error) {
	waitCtx, cancel := context.WithTimeout(ctx, ceiling)
	corr, err := st.broker.AwaitPublish(waitCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("awaiting publish: %w", err)
	}

	detail := map[string]any{"correlation": hex.EncodeToString(corr)}
	if body.CorrelationIndex != nil {
		detail["correlation-index"] = *body.CorrelationIndex
		if want, ok := st.corr[*body.CorrelationIndex]; ok {
			if string(want) != string(corr) {
				return nil, fmt.Errorf("published correlation %x, want %x for correlation-index %d",
					corr, want, *body.CorrelationIndex)
			}
		} else {
			st.corr[*body.CorrelationIndex] = corr
		}
	}
	return detail, nil
}

func (r *Runner) stepSleep(ctx context.Context, st *runState, body *SleepAction, ceiling time.Duration) (map[string]any, error) {
	d := body.Duration.ToDuration()
	waitCtx, cancel := context.WithTimeout(ctx, ceiling)
	err := st.clk.WaitFor(waitCtx, d)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("sleep: %w", err)
	}
	return map[string]any{"duration-us": int(d / time.Microsecond)}, nil
}

func (r *Runner) stepSync(ctx context.Context, st *runState, body *SyncAction, ceiling time.Duration) (map[string]any, error) {
	detail := map[string]any{}
	if body.WaitEvent != nil {
		detail["wait-event"] = *body.WaitEvent
		waitCtx, cancel := context.WithTimeout(ctx, ceiling)
		err := st.events[*body.WaitEvent].Wait(waitCtx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("waiting on event %q: %w", *body.WaitEvent, err)
		}
	}
	if body.SignalEvent != nil {
		detail["signal-event"] = *body.SignalEvent
		st.events[*body.SignalEvent].Signal()
	}
	return detail, nil
}

func (r *Runner) stepReceive(ctx context.Context, st *runState, a *Action, ceiling time.Duration) (map[string]any, error) {
	var in inbound
	switch a.Kind {
	case ReceiveRequest:
		body := a.AsReceiveRequest()
		in = inbound{
			topic:            body.Topic,
			payload:          body.Payload,
			contentType:      body.ContentType,
			formatIndicator:  body.FormatIndicator,
			metadata:         body.Metadata,
			correlationIndex: body.CorrelationIndex,
			correlationID:    body.CorrelationID,
			qos:              body.Qos,
			messageExpiry:    body.MessageExpiry,
			responseTopic:    body.ResponseTopic,
			packetIndex:      body.PacketIndex,
		}
	case ReceiveResponse:
		body := a.AsReceiveResponse()
		in = inbound{
			topic:            body.Topic,
			payload:          body.Payload,
			contentType:      body.ContentType,
			formatIndicator:  body.FormatIndicator,
			metadata:         body.Metadata,
			correlationIndex: body.CorrelationIndex,
			correlationID:    body.CorrelationID,
			qos:              body.Qos,
			messageExpiry:    body.MessageExpiry,
			status:           body.Status,
			statusMessage:    body.StatusMessage,
			isAppError:       body.IsApplicationError,
			invalidPropName:  body.InvalidPropertyName,
			invalidPropValue: body.InvalidPropertyValue,
			packetIndex:      body.PacketIndex,
		}
	case ReceiveTelemetry:
		body := a.AsReceiveTelemetry()
		in = inbound{
			topic:           body.Topic,
			payload:         body.Payload,
			contentType:     body.ContentType,
			formatIndicator: body.FormatIndicator,
			metadata:        body.Metadata,
			qos:             body.Qos,
			messageExpiry:   body.MessageExpiry,
			sourceIndex:     body.SourceIndex,
			packetIndex:     body.PacketIndex,
		}
	}

	pkt, err := st.buildInbound(in)
	if err != nil {
		return nil, fmt.Errorf("building inbound message: %w", err)
	}

	deliverCtx, cancel := context.WithTimeout(ctx, ceiling)
	err = st.broker.Deliver(deliverCtx, pkt)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("delivering to %q: %w", pkt.Topic, err)
	}

	return map[string]any{
		"topic":     pkt.Topic,
		"packet-id": int(pkt.PacketID),
		"qos":       int(pkt.QoS),
	}, nil
}

// inbound is the union of the receive action bodies.
type inbound struct {
	topic            *string
	payload          *string
	contentType      *string
	formatIndicator  *int
	metadata         map[string]string
	correlationIndex *int
	correlationID    *string
	qos              *int
	messageExpiry    *Duration
	responseTopic    *string
	status           *string
	statusMessage    *string
	isAppError       *string
	invalidPropName  *string
	invalidPropValue *string
	sourceIndex      *int
	packetIndex      *int
}

// buildInbound shapes a broker packet from a receive action. Correlation,
// packet, and source indices bind to generated identifiers on first use and
// resolve to the same identifier on every later use.
func (st *runState) buildInbound(in inbound) (*paho.Publish, error) {
	if in.topic == nil || *in.topic == "" {
		return nil, fmt.Errorf("no topic: set one in the action or the defaults document")
	}

	props := &paho.PublishProperties{}

	if in.sourceIndex != nil {
		id, ok := st.sources[*in.sourceIndex]
		if !ok {
			u, err := uuid.NewV7()
			if err != nil {
				return nil, fmt.Errorf("generating source id: %w", err)
			}
			id = u.String()
			st.sources[*in.sourceIndex] = id
		}
		props.User = append(props.User, paho.UserProperty{Key: propSourceID, Value: id})
	}

	if in.correlationIndex != nil {
		corr, ok := st.corr[*in.correlationIndex]
		if !ok {
			if in.correlationID != nil {
				corr = []byte(*in.correlationID)
			} else {
				u, err := uuid.NewV7()
				if err != nil {
					return nil, fmt.Errorf("generating correlation id: %w", err)
				}
				corr = u[:]
			}
			st.corr[*in.correlationIndex] = corr
		}
		props.CorrelationData = corr
	}

	if in.contentType != nil {
		props.ContentType = *in.contentType
	}
	if in.formatIndicator != nil {
		format := byte(*in.formatIndicator)
		props.PayloadFormat = &format
	}
	if in.messageExpiry != nil {
		expiry := uint32(in.messageExpiry.ToDuration() / time.Second)
		props.MessageExpiry = &expiry
	}
	if in.responseTopic != nil {
		props.ResponseTopic = *in.responseTopic
	}

	if in.status != nil {
		props.User = append(props.User, paho.UserProperty{Key: propStatus, Value: *in.status})
	}
	if in.statusMessage != nil {
		props.User = append(props.User, paho.UserProperty{Key: propStatusMessage, Value: *in.statusMessage})
	}
	if in.isAppError != nil {
		props.User = append(props.User, paho.UserProperty{Key: propIsApplicationErr, Value: *in.isAppError})
	}
	if in.invalidPropName != nil {
		props.User = append(props.User, paho.UserProperty{Key: propInvalidName, Value: *in.invalidPropName})
	}
	if in.invalidPropValue != nil {
		props.User = append(props.User, paho.UserProperty{Key: propInvalidValue, Value: *in.invalidPropValue})
	}

	keys := make([]string, 0, len(in.metadata))
	for k := range in.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		props.User = append(props.User, paho.UserProperty{Key: k, Value: in.metadata[k]})
	}

	var packetID uint16
	if in.packetIndex != nil {
		id, ok := st.packets[*in.packetIndex]
		if !ok {
			id = st.broker.NextPacketID()
			st.packets[*in.packetIndex] = id
		}
		packetID = id
	} else {
		packetID = st.broker.NextPacketID()
	}

	pkt := &paho.Publish{
		PacketID:   packetID,
		Topic:      *in.topic,
		Properties: props,
	}
	if in.payload != nil {
		pkt.Payload = []byte(*in.payload)
	}
	if in.qos != nil {
		pkt.QoS = byte(*in.qos)
	}
	return pkt, nil
}

func (r *Runner) checkEpilogue(st *runState) {
	ep := &st.sc.Epilogue

	for _, topic := range ep.SubscribedTopics {
		if !st.broker.HasSubscribed(topic) {
			r.fail(st, fmt.Sprintf("epilogue: expected subscription to %q, have %v",
				topic, st.broker.SubscribedTopics()))
		}
	}
	if ep.PublicationCount != nil {
		if got := st.broker.PublicationCount(); got != int64(*ep.PublicationCount) {
			r.fail(st, fmt.Sprintf("epilogue: publication count %d, want %d",
				got, *ep.PublicationCount))
		}
	}
	if ep.AcknowledgementCount != nil {
		if got := st.broker.AcknowledgementCount(); got != int64(*ep.AcknowledgementCount) {
			r.fail(st, fmt.Sprintf("epilogue: acknowledgement count %d, want %d",
				got, *ep.AcknowledgementCount))
		}
	}
	for i, pm := range ep.PublishedMessages {
		r.checkPublished(st, i, pm)
	}
}

// checkPublished matches one expectation against the recorded outbound
// messages, by correlation when an index is given and by publish sequence
// position otherwise.
func (r *Runner) checkPublished(st *runState, i int, pm PublishedMessage) {
	var msg *paho.Publish
	var ok bool
	if pm.CorrelationIndex != nil {
		key, bound := st.corr[*pm.CorrelationIndex]
		if !bound {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: correlation-index %d was never used",
				i, *pm.CorrelationIndex))
			return
		}
		msg, ok = st.broker.PublishedByCorrelation(key)
		if !ok {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: nothing published with correlation-index %d",
				i, *pm.CorrelationIndex))
			return
		}
	} else {
		msg, ok = st.broker.Published(i)
		if !ok {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: only %d messages were published",
				i, len(st.broker.PublishedMessages())))
			return
		}
	}

	if pm.Topic != nil && msg.Topic != *pm.Topic {
		r.fail(st, fmt.Sprintf("epilogue: published message %d: topic %q, want %q",
			i, msg.Topic, *pm.Topic))
	}

	switch payload := pm.Payload.(type) {
	case bool:
		// Absent in the scenario file; not checked.
	case nil:
		if len(msg.Payload) != 0 {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: payload %q, want empty",
				i, msg.Payload))
		}
	case string:
		if string(msg.Payload) != payload {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: payload %q, want %q",
				i, msg.Payload, payload))
		}
	default:
		r.fail(st, fmt.Sprintf("epilogue: published message %d: unsupported payload expectation %T",
			i, pm.Payload))
	}

	// An empty expected value asserts the property is absent.
	for key, want := range pm.Metadata {
		got, present := userProperty(msg, key)
		if want == "" {
			if present {
				r.fail(st, fmt.Sprintf("epilogue: published message %d: property %q present with %q, want absent",
					i, key, got))
			}
			continue
		}
		if !present {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: property %q missing, want %q",
				i, key, want))
			continue
		}
		if got != want {
			r.fail(st, fmt.Sprintf("epilogue: published message %d: property %q is %q, want %q",
				i, key, got, want))
		}
	}
}

func userProperty(p *paho.Publish, key string) (string, bool) {
	if p.Properties == nil {
		return "", false
	}
	for _, u := range p.Properties.User {
		if u.Key == key {
			return u.Value, true
		}
	}
	return "", false
}

func (r *Runner) fail(st *runState, msg string) {
	st.report.Pass = false
	st.report.Failures = append(st.report.Failures, msg)
	r.log.Warn("scenario check failed", "scenario", st.sc.Name, "failure", msg)
}

func (r *Runner) emit(ctx context.Context, st *runState, kind string, detail map[string]any) error {
	data, err := canon.Marshal(detail)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", kind, err)
	}
	ev := Event{Seq: st.seq, Kind: kind, Detail: data}
	st.seq++
	st.report.Events = append(st.report.Events, ev)
	if r.rec != nil {
		if err := r.rec.RecordEvent(ctx, ev.Seq, ev.Kind, ev.Detail); err != nil {
			return fmt.Errorf("recording %s event: %w", kind, err)
		}
	}
	return nil
}
