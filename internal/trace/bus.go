package trace

import (
	"context"
	"encoding/json"
	"fmt"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/propagation"
)

var propagator = propagation.TraceContext{}

// Bus publishes journal events onto a NATS subject for live external
// consumers, carrying the current trace context in the message headers so a
// collector can stitch the event stream to the run's span.
type Bus struct {
	nc      *nats.Conn
	subject string
}

func NewBus(nc *nats.Conn, subject string) *Bus {
	return &Bus{nc: nc, subject: subject}
}

type wireEvent struct {
	Kind  string `json:"kind"`
	Event Event  `json:"event"`
}

// Publish injects traceparent into headers and publishes the event as JSON.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	data, err := json.Marshal(wireEvent{Kind: e.Kind(), Event: e})
	if err != nil {
		return fmt.Errorf("marshal trace event: %w", err)
	}
	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: b.subject, Data: data, Header: hdr}
	return b.nc.PublishMsg(msg)
}

// Subscribe wraps nc.Subscribe, decoding each message back into its concrete
// event type and extracting the propagated trace context.
func Subscribe(nc *nats.Conn, subject string, handler func(context.Context, Event)) (*nats.Subscription, error) {
	return nc.Subscribe(subject, func(m *nats.Msg) {
		ctx := propagator.Extract(context.Background(), propagation.HeaderCarrier(m.Header))
		var probe struct {
			Kind  string          `json:"kind"`
			Event json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(m.Data, &probe); err != nil {
			return
		}
		var e Event
		switch probe.Kind {
		case "task-assign":
			var ev TaskAssign
			if json.Unmarshal(probe.Event, &ev) == nil {
				e = ev
			}
		case "task-start":
			var ev TaskStart
			if json.Unmarshal(probe.Event, &ev) == nil {
				e = ev
			}
		case "task-end":
			var ev TaskEnd
			if json.Unmarshal(probe.Event, &ev) == nil {
				e = ev
			}
		case "flow-change":
			var ev FlowChange
			if json.Unmarshal(probe.Event, &ev) == nil {
				e = ev
			}
		}
		if e != nil {
			handler(ctx, e)
		}
	})
}
