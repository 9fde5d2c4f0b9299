package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sender delivers server owned data to the device, i.e. the platform's
// application API.
type Sender interface {
	SendIndividual(ctx context.Context, interfaceName, path string, value types.Value) error
	Unset(ctx context.Context, interfaceName, path string) error
}

// Receiver yields the events that arrive at the device, one at a time.
type Receiver interface {
	Recv(ctx context.Context) (events.DeviceEvent, error)
}

// PropertyReader reads the value the device has persisted for a property.
type PropertyReader interface {
	Property(ctx context.Context, interfaceName, path string) (types.Value, bool, error)
}

type State int

const (
	Idle State = iota
	AwaitSetEvent
	AwaitPropertyReadback
	AwaitUnsetEvent
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitSetEvent:
		return "await-set-event"
	case AwaitPropertyReadback:
		return "await-property-readback"
	case AwaitUnsetEvent:
		return "await-unset-event"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const DefaultTimeout = 2 * time.Second

var tracer = otel.Tracer("device-telemetry/validation")

type Harness struct {
	sender     Sender
	receiver   Receiver
	properties PropertyReader
	timeout    time.Duration

	// observer is told about every state the harness enters
	observer func(Sample, State)
}

func Timeout(timeout time.Duration) func(*Harness) {
	return func(h *Harness) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

func Observer(observer func(Sample, State)) func(*Harness) {
	return func(h *Harness) {
		h.observer = observer
	}
}

func NewHarness(sender Sender, receiver Receiver, properties PropertyReader, options ...func(*Harness)) *Harness {
	h := &Harness{
		sender:     sender,
		receiver:   receiver,
		properties: properties,
		timeout:    DefaultTimeout,
	}

	for _, option := range options {
		option(h)
	}

	return h
}

// Run validates the datasets one after the other and stops at the first
// failure. The returned error is a *errors.ValidationError unless the samples
// of a dataset could not be produced.
func (h *Harness) Run(ctx context.Context, datasets ...Dataset) error {
	logger := logging.GetFromContext(ctx)

	for _, ds := range datasets {
		samples, err := ds.Samples()
		if err != nil {
			return fmt.Errorf("failed to create samples for dataset %s: %w", ds.Name(), err)
		}

		for _, sample := range samples {
			err = h.validate(ctx, ds, sample)
			if err != nil {
				logger.Warn("validation failed", "dataset", ds.Name(), "interface", ds.Interface(), "path", sample.Path, "err", err.Error())
				return err
			}
			logger.Info("validated", "interface", ds.Interface(), "path", sample.Path)
		}

		logger.Info("dataset validated", "dataset", ds.Name(), "samples", len(samples))
	}

	return nil
}

func (h *Harness) validate(ctx context.Context, ds Dataset, sample Sample) error {
	var err error

	interfaceName := ds.Interface()

	ctx, span := tracer.Start(ctx, "validate-sample",
		trace.WithAttributes(
			attribute.String("dataset", ds.Name()),
			attribute.String("interface", interfaceName),
			attribute.String("path", sample.Path),
			attribute.String("kind", sample.Value.Kind().String()),
		),
	)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	state := Idle

	for state != Done {
		h.enter(sample, state)

		switch state {
		case Idle:
			err = h.sender.SendIndividual(ctx, interfaceName, sample.Path, sample.Value)
			if err != nil {
				err = errors.NewTransportError("send", interfaceName, sample.Path, err)
				return err
			}
			state = AwaitSetEvent

		case AwaitSetEvent:
			err = h.awaitSetEvent(ctx, interfaceName, sample)
			if err != nil {
				return err
			}
			if ds.Semantics() != Property {
				// only properties can be read back and unset
				state = Done
				continue
			}
			state = AwaitPropertyReadback

		case AwaitPropertyReadback:
			err = h.readBack(ctx, interfaceName, sample)
			if err != nil {
				return err
			}

			err = h.sender.Unset(ctx, interfaceName, sample.Path)
			if err != nil {
				err = errors.NewTransportError("unset", interfaceName, sample.Path, err)
				return err
			}
			state = AwaitUnsetEvent

		case AwaitUnsetEvent:
			err = h.awaitUnsetEvent(ctx, interfaceName, sample)
			if err != nil {
				return err
			}
			state = Done
		}
	}

	h.enter(sample, Done)

	return nil
}

func (h *Harness) enter(sample Sample, state State) {
	if h.observer != nil {
		h.observer(sample, state)
	}
}

func (h *Harness) awaitSetEvent(ctx context.Context, interfaceName string, sample Sample) error {
	const op = "await-set-event"

	event, err := h.recv(ctx, op, interfaceName, sample.Path)
	if err != nil {
		return err
	}

	if !event.Matches(interfaceName, sample.Path) {
		return errors.NewProtocolMismatchError(op, interfaceName, sample.Path, interfaceName+sample.Path, event.Interface+event.Path)
	}

	value, set, ok := event.Data.AsProperty()
	if !ok || !set {
		return errors.NewClassificationMismatchError(op, interfaceName, sample.Path, events.AggregationIndividual.String(), event.Data.Aggregation().String())
	}

	if !types.Equal(value, sample.Value) {
		return errors.NewValueMismatchError(op, interfaceName, sample.Path, events.Individual(sample.Value).String(), event.Data.String())
	}

	return nil
}

func (h *Harness) readBack(ctx context.Context, interfaceName string, sample Sample) error {
	const op = "await-property-readback"

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	value, ok, err := h.properties.Property(ctx, interfaceName, sample.Path)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.NewTimeoutError(op, interfaceName, sample.Path, err)
		}
		return errors.NewTransportError(op, interfaceName, sample.Path, err)
	}

	if !ok {
		return errors.NewMissingPropertyError(op, interfaceName, sample.Path, events.Individual(sample.Value).String())
	}

	if !types.Equal(value, sample.Value) {
		return errors.NewValueMismatchError(op, interfaceName, sample.Path, events.Individual(sample.Value).String(), events.Individual(value).String())
	}

	return nil
}

func (h *Harness) awaitUnsetEvent(ctx context.Context, interfaceName string, sample Sample) error {
	const op = "await-unset-event"

	event, err := h.recv(ctx, op, interfaceName, sample.Path)
	if err != nil {
		return err
	}

	if !event.Matches(interfaceName, sample.Path) {
		return errors.NewProtocolMismatchError(op, interfaceName, sample.Path, interfaceName+sample.Path, event.Interface+event.Path)
	}

	if !event.Data.IsUnset() {
		return errors.NewClassificationMismatchError(op, interfaceName, sample.Path, events.AggregationUnset.String(), event.Data.String())
	}

	return nil
}

func (h *Harness) recv(ctx context.Context, op, interfaceName, path string) (events.DeviceEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	event, err := h.receiver.Recv(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return event, errors.NewTimeoutError(op, interfaceName, path, fmt.Errorf("no event within %s", h.timeout))
		}
		return event, errors.NewTransportError(op, interfaceName, path, err)
	}

	return event, nil
}
