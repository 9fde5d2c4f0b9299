package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/diwise/device-telemetry/internal/pkg/infrastructure/storage"
	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const DefaultQueueSize int = 64

// Session is the device side of the connection to the platform. It receives
// events from the platform, keeps track of the properties that are set and
// hands the events over to whoever is calling Recv.
type Session struct {
	cfg   *Config
	store storage.PropertyStore

	queue  chan events.DeviceEvent
	closed chan struct{}
	once   sync.Once
}

func QueueSize(size int) func(*Session) {
	return func(s *Session) {
		if size > 0 {
			s.queue = make(chan events.DeviceEvent, size)
		}
	}
}

func NewSession(cfg *Config, store storage.PropertyStore, options ...func(*Session)) *Session {
	s := &Session{
		cfg:    cfg,
		store:  store,
		queue:  make(chan events.DeviceEvent, DefaultQueueSize),
		closed: make(chan struct{}),
	}

	for _, option := range options {
		option(s)
	}

	return s
}

// HandleEvent checks an incoming event against the interface it was sent on,
// updates the stored property (if any) and queues the event for Recv.
func (s *Session) HandleEvent(ctx context.Context, event events.DeviceEvent) error {
	if err := event.Validate(); err != nil {
		return errors.NewBadRequestError(err.Error())
	}

	ic, ok := s.cfg.Interface(event.Interface)
	if !ok {
		return errors.NewUnknownInterfaceError(event.Interface)
	}

	if event.Data.IsObject() && !ic.IsObjectAggregated() {
		return errors.NewTypeMismatchError(fmt.Sprintf("interface %s does not accept object data", ic.Name))
	}

	if !event.Data.IsObject() && ic.IsObjectAggregated() {
		return errors.NewTypeMismatchError(fmt.Sprintf("interface %s only accepts object data", ic.Name))
	}

	if ic.IsProperties() {
		value, set, _ := event.Data.AsProperty()

		var err error
		if set {
			err = s.store.Store(ctx, ic.Name, event.Path, value)
		} else {
			err = s.store.Delete(ctx, ic.Name, event.Path)
		}

		if err != nil {
			return fmt.Errorf("failed to update property %s%s: %s (%w)", ic.Name, event.Path, err.Error(), errors.ErrInternal)
		}
	} else if event.Data.IsUnset() {
		return errors.NewBadRequestError(fmt.Sprintf("datastream interface %s cannot be unset", ic.Name))
	}

	select {
	case <-s.closed:
		return errors.ErrSessionClosed
	default:
	}

	select {
	case s.queue <- event:
		logging.GetFromContext(ctx).Debug("event queued", "interface", event.Interface, "path", event.Path, "kind", event.Data.Aggregation().String())
		return nil
	case <-s.closed:
		return errors.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks until an event is available, the context is done or the session
// is closed.
func (s *Session) Recv(ctx context.Context) (events.DeviceEvent, error) {
	select {
	case <-s.closed:
		return events.DeviceEvent{}, errors.ErrSessionClosed
	default:
	}

	select {
	case event := <-s.queue:
		return event, nil
	case <-s.closed:
		return events.DeviceEvent{}, errors.ErrSessionClosed
	case <-ctx.Done():
		return events.DeviceEvent{}, ctx.Err()
	}
}

func (s *Session) Property(ctx context.Context, interfaceName, path string) (types.Value, bool, error) {
	ic, ok := s.cfg.Interface(interfaceName)
	if !ok {
		return nil, false, errors.NewUnknownInterfaceError(interfaceName)
	}

	if !ic.IsProperties() {
		return nil, false, errors.NewBadRequestError(fmt.Sprintf("interface %s has no properties", ic.Name))
	}

	return s.store.Load(ctx, ic.Name, path)
}

// ClearProperties forgets every stored property of an interface.
func (s *Session) ClearProperties(ctx context.Context, interfaceName string) error {
	if _, ok := s.cfg.Interface(interfaceName); !ok {
		return errors.NewUnknownInterfaceError(interfaceName)
	}
	return s.store.Clear(ctx, interfaceName)
}

func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.store.Close()
	})
	return err
}
