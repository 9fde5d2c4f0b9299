package device

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/diwise/device-telemetry/internal/pkg/infrastructure/storage"
	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	"github.com/matryer/is"
)

func TestLoadConfiguration(t *testing.T) {
	is := is.New(t)

	cfg, err := LoadConfiguration(bytes.NewBufferString(configFile))
	is.NoErr(err)

	is.Equal(cfg.Realm, "test")
	is.Equal(cfg.DeviceID, "2TBn-jNESuuHamE2Zo1anA")
	is.Equal(len(cfg.Interfaces), 3)
	is.Equal(cfg.Validation.Timeout, 2*time.Second)
	is.Equal(cfg.Storage.Driver, "memory")

	ic, ok := cfg.Interface("org.example.ServerDatastream")
	is.True(ok)
	is.Equal(ic.Aggregation, AggregationIndividual) // should default to individual
	is.Equal(ic.Ownership, OwnershipServer)         // should default to server
}

func TestLoadConfigurationRejectsObjectProperties(t *testing.T) {
	is := is.New(t)

	_, err := LoadConfiguration(bytes.NewBufferString(`
deviceId: 2TBn-jNESuuHamE2Zo1anA
interfaces:
  - name: org.example.Props
    type: properties
    aggregation: object
`))
	is.True(err != nil)
}

func TestLoadConfigurationRejectsUnknownDatasetInterface(t *testing.T) {
	is := is.New(t)

	_, err := LoadConfiguration(bytes.NewBufferString(`
deviceId: 2TBn-jNESuuHamE2Zo1anA
interfaces:
  - name: org.example.Props
    type: properties
validation:
  datasets:
    - name: alltypes
      interface: org.example.Missing
`))
	is.True(err != nil)
}

func TestHandlePropertyEvent(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	err := session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerProperties", "/sensor_1/integer_endpoint", events.Individual(types.Integer(7))))
	is.NoErr(err)

	event, err := session.Recv(ctx)
	is.NoErr(err)
	is.True(event.Matches("org.example.ServerProperties", "/sensor_1/integer_endpoint"))

	v, ok, err := session.Property(ctx, "org.example.ServerProperties", "/sensor_1/integer_endpoint")
	is.NoErr(err)
	is.True(ok)
	is.True(types.Equal(v, types.Integer(7)))

	err = session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerProperties", "/sensor_1/integer_endpoint", events.Unset()))
	is.NoErr(err)

	event, err = session.Recv(ctx)
	is.NoErr(err)
	is.True(event.Data.IsUnset())

	_, ok, err = session.Property(ctx, "org.example.ServerProperties", "/sensor_1/integer_endpoint")
	is.NoErr(err)
	is.True(!ok) // property should be gone after unset
}

func TestHandleEventOnUnknownInterface(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	err := session.HandleEvent(ctx, events.NewDeviceEvent("org.example.Nope", "/value", events.Individual(types.Boolean(true))))
	is.True(errors.Is(err, errors.ErrUnknownInterface))
}

func TestHandleObjectOnIndividualInterface(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	o := objects.New()
	o.Insert("name", types.String("Alice"))

	err := session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerDatastream", "/value", events.Object(o)))
	is.True(errors.Is(err, errors.ErrTypeMismatch))
}

func TestHandleObjectOnObjectInterface(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	o := objects.New()
	o.Insert("name", types.String("Alice"))
	o.Insert("id", types.Integer(1))

	err := session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerAggregate", "/record", events.Object(o)))
	is.NoErr(err)

	event, err := session.Recv(ctx)
	is.NoErr(err)

	received, ok := event.Data.AsObject()
	is.True(ok)
	is.True(received.Equal(o))
}

func TestUnsetOnDatastreamIsRejected(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	err := session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerDatastream", "/value", events.Unset()))
	is.True(errors.Is(err, errors.ErrBadRequest))
}

func TestRecvHonoursContext(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	_, err := session.Recv(ctx)
	is.True(errors.Is(err, context.DeadlineExceeded))
}

func TestRecvAfterClose(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	is.NoErr(session.Close())
	is.NoErr(session.Close()) // closing twice is fine

	_, err := session.Recv(ctx)
	is.True(errors.Is(err, errors.ErrSessionClosed))

	err = session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerDatastream", "/value", events.Individual(types.Double(1.5))))
	is.True(errors.Is(err, errors.ErrSessionClosed))
}

func TestClearProperties(t *testing.T) {
	is, ctx, session := setupSessionTest(t)

	for _, path := range []string{"/a", "/b"} {
		is.NoErr(session.HandleEvent(ctx, events.NewDeviceEvent("org.example.ServerProperties", path, events.Individual(types.String(path)))))
	}

	is.NoErr(session.ClearProperties(ctx, "org.example.ServerProperties"))

	_, ok, err := session.Property(ctx, "org.example.ServerProperties", "/a")
	is.NoErr(err)
	is.True(!ok)
}

func setupSessionTest(t *testing.T) (*is.I, context.Context, *Session) {
	is := is.New(t)

	cfg, err := LoadConfiguration(bytes.NewBufferString(configFile))
	is.NoErr(err)

	session := NewSession(cfg, storage.NewMemoryStore(), QueueSize(8))
	t.Cleanup(func() { session.Close() })

	return is, context.Background(), session
}

const configFile string = `
realm: test
deviceId: 2TBn-jNESuuHamE2Zo1anA
platform:
  url: http://localhost:4000
interfaces:
  - name: org.example.ServerProperties
    type: properties
  - name: org.example.ServerDatastream
    type: datastream
  - name: org.example.ServerAggregate
    type: datastream
    aggregation: object
validation:
  timeout: 2s
  datasets:
    - name: alltypes
      interface: org.example.ServerProperties
storage:
  driver: memory
`
