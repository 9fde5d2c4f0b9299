package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/diwise/device-telemetry/internal/pkg/application/device"
	"github.com/diwise/device-telemetry/pkg/telemetry/client"
	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	testutils "github.com/diwise/service-chassis/pkg/test/http"
	"github.com/diwise/service-chassis/pkg/test/http/expects"
	"github.com/diwise/service-chassis/pkg/test/http/response"
	"github.com/go-chi/chi/v5"
	"github.com/matryer/is"
)

var Expects = testutils.Expects
var Returns = testutils.Returns

var method = expects.RequestMethod
var path = expects.RequestPath
var bodyContaining = expects.RequestBodyContaining

func TestNotifierPostsToInbox(t *testing.T) {
	is := is.New(t)

	s := testutils.NewMockServiceThat(
		Expects(
			is,
			method(http.MethodPost),
			path("/device/v1/events"),
			bodyContaining(`"interface":"org.example.ServerProperty"`),
		),
		Returns(response.Code(http.StatusNoContent)),
	)
	defer s.Close()

	ctx := context.Background()
	n, err := NewNotifier(ctx, s.URL(), "letmein")
	is.NoErr(err)

	is.NoErr(n.Start())

	err = n.Publish(ctx, events.NewDeviceEvent("org.example.ServerProperty", "/value", events.Individual(types.Boolean(true))))
	is.NoErr(err)

	n.Stop()

	is.Equal(s.RequestCount(), 1)
}

func TestNotifierMustBeStarted(t *testing.T) {
	is := is.New(t)

	n, err := NewNotifier(context.Background(), "http://localhost:1234", "")
	is.NoErr(err)

	err = n.Publish(context.Background(), events.NewDeviceEvent("org.example.ServerProperty", "/value", events.Unset()))
	is.True(err != nil)
}

func TestPublishAfterStopFails(t *testing.T) {
	is := is.New(t)

	n, err := NewNotifier(context.Background(), "http://localhost:1234", "")
	is.NoErr(err)

	is.NoErr(n.Start())
	is.NoErr(n.Stop())

	err = n.Publish(context.Background(), events.NewDeviceEvent("org.example.ServerProperty", "/value", events.Unset()))
	is.True(err != nil) // a stopped notifier should refuse, not panic on its closed queue
}

func TestPublishWhileStopping(t *testing.T) {
	is := is.New(t)

	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	ctx := context.Background()
	n, err := NewNotifier(ctx, s.URL, "")
	is.NoErr(err)

	for range 5 {
		is.NoErr(n.Start())

		wg := sync.WaitGroup{}
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 10 {
					// either queued or refused, depending on who wins
					_ = n.Publish(ctx, events.NewDeviceEvent("org.example.ServerProperty", "/value", events.Unset()))
				}
			}()
		}

		is.NoErr(n.Stop())
		wg.Wait()
	}
}

func TestSimulatorForwardsIndividualValues(t *testing.T) {
	is, ctx, c, published := setupSimulatorTest(t)

	err := c.SendIndividual(ctx, "org.example.ServerProperty", "/overflow/longinteger_endpoint", types.LongInteger(1<<55+1))
	is.NoErr(err)

	value, ok, err := c.RetrieveProperty(ctx, "org.example.ServerProperty", "/overflow/longinteger_endpoint")
	is.NoErr(err)
	is.True(ok)
	is.True(types.Equal(value, types.LongInteger(1<<55+1)))

	err = c.Unset(ctx, "org.example.ServerProperty", "/overflow/longinteger_endpoint")
	is.NoErr(err)

	_, ok, err = c.RetrieveProperty(ctx, "org.example.ServerProperty", "/overflow/longinteger_endpoint")
	is.NoErr(err)
	is.True(!ok)

	evts := published()
	is.Equal(len(evts), 2)
	is.True(evts[0].Data.Equal(events.Individual(types.LongInteger(1<<55+1))))
	is.True(evts[1].Data.IsUnset())
}

func TestSimulatorForwardsObjects(t *testing.T) {
	is, ctx, c, published := setupSimulatorTest(t)

	o := objects.New()
	o.Insert("name", types.String("light"))
	o.Insert("id", types.Integer(42))

	err := c.SendObject(ctx, "org.example.ServerAggregate", "/record", o)
	is.NoErr(err)

	evts := published()
	is.Equal(len(evts), 1)

	received, ok := evts[0].Data.AsObject()
	is.True(ok)
	is.True(received.Equal(o))
}

func TestSimulatorRejectsUnknownInterface(t *testing.T) {
	is, ctx, c, _ := setupSimulatorTest(t)

	err := c.SendIndividual(ctx, "org.example.Nope", "/value", types.Boolean(true))
	is.True(errors.Is(err, errors.ErrUnknownInterface))
}

func TestSimulatorRejectsDeviceOwnedInterface(t *testing.T) {
	is, ctx, c, _ := setupSimulatorTest(t)

	err := c.SendIndividual(ctx, "org.example.DeviceDatastream", "/value", types.Boolean(true))
	is.True(errors.Is(err, errors.ErrBadRequest))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.DeviceEvent
}

func (r *recordingNotifier) Start() error { return nil }
func (r *recordingNotifier) Stop() error  { return nil }

func (r *recordingNotifier) Publish(ctx context.Context, event events.DeviceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// keep what the device would see on the wire
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	decoded := events.DeviceEvent{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return err
	}

	r.events = append(r.events, decoded)
	return nil
}

func (r *recordingNotifier) published() []events.DeviceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.DeviceEvent{}, r.events...)
}

func setupSimulatorTest(t *testing.T) (*is.I, context.Context, client.PlatformClient, func() []events.DeviceEvent) {
	is := is.New(t)

	cfg, err := device.LoadConfiguration(bytes.NewBufferString(simulatorConfig))
	is.NoErr(err)

	notifier := &recordingNotifier{}
	sim := NewSimulator(cfg, notifier)

	r := chi.NewRouter()
	sim.RegisterHandlers(r)

	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	c := client.NewPlatformClient(ts.URL, client.Realm(cfg.Realm), client.DeviceID(cfg.DeviceID))

	return is, context.Background(), c, notifier.published
}


const simulatorConfig string = `
realm: test
deviceId: 2TBn-jNESuuHamE2Zo1anA
interfaces:
  - name: org.example.ServerProperty
    type: properties
  - name: org.example.ServerAggregate
    type: datastream
    aggregation: object
  - name: org.example.DeviceDatastream
    type: datastream
    ownership: device
`
