package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/diwise/device-telemetry/internal/pkg/application/device"
	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Simulator stands in for the remote platform. It serves the interface data
// routes of the application API for a single device and forwards whatever it
// accepts to the device inbox.
type Simulator struct {
	realm    string
	deviceID string
	cfg      *device.Config
	notifier Notifier

	mu         sync.RWMutex
	properties map[string]types.Value
}

func NewSimulator(cfg *device.Config, notifier Notifier) *Simulator {
	return &Simulator{
		realm:      cfg.Realm,
		deviceID:   cfg.DeviceID,
		cfg:        cfg,
		notifier:   notifier,
		properties: map[string]types.Value{},
	}
}

func (s *Simulator) RegisterHandlers(r chi.Router) {
	r.Route("/appengine/v1/{realm}/devices/{deviceID}/interfaces/{interface}", func(r chi.Router) {
		r.Post("/*", s.handle("send-data", s.sendData))
		r.Delete("/*", s.handle("unset", s.unset))
		r.Get("/*", s.handle("retrieve-property", s.retrieveProperty))
	})
}

type handlerFunc func(ctx context.Context, w http.ResponseWriter, r *http.Request, ic device.InterfaceConfig, path string) error

func (s *Simulator) handle(name string, next handlerFunc) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		interfaceName := chi.URLParam(r, "interface")
		path := "/" + strings.Trim(chi.URLParam(r, "*"), "/")

		ctx, span := tracer.Start(r.Context(), name,
			trace.WithAttributes(
				attribute.String("interface", interfaceName),
				attribute.String("path", path),
			),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		if chi.URLParam(r, "realm") != s.realm || chi.URLParam(r, "deviceID") != s.deviceID {
			err = errors.NewNotFoundError("no such device")
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		ic, ok := s.cfg.Interface(interfaceName)
		if !ok {
			err = errors.NewUnknownInterfaceError(interfaceName)
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		if len(path) < 2 {
			err = errors.NewBadRequestError("missing path")
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		err = next(ctx, w, r, ic, path)
		if err != nil {
			log.Info("request failed", "interface", interfaceName, "path", path, "err", err.Error())
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}
	})
}

func (s *Simulator) sendData(ctx context.Context, w http.ResponseWriter, r *http.Request, ic device.InterfaceConfig, path string) error {
	if ic.Ownership == device.OwnershipDevice {
		return errors.NewBadRequestError(fmt.Sprintf("interface %s is owned by the device", ic.Name))
	}

	b, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.NewBadRequestError(err.Error())
	}

	body := struct {
		Data json.RawMessage `json:"data"`
	}{}

	if err = json.Unmarshal(b, &body); err != nil || len(body.Data) == 0 {
		return errors.NewBadRequestError("request body must contain data")
	}

	var data events.Data

	if ic.IsObjectAggregated() {
		o := objects.New()
		if err = o.UnmarshalJSON(body.Data); err != nil {
			return errors.NewBadRequestError(err.Error())
		}
		data = events.Object(o)
	} else {
		var value types.Value
		value, err = types.UnmarshalValue(body.Data)
		if err != nil {
			return errors.NewBadRequestError(err.Error())
		}
		data = events.Individual(value)

		if ic.IsProperties() {
			s.mu.Lock()
			s.properties[propertyKey(ic.Name, path)] = value
			s.mu.Unlock()
		}
	}

	err = s.notifier.Publish(ctx, events.NewDeviceEvent(ic.Name, path, data))
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Simulator) unset(ctx context.Context, w http.ResponseWriter, r *http.Request, ic device.InterfaceConfig, path string) error {
	if !ic.IsProperties() {
		return errors.NewBadRequestError(fmt.Sprintf("datastream interface %s cannot be unset", ic.Name))
	}

	s.mu.Lock()
	delete(s.properties, propertyKey(ic.Name, path))
	s.mu.Unlock()

	err := s.notifier.Publish(ctx, events.NewDeviceEvent(ic.Name, path, events.Unset()))
	if err != nil {
		return err
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Simulator) retrieveProperty(ctx context.Context, w http.ResponseWriter, r *http.Request, ic device.InterfaceConfig, path string) error {
	s.mu.RLock()
	value, ok := s.properties[propertyKey(ic.Name, path)]
	s.mu.RUnlock()

	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("property %s%s is not set", ic.Name, path))
	}

	payload, err := types.MarshalValue(value)
	if err != nil {
		return err
	}

	b, err := json.Marshal(struct {
		Data json.RawMessage `json:"data"`
	}{payload})
	if err != nil {
		return err
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)

	return nil
}

func propertyKey(interfaceName, path string) string {
	return interfaceName + path
}
