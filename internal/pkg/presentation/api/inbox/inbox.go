package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/diwise/device-telemetry/internal/pkg/presentation/api/inbox/auth"
	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("device-telemetry/inbox")

const (
	TraceAttributeInterface string = "interface"
	TraceAttributePath      string = "path"
	TraceAttributeEventID   string = "event-id"
)

// Device is the part of the device session that the inbox exposes over http.
type Device interface {
	HandleEvent(ctx context.Context, event events.DeviceEvent) error
	Property(ctx context.Context, interfaceName, path string) (types.Value, bool, error)
	ClearProperties(ctx context.Context, interfaceName string) error
}

func RegisterHandlers(ctx context.Context, r chi.Router, policies io.Reader, device Device) error {

	authenticator, err := auth.NewAuthenticator(ctx, policies)
	if err != nil {
		return fmt.Errorf("failed to create api authenticator: %w", err)
	}

	r.Route("/device/v1", func(r chi.Router) {
		r.Use(
			Logger(logging.GetFromContext(ctx)),
			RequiredContentTypes([]string{"application/json"}),
		)

		r.Post("/events", NewReceiveEventHandler(device, authenticator))

		r.Route("/properties/{interface}", func(r chi.Router) {
			r.Get("/*", NewRetrievePropertyHandler(device, authenticator))
			r.Delete("/", NewClearPropertiesHandler(device, authenticator))
		})
	})

	return nil
}

func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			_, ctx, _ = o11y.AddTraceIDToLoggerAndStoreInContext(
				trace.SpanFromContext(ctx),
				logger,
				ctx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequiredContentTypes(validTypes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contentType := r.Header.Get("Content-Type")
			isValidContentType := true

			if len(contentType) > 0 {
				isValidContentType = false

				for _, t := range validTypes {
					if strings.HasPrefix(contentType, t) {
						isValidContentType = true
						break
					}
				}
			}

			if isValidContentType {
				next.ServeHTTP(w, r)
			} else {
				http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			}
		})
	}
}

// NewReceiveEventHandler accepts events that the platform delivers to the device
func NewReceiveEventHandler(device Device, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "receive-event")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, log := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		event := events.DeviceEvent{}
		err = json.NewDecoder(r.Body).Decode(&event)
		if err != nil {
			errors.NewBadRequestData(fmt.Sprintf("unable to decode request payload: %s", err.Error()), traceID).WriteResponse(w)
			return
		}

		span.SetAttributes(
			attribute.String(TraceAttributeInterface, event.Interface),
			attribute.String(TraceAttributePath, event.Path),
			attribute.String(TraceAttributeEventID, event.ID),
		)

		err = authenticator.CheckAccess(ctx, r, event.Interface)
		if err != nil {
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		err = device.HandleEvent(ctx, event)
		if err != nil {
			log.Error("failed to handle event", "interface", event.Interface, "path", event.Path, "err", err.Error())
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}

// NewRetrievePropertyHandler returns the value the device has stored for a property
func NewRetrievePropertyHandler(device Device, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		interfaceName := chi.URLParam(r, "interface")
		path := "/" + strings.Trim(chi.URLParam(r, "*"), "/")

		ctx, span := tracer.Start(r.Context(), "retrieve-property",
			trace.WithAttributes(
				attribute.String(TraceAttributeInterface, interfaceName),
				attribute.String(TraceAttributePath, path),
			),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, _ := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		err = authenticator.CheckAccess(ctx, r, interfaceName)
		if err != nil {
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		value, ok, err := device.Property(ctx, interfaceName, path)
		if err != nil {
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		if !ok {
			errors.NewNotFound(fmt.Sprintf("property %s%s is not set", interfaceName, path), traceID).WriteResponse(w)
			return
		}

		payload, err := types.MarshalValue(value)
		if err != nil {
			errors.NewInternalError(err.Error(), traceID).WriteResponse(w)
			return
		}

		body, err := json.Marshal(struct {
			Data json.RawMessage `json:"data"`
		}{payload})
		if err != nil {
			errors.NewInternalError(err.Error(), traceID).WriteResponse(w)
			return
		}

		w.Header().Add("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	})
}

func NewClearPropertiesHandler(device Device, authenticator auth.Enticator) http.HandlerFunc {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error

		interfaceName := chi.URLParam(r, "interface")

		ctx, span := tracer.Start(r.Context(), "clear-properties",
			trace.WithAttributes(attribute.String(TraceAttributeInterface, interfaceName)),
		)
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		traceID, ctx, _ := o11y.AddTraceIDToLoggerAndStoreInContext(span, logging.GetFromContext(ctx), ctx)

		err = authenticator.CheckAccess(ctx, r, interfaceName)
		if err != nil {
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		err = device.ClearProperties(ctx, interfaceName)
		if err != nil {
			errors.ProblemFromError(err, traceID).WriteResponse(w)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})
}
