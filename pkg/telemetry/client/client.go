package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/objects"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PlatformClient publishes server owned data towards a device through the
// remote platform's application API.
type PlatformClient interface {
	SendIndividual(ctx context.Context, interfaceName, path string, value types.Value) error
	SendObject(ctx context.Context, interfaceName, path string, object *objects.Object) error
	Unset(ctx context.Context, interfaceName, path string) error
	RetrieveProperty(ctx context.Context, interfaceName, path string) (types.Value, bool, error)
}

func Debug(enabled string) func(*platformClient) {
	return func(c *platformClient) {
		c.debug = (enabled == "true")
	}
}

func Realm(realm string) func(*platformClient) {
	return func(c *platformClient) {
		c.realm = realm
	}
}

func DeviceID(deviceID string) func(*platformClient) {
	return func(c *platformClient) {
		c.deviceID = deviceID
	}
}

func Token(token string) func(*platformClient) {
	return func(c *platformClient) {
		c.token = token
	}
}

func NewPlatformClient(baseURL string, options ...func(*platformClient)) PlatformClient {
	c := &platformClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		realm:   DefaultRealm,
		debug:   false,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	for _, option := range options {
		option(c)
	}

	return c
}

const (
	DefaultRealm string = "test"

	TraceAttributeRealm     string = "realm"
	TraceAttributeDeviceID  string = "device-id"
	TraceAttributeInterface string = "interface"
	TraceAttributePath      string = "path"
)

var tracer = otel.Tracer("device-telemetry/platform-client")

type platformClient struct {
	baseURL  string
	realm    string
	deviceID string
	token    string
	debug    bool

	httpClient http.Client
}

// dataBody is the request and response body of the interface data endpoints.
type dataBody struct {
	Data json.RawMessage `json:"data"`
}

func (c platformClient) SendIndividual(ctx context.Context, interfaceName, path string, value types.Value) error {
	var err error

	ctx, span := c.startSpan(ctx, "send-individual", interfaceName, path)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := types.MarshalValue(value)
	if err != nil {
		err = fmt.Errorf("failed to marshal value: %s (%w)", err.Error(), errors.ErrBadRequest)
		return err
	}

	err = c.sendData(ctx, interfaceName, path, payload)
	return err
}

func (c platformClient) SendObject(ctx context.Context, interfaceName, path string, object *objects.Object) error {
	var err error

	ctx, span := c.startSpan(ctx, "send-object", interfaceName, path)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	payload, err := object.MarshalJSON()
	if err != nil {
		err = fmt.Errorf("failed to marshal object: %s (%w)", err.Error(), errors.ErrBadRequest)
		return err
	}

	err = c.sendData(ctx, interfaceName, path, payload)
	return err
}

func (c platformClient) sendData(ctx context.Context, interfaceName, path string, payload json.RawMessage) error {
	body, err := json.Marshal(dataBody{Data: payload})
	if err != nil {
		return err
	}

	response, responseBody, err := c.callPlatform(
		ctx, http.MethodPost, c.interfaceURL(interfaceName, path), bytes.NewBuffer(body),
	)
	if err != nil {
		return err
	}

	if response.StatusCode >= http.StatusBadRequest {
		return errors.NewErrorFromProblemReport(response.StatusCode, response.Header.Get("Content-Type"), responseBody)
	}

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, errors.ErrTransport)
	}

	return nil
}

func (c platformClient) Unset(ctx context.Context, interfaceName, path string) error {
	var err error

	ctx, span := c.startSpan(ctx, "unset", interfaceName, path)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callPlatform(
		ctx, http.MethodDelete, c.interfaceURL(interfaceName, path), nil,
	)
	if err != nil {
		return err
	}

	if response.StatusCode >= http.StatusBadRequest {
		err = errors.NewErrorFromProblemReport(response.StatusCode, response.Header.Get("Content-Type"), responseBody)
		return err
	}

	if response.StatusCode != http.StatusNoContent {
		err = fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, errors.ErrTransport)
		return err
	}

	return nil
}

// RetrieveProperty returns the value the platform holds for a property. The
// second return value is false if the property is not set.
func (c platformClient) RetrieveProperty(ctx context.Context, interfaceName, path string) (types.Value, bool, error) {
	var err error

	ctx, span := c.startSpan(ctx, "retrieve-property", interfaceName, path)
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	response, responseBody, err := c.callPlatform(
		ctx, http.MethodGet, c.interfaceURL(interfaceName, path), nil,
	)
	if err != nil {
		return nil, false, err
	}

	if response.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}

	if response.StatusCode != http.StatusOK {
		if response.StatusCode >= http.StatusBadRequest {
			err = errors.NewErrorFromProblemReport(response.StatusCode, response.Header.Get("Content-Type"), responseBody)
			return nil, false, err
		}

		err = fmt.Errorf("unexpected response code %d (%w)", response.StatusCode, errors.ErrTransport)
		return nil, false, err
	}

	body := dataBody{}
	err = json.Unmarshal(responseBody, &body)
	if err != nil {
		if c.debug && len(responseBody) < 1000 {
			err = fmt.Errorf("unmarshaling of %s failed with err %s", string(responseBody), err.Error())
		}
		return nil, false, err
	}

	value, err := types.UnmarshalValue(body.Data)
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (c platformClient) startSpan(ctx context.Context, name, interfaceName, path string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String(TraceAttributeRealm, c.realm),
			attribute.String(TraceAttributeDeviceID, c.deviceID),
			attribute.String(TraceAttributeInterface, interfaceName),
			attribute.String(TraceAttributePath, path),
		),
	)
}

func (c platformClient) interfaceURL(interfaceName, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := range segments {
		segments[i] = url.PathEscape(segments[i])
	}

	return fmt.Sprintf(
		"%s/appengine/v1/%s/devices/%s/interfaces/%s/%s",
		c.baseURL, url.PathEscape(c.realm), url.PathEscape(c.deviceID), url.PathEscape(interfaceName), strings.Join(segments, "/"),
	)
}

func (c platformClient) callPlatform(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), errors.ErrInternal)
	}

	if body != nil {
		req.Header.Add("Content-Type", "application/json")
	}
	req.Header.Add("Accept", "application/json")

	if c.token != "" {
		req.Header.Add("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrTransport)
	}

	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), errors.ErrTransport)
	}

	if c.debug && resp.StatusCode >= http.StatusBadRequest {
		reqbytes, _ := httputil.DumpRequest(req, false)
		respbytes, _ := httputil.DumpResponse(resp, false)

		log := logging.GetFromContext(ctx)
		log.Error("request failed", "request", string(reqbytes), "response", string(respbytes))
	}

	return resp, respBody, nil
}
