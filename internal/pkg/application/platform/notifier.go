package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/device-telemetry/pkg/telemetry/types/events"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

// Notifier delivers events to the device inbox, one at a time and in the
// order they were published.
type Notifier interface {
	Start() error
	Stop() error

	Publish(ctx context.Context, event events.DeviceEvent) error
}

var tracer = otel.Tracer("device-telemetry/platform")

type action func()

type notifier struct {
	// mu guards started and the queue, Publish must never send on a closed queue
	mu       sync.RWMutex
	started  bool
	endpoint string
	token    string

	httpClient http.Client
	queue      chan action
}

// NewNotifier returns a notifier that posts events to the device inbox at
// inboxURL, authenticating with token if it is not empty.
func NewNotifier(ctx context.Context, inboxURL, token string) (Notifier, error) {
	if inboxURL == "" {
		return nil, fmt.Errorf("notifier requires an inbox url")
	}

	return &notifier{
		endpoint: strings.TrimSuffix(inboxURL, "/") + "/device/v1/events",
		token:    token,
		httpClient: http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

func (n *notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return fmt.Errorf("already started")
	}

	n.queue = make(chan action, 32)
	n.started = true

	go n.run(n.queue)

	return nil
}

func (n *notifier) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		resultChan := make(chan bool)

		n.queue <- func() {
			// closing the queue ends the run loop once this action returns
			close(n.queue)
			resultChan <- true
		}

		<-resultChan
		n.started = false
	}
	return nil
}

// Publish queues the event for delivery. Delivery failures are logged, they
// surface to the validation as a missing event.
func (n *notifier) Publish(ctx context.Context, event events.DeviceEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if !n.started {
		return fmt.Errorf("notifier not started")
	}

	var err error

	logger := logging.GetFromContext(ctx)

	ctx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"publish",
	)

	n.queue <- func() {
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = n.post(ctx, event)
		if err != nil {
			logger.Error("failed to deliver event", "interface", event.Interface, "path", event.Path, "err", err.Error())
		}
	}

	return nil
}

func (n *notifier) post(ctx context.Context, event events.DeviceEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling error (%w)", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Add("Authorization", "Bearer "+n.token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %s (%w)", err.Error(), errors.ErrTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("inbox responded with code %d (%w)", resp.StatusCode, errors.ErrTransport)
	}

	return nil
}

func (n *notifier) run(queue chan action) {
	for action := range queue {
		if action == nil {
			return
		}

		action()
	}
}
