package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/diwise/device-telemetry/internal/pkg/application/device"
	"github.com/diwise/device-telemetry/internal/pkg/application/validation"
	"github.com/diwise/device-telemetry/internal/pkg/infrastructure/router"
	"github.com/diwise/device-telemetry/internal/pkg/infrastructure/storage"
	"github.com/diwise/device-telemetry/internal/pkg/presentation/api/inbox"
	"github.com/diwise/device-telemetry/pkg/telemetry/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Validate against a running platform",
	Long: `Starts the device inbox and validates the configured datasets by sending
them through the platform at platform.url (or $PLATFORM_URL).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), runValidation)
	},
}

type validationFunc func(ctx context.Context, cfg *device.Config, policies io.Reader, listener net.Listener) error

func execute(ctx context.Context, validate validationFunc) error {
	ctx, log, cleanup := o11y.Init(ctx, serviceName, buildinfo.SourceVersion(), logFormat)
	defer cleanup()

	cfg, err := loadDeviceConfig(ctx, configPath)
	if err != nil {
		log.Error("failed to load configuration", "err", err.Error())
		return err
	}

	policies, err := openPolicies(policiesPath)
	if err != nil {
		log.Error("unable to open opa policy file", "err", err.Error())
		return err
	}
	defer policies.Close()

	listener, err := net.Listen("tcp", inboxListenAddress(ctx))
	if err != nil {
		log.Error("failed to listen for connections", "err", err.Error())
		return err
	}

	log.Info("starting validation", "realm", cfg.Realm, "device", cfg.DeviceID, "inbox", listener.Addr().String())

	err = validate(ctx, cfg, policies, listener)
	if err != nil {
		log.Error("validation failed", "err", err.Error())
		return err
	}

	log.Info("validation succeeded")
	return nil
}

func runValidation(ctx context.Context, cfg *device.Config, policies io.Reader, listener net.Listener) error {
	if cfg.Platform.URL == "" {
		listener.Close()
		return fmt.Errorf("no platform url configured")
	}

	session, r, err := newDevice(ctx, cfg, policies)
	if err != nil {
		listener.Close()
		return err
	}
	defer session.Close()

	stop := serve(ctx, listener, r)
	defer stop()

	c := client.NewPlatformClient(cfg.Platform.URL,
		client.Realm(cfg.Realm),
		client.DeviceID(cfg.DeviceID),
		client.Token(cfg.Platform.Token),
		client.Debug(env.GetVariableOrDefault(ctx, "DEBUG_CLIENT", "false")),
	)

	return validate(ctx, cfg, c, session)
}

func validate(ctx context.Context, cfg *device.Config, sender validation.Sender, session *device.Session) error {
	ds, err := datasets(cfg)
	if err != nil {
		return err
	}

	h := validation.NewHarness(sender, session, session, validation.Timeout(cfg.Validation.Timeout))
	return h.Run(ctx, ds...)
}

// newDevice opens the property store and returns the device session together
// with a router that serves its inbox.
func newDevice(ctx context.Context, cfg *device.Config, policies io.Reader) (*device.Session, *chi.Mux, error) {
	store, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open property storage: %w", err)
	}

	session := device.NewSession(cfg, store)

	r := router.New(serviceName)
	err = inbox.RegisterHandlers(ctx, r, policies, session)
	if err != nil {
		session.Close()
		return nil, nil, err
	}

	return session, r, nil
}

func serve(ctx context.Context, listener net.Listener, handler http.Handler) func() {
	log := logging.GetFromContext(ctx)
	srv := &http.Server{Handler: handler}

	go func() {
		err := srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("inbox server failed", "err", err.Error())
		}
	}()

	return func() {
		srv.Shutdown(context.Background())
	}
}
