package main

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/diwise/device-telemetry/internal/pkg/application/device"
	"github.com/diwise/device-telemetry/internal/pkg/application/platform"
	"github.com/diwise/device-telemetry/pkg/telemetry/client"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/spf13/cobra"
)

var loopbackCmd = &cobra.Command{
	Use:   "loopback",
	Short: "Validate against an in process platform simulator",
	Long: `Starts the device inbox together with a simulator of the platform's
application API and validates the configured datasets through both.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return execute(cmd.Context(), runLoopback)
	},
}

func runLoopback(ctx context.Context, cfg *device.Config, policies io.Reader, listener net.Listener) error {
	session, r, err := newDevice(ctx, cfg, policies)
	if err != nil {
		listener.Close()
		return err
	}
	defer session.Close()

	baseURL := localURL(listener)

	notifier, err := platform.NewNotifier(ctx, baseURL, env.GetVariableOrDefault(ctx, "INBOX_TOKEN", ""))
	if err != nil {
		listener.Close()
		return err
	}

	platform.NewSimulator(cfg, notifier).RegisterHandlers(r)

	stop := serve(ctx, listener, r)
	defer stop()

	notifier.Start()
	defer notifier.Stop()

	c := client.NewPlatformClient(baseURL,
		client.Realm(cfg.Realm),
		client.DeviceID(cfg.DeviceID),
	)

	return validate(ctx, cfg, c, session)
}

func localURL(listener net.Listener) string {
	if addr, ok := listener.Addr().(*net.TCPAddr); ok {
		return fmt.Sprintf("http://127.0.0.1:%d", addr.Port)
	}
	return "http://" + listener.Addr().String()
}
