package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/diwise/device-telemetry/internal/pkg/application/device"
	"github.com/diwise/device-telemetry/internal/pkg/application/validation"
	"github.com/diwise/device-telemetry/internal/pkg/infrastructure/storage"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
)

//go:embed default-policies.rego
var defaultPolicies []byte

func loadDeviceConfig(ctx context.Context, path string) (*device.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration file: %w", err)
	}
	defer f.Close()

	cfg, err := device.LoadConfiguration(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// the environment wins over the configuration file
	cfg.Realm = env.GetVariableOrDefault(ctx, "REALM", cfg.Realm)
	cfg.DeviceID = env.GetVariableOrDefault(ctx, "DEVICE_ID", cfg.DeviceID)
	cfg.Platform.URL = env.GetVariableOrDefault(ctx, "PLATFORM_URL", cfg.Platform.URL)
	cfg.Platform.Token = env.GetVariableOrDefault(ctx, "PLATFORM_TOKEN", cfg.Platform.Token)
	cfg.Storage.Driver = env.GetVariableOrDefault(ctx, "STORAGE_DRIVER", cfg.Storage.Driver)

	if cfg.Storage.Driver == storage.DriverPostgres && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = postgresConnStr(ctx)
	}

	return cfg, nil
}

func postgresConnStr(ctx context.Context) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "diwise"),
		env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	)
}

func openPolicies(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(bytes.NewReader(defaultPolicies)), nil
	}
	return os.Open(path)
}

func inboxListenAddress(ctx context.Context) string {
	if listenAddr != "" {
		return listenAddr
	}
	return ":" + env.GetVariableOrDefault(ctx, "SERVICE_PORT", "8080")
}

// datasets returns the datasets to validate, in order. Without any configured
// datasets the baseline and overflow datasets are run against the first
// properties interface.
func datasets(cfg *device.Config) ([]validation.Dataset, error) {
	if len(cfg.Validation.Datasets) == 0 {
		for _, ic := range cfg.Interfaces {
			if ic.IsProperties() {
				return []validation.Dataset{
					validation.AllTypes(ic.Name, validation.DefaultPrefix),
					validation.Overflow(ic.Name, validation.OverflowPrefix),
				}, nil
			}
		}
		return nil, fmt.Errorf("no datasets configured and no properties interface to default to")
	}

	result := make([]validation.Dataset, 0, len(cfg.Validation.Datasets))

	for _, dc := range cfg.Validation.Datasets {
		ic, _ := cfg.Interface(dc.Interface)

		if ic.IsObjectAggregated() {
			return nil, fmt.Errorf("dataset %s: object aggregated interface %s cannot be validated value by value", dc.Name, ic.Name)
		}

		var options []validation.DatasetOption
		if !ic.IsProperties() {
			options = append(options, validation.AsDatastream())
		}

		var ds validation.Dataset
		switch dc.Name {
		case "alltypes":
			ds = validation.AllTypes(ic.Name, dc.Prefix, options...)
		case "overflow":
			ds = validation.Overflow(ic.Name, dc.Prefix, options...)
		default:
			return nil, fmt.Errorf("unknown dataset %q", dc.Name)
		}

		result = append(result, ds)
	}

	return result, nil
}
