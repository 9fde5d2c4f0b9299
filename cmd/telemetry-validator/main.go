package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName string = "telemetry-validator"

var (
	configPath   string
	policiesPath string
	listenAddr   string
	logFormat    string
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "Validates that typed telemetry survives a round trip through the platform",
	Long: `telemetry-validator sends a dataset of typed values to a device through the
platform's application API and checks that every value arrives at the device
unchanged, is persisted as a property and can be unset again.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/opt/diwise/config/device.yaml", "device and dataset configuration file")
	rootCmd.PersistentFlags().StringVar(&policiesPath, "policies", "", "rego policies for the device inbox (default: allow all)")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "address of the device inbox (default: :$SERVICE_PORT)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format, json or text")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loopbackCmd)
	rootCmd.AddCommand(versionCmd)
}
