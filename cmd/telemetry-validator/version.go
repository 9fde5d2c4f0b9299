package main

import (
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", serviceName, buildinfo.SourceVersion())
	},
}
