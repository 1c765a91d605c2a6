package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "location-agent",
		Short: "Device agent that buffers GPS locations and uploads them",
		Long: `location-agent reads positions from a serial GPS receiver or the Google
geolocation API, keeps a bounded buffer of samples and uploads the oldest
ones in order to the location API over HTTP or MQTT.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the configuration file")

	return cmd
}
