package main

import (
	"github.com/RoGogDBD/sparkplug-b/internal/version"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:   "spbctl",
		Short: "Sparkplug B host control utility",
		Long: `Inspect and control a Sparkplug B host application over its HTTP API,
or watch raw Sparkplug B traffic on an MQTT broker.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&server, "server", "s", "http://localhost:8080", "Host HTTP API base URL")

	api := func() *apiClient { return newAPIClient(server) }
	root.AddCommand(
		newConsumersCmd(api),
		newMetricsCmd(api),
		newSetCmd(api),
		newRebirthCmd(api),
		newWatchCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Run: func(cmd *cobra.Command, _ []string) {
				version.PrintBuildInfo(cmd.OutOrStdout())
			},
		},
	)
	return root
}
