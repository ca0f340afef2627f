// hichain is a demo host for the device authentication engine.
//
// An accessory serves binds and auths over TCP; a controller dials it:
//
//	hichain serve -c lamp.yaml --listen :7575 --pin 314159
//	hichain bind  -c phone.yaml --peer 127.0.0.1:7575 --pin 314159
//	hichain auth  -c phone.yaml --peer 127.0.0.1:7575 --peer-id lamp-01
//	hichain trust list -c phone.yaml
//	hichain trust delete -c phone.yaml lamp-01
//
// `hichain demo` runs a bind and an auth between two in-memory devices.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	ConfigFile string
	LogLevel   string
}

func newRootCommand() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "hichain",
		Short: "Device-to-device bind and authentication",
		Long: `hichain binds two devices with a shared PIN and later authenticates them
to each other with the long-term keys exchanged during the bind. Each run
prints the outcome and a fingerprint of the agreed session key.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&g.ConfigFile, "config", "c", "", "device configuration file (YAML)")
	cmd.PersistentFlags().StringVar(&g.LogLevel, "log-level", "", "override log_level from the configuration file")

	cmd.AddCommand(
		newServeCommand(&g),
		newBindCommand(&g),
		newAuthCommand(&g),
		newTrustCommand(&g),
		newDemoCommand(&g),
	)
	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
