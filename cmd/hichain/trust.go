package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTrustCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Inspect and edit the trusted devices",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the devices bound for the configured service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			d, err := openDevice(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer d.Close()

			devices, err := d.inst.TrustedDevices(cfg.Device.PackageName, cfg.Device.ServiceType)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AUTH ID\tUSER TYPE\tPUBLIC KEY")
			for _, e := range devices {
				fmt.Fprintf(tw, "%s\t%s\t%x…\n", e.AuthID, e.UserType, e.LTPK[:8])
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <auth-id>",
		Short: "Forget a bound device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			d, err := openDevice(cfg, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer d.Close()
			d.peerID = []byte(args[0])
			return d.inst.Unbind(d.identity(d.inst.NextSessionID()))
		},
	})
	return cmd
}
