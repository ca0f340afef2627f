package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/backkem/hichain/pkg/transport"
)

func newServeCommand(g *globalFlags) *cobra.Command {
	var (
		listen  string
		pin     string
		metrics string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept binds and auths from controllers",
		Example: `  # Serve binds with PIN 314159 and expose metrics
  hichain serve -c lamp.yaml --listen :7575 --pin 314159 --metrics :9100`,
		Args: cobra.NoArgs,
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
			d.pin = []byte(pin)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := transport.NewServer(transport.ServerConfig{
				ListenAddr:    listen,
				Handler:       d.handleFrame,
				LoggerFactory: cfg.LoggerFactory(cmd.ErrOrStderr()),
			})
			if err != nil {
				return err
			}
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop()
			fmt.Fprintf(cmd.OutOrStdout(), "%s serving %s/%s on %s\n",
				cfg.Device.AuthID, cfg.Device.PackageName, cfg.Device.ServiceType, srv.Addr())

			if metrics != "" {
				hs := &http.Server{
					Addr:              metrics,
					Handler:           promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						d.log.Errorf("metrics server: %v", err)
					}
				}()
				defer hs.Shutdown(context.Background())
			}

			<-ctx.Done()
			fmt.Fprintln(cmd.OutOrStdout(), "shutting down")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":7575", "TCP address to listen on")
	cmd.Flags().StringVar(&pin, "pin", "", "PIN accepted for binds; binds are rejected without one")
	cmd.Flags().StringVar(&metrics, "metrics", "", "serve prometheus metrics on this address")
	return cmd
}
