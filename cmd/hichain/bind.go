package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/hichain/pkg/hichain"
	"github.com/backkem/hichain/pkg/session"
	"github.com/backkem/hichain/pkg/transport"
)

type centreFlags struct {
	peer    string
	timeout time.Duration
}

func (f *centreFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.peer, "peer", "", "address of the accessory")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "give up after this long")
	cmd.MarkFlagRequired("peer")
}

func newBindCommand(g *globalFlags) *cobra.Command {
	var (
		cf  centreFlags
		pin string
	)
	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind to an accessory with a shared PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCentre(cmd, g, cf, session.OperationBind, func(d *device) {
				d.pin = []byte(pin)
			})
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&pin, "pin", "", "PIN shown by the accessory")
	cmd.MarkFlagRequired("pin")
	return cmd
}

func newAuthCommand(g *globalFlags) *cobra.Command {
	var (
		cf     centreFlags
		peerID string
	)
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate a bound accessory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCentre(cmd, g, cf, session.OperationAuth, func(d *device) {
				d.peerID = []byte(peerID)
			})
		},
	}
	cf.register(cmd)
	cmd.Flags().StringVar(&peerID, "peer-id", "", "auth id of the bound accessory")
	cmd.MarkFlagRequired("peer-id")
	return cmd
}

// runCentre dials the peer, runs one session and waits for its result.
func runCentre(cmd *cobra.Command, g *globalFlags, cf centreFlags, op session.Operation, setup func(*device)) error {
	cfg, err := loadConfig(g)
	if err != nil {
		return err
	}
	d, err := openDevice(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer d.Close()
	setup(d)

	ctx, cancel := context.WithTimeout(cmd.Context(), cf.timeout)
	defer cancel()

	link, err := transport.Dial(ctx, cf.peer, d.handleFrame, cfg.LoggerFactory(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer link.Close()

	id := d.identity(d.inst.NextSessionID())
	done := d.expect(id.SessionID, link)
	if op == session.OperationBind {
		err = d.inst.StartBind(id)
	} else {
		err = d.inst.StartAuth(id)
	}
	if err != nil {
		return err
	}
	return waitResult(ctx, d, id.SessionID, done, link)
}

func waitResult(ctx context.Context, d *device, sessionID uint64, done <-chan hichain.Result, link *transport.Link) error {
	select {
	case r := <-done:
		if !r.OK() {
			return fmt.Errorf("session %d: %s", sessionID, r.Code)
		}
		return nil
	case <-link.Done():
		d.inst.CloseSession(sessionID)
		if err := link.Err(); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}
		return errors.New("connection closed by peer")
	case <-ctx.Done():
		d.inst.CloseSession(sessionID)
		return ctx.Err()
	}
}
