package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/backkem/hichain/pkg/config"
	"github.com/backkem/hichain/pkg/transport"
)

const demoPIN = "314159"

func newDemoCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Bind and authenticate two in-memory devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := g.LogLevel
			if level == "" {
				level = "warn"
			}
			newCfg := func(authID, userType string) (*config.Config, error) {
				return config.Parse([]byte(fmt.Sprintf(
					"device: {auth_id: %s, user_type: %s, package_name: com.example.demo, service_type: light}\nlog_level: %s\n",
					authID, userType, level)))
			}
			phoneCfg, err := newCfg("phone", "controller")
			if err != nil {
				return err
			}
			lampCfg, err := newCfg("lamp", "accessory")
			if err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			phone, err := openDevice(phoneCfg, prefixed(out, "phone"))
			if err != nil {
				return err
			}
			defer phone.Close()
			lamp, err := openDevice(lampCfg, prefixed(out, "lamp"))
			if err != nil {
				return err
			}
			defer lamp.Close()
			phone.pin = []byte(demoPIN)
			lamp.pin = []byte(demoPIN)

			pair, err := transport.NewLinkPair(transport.DefaultPipeConfig(),
				[2]transport.FrameHandler{phone.handleFrame, lamp.handleFrame}, nil)
			if err != nil {
				return err
			}
			defer pair.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := demoSession(ctx, phone, lamp, pair, false); err != nil {
				return err
			}
			phone.peerID = []byte("lamp")
			return demoSession(ctx, phone, lamp, pair, true)
		},
	}
}

// demoSession runs one session from phone to lamp and waits for both sides.
func demoSession(ctx context.Context, phone, lamp *device, pair *transport.LinkPair, auth bool) error {
	id := phone.identity(phone.inst.NextSessionID())
	done := phone.expect(id.SessionID, pair.Link(0))
	lampDone := lamp.expect(id.SessionID, pair.Link(1))

	start := phone.inst.StartBind
	if auth {
		start = phone.inst.StartAuth
	}
	if err := start(id); err != nil {
		return err
	}
	if err := waitResult(ctx, phone, id.SessionID, done, pair.Link(0)); err != nil {
		return err
	}
	select {
	case r := <-lampDone:
		if !r.OK() {
			return fmt.Errorf("lamp session %d: %s", id.SessionID, r.Code)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
