package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/blesec"
	"github.com/rigado/blesec/bond"
	"github.com/rigado/blesec/input"
	"github.com/rigado/blesec/peripheral"
	"github.com/rigado/blesec/sim"
	"github.com/rigado/blesec/smp"
)

const localAddr = "c0:de:00:00:00:01"

var peerIOCaps = map[string]byte{
	"display":   smp.IoCapDisplayOnly,
	"yesno":     smp.IoCapDisplayYesNo,
	"keyboard":  smp.IoCapKeyboardOnly,
	"none":      smp.IoCapNoInputNoOutput,
	"kbdisplay": smp.IoCapKeyboardDisplay,
}

type source interface {
	Run(ctx context.Context) error
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	local, err := blesec.ParsePeerIdentity(localAddr, blesec.AddrRandom)
	if err != nil {
		return err
	}

	store := bond.New(cfg.BondFile)
	stack, err := sim.New(sim.Config{Address: local, Capability: cfg.IOCapability, Bonds: store})
	if err != nil {
		return errors.Wrap(err, "can't create stack")
	}
	defer stack.Close()

	d, err := peripheral.New(cfg, stack,
		blesec.OptBondStore(store),
		blesec.OptPasskeyDisplay(func(peer blesec.PeerIdentity, passkey uint32) {
			fmt.Printf("Passkey for %s: %06d\n", peer, passkey)
		}))
	if err != nil {
		return errors.Wrap(err, "can't create device")
	}
	defer d.Close()

	if err := stack.Attach(d); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("duration"))
	defer cancel()
	ctx = withSigHandler(ctx, cancel)

	if err := d.Start(ctx); err != nil {
		return err
	}
	fmt.Printf("Advertising %x\n", stack.Payload())

	src, err := inputSource(c, d.Inputs())
	if err != nil {
		return err
	}
	go func() {
		if err := src.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "input: %v\n", err)
		}
	}()

	if addr := c.String("peer"); addr != "" {
		p, err := simPeer(c, addr)
		if err != nil {
			return err
		}
		if _, err := stack.Connect(p); err != nil {
			return errors.Wrap(err, "can't connect peer")
		}
	}

	for {
		select {
		case e, ok := <-d.Events():
			if !ok {
				return nil
			}
			fmt.Printf("%s\n", e)
			if e.Session != nil && e.Session.Outcome() == smp.AwaitingInput {
				fmt.Printf("Accept passkey? [y/n]\n")
			}
		case <-ctx.Done():
			return chkErr(ctx.Err())
		}
	}
}

func inputSource(c *cli.Context, in input.Inputs) (source, error) {
	switch strings.ToLower(c.String("input")) {
	case "stdin":
		return input.NewLineSource(os.Stdin, in), nil
	case "serial":
		return input.NewSerialSource(input.SerialConfig{
			Port: c.String("port"),
			Baud: c.Uint("baud"),
		}, in), nil
	case "gpio":
		return input.NewGPIOSource(input.GPIOConfig{
			AcceptPin: c.Int("accept-pin"),
			RejectPin: c.Int("reject-pin"),
			ActiveLow: c.Bool("active-low"),
		}, in), nil
	}
	return nil, errors.Errorf("unknown input %q", c.String("input"))
}

func simPeer(c *cli.Context, addr string) (sim.Peer, error) {
	id, err := blesec.ParsePeerIdentity(addr, blesec.AddrPublic)
	if err != nil {
		return sim.Peer{}, err
	}

	ioCap, ok := peerIOCaps[strings.ToLower(c.String("peer-iocap"))]
	if !ok {
		return sim.Peer{}, errors.Errorf("unknown io capability %q", c.String("peer-iocap"))
	}

	p := sim.DefaultPeer(id)
	p.IOCap = ioCap
	p.SecureConnections = !c.Bool("legacy")
	return p, nil
}
