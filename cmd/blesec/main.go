package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/blesec/config"
)

func main() {
	app := cli.NewApp()

	app.Name = "blesec"
	app.Usage = "BLE peripheral pairing and bond policy"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{flgConfig}

	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run the peripheral against the simulated stack",
			Action: run,
			Flags: []cli.Flag{
				flgDuration,
				flgInput,
				flgSerialPort,
				flgBaud,
				flgAcceptPin,
				flgRejectPin,
				flgActiveLow,
				flgPeer,
				flgPeerIOCap,
				flgLegacy,
			},
		},
		{
			Name:  "bonds",
			Usage: "Inspect or clear stored bonds",
			Subcommands: []cli.Command{
				{
					Name:   "list",
					Usage:  "List stored bonds",
					Action: bondsList,
				},
				{
					Name:      "clear",
					Usage:     "Clear one bond, or all of them",
					ArgsUsage: "[address [public|random]]",
					Action:    bondsClear,
				},
			},
		},
		{
			Name:   "config",
			Usage:  "Print the resolved configuration",
			Action: showConfig,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	path := c.GlobalString("config")
	if path == "" {
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, errors.Wrap(err, "can't load config")
	}
	return cfg, nil
}

func showConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	for k, v := range cfg.Fields() {
		fmt.Printf("%s=%v\n", k, v)
	}
	return nil
}

// withSigHandler cancels the returned context on SIGINT or SIGTERM.
func withSigHandler(ctx context.Context, cancel context.CancelFunc) context.Context {
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Printf("(SIGINT)\n")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx
}

func chkErr(err error) error {
	switch errors.Cause(err) {
	case context.DeadlineExceeded:
		return nil
	case context.Canceled:
		fmt.Printf("\n(Canceled)\n")
		return nil
	}
	return err
}
