package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	flgConfig     = cli.StringFlag{Name: "config, c", Usage: "prj.conf style configuration file"}
	flgDuration   = cli.DurationFlag{Name: "duration, d", Value: time.Minute, Usage: "how long to run"}
	flgInput      = cli.StringFlag{Name: "input, i", Value: "stdin", Usage: "confirmation input (stdin / serial / gpio)"}
	flgSerialPort = cli.StringFlag{Name: "port", Value: "/dev/ttyUSB0", Usage: "serial button board"}
	flgBaud       = cli.UintFlag{Name: "baud", Value: 115200, Usage: "serial baud rate"}
	flgAcceptPin  = cli.IntFlag{Name: "accept-pin", Value: 17, Usage: "accept button gpio"}
	flgRejectPin  = cli.IntFlag{Name: "reject-pin", Value: 27, Usage: "reject button gpio"}
	flgActiveLow  = cli.BoolFlag{Name: "active-low", Usage: "buttons pull the line low"}
	flgPeer       = cli.StringFlag{Name: "peer, p", Usage: "address of a simulated central to connect"}
	flgPeerIOCap  = cli.StringFlag{Name: "peer-iocap", Value: "yesno", Usage: "central io capability (display / yesno / keyboard / none / kbdisplay)"}
	flgLegacy     = cli.BoolFlag{Name: "legacy", Usage: "central uses legacy pairing"}
)
