// +build linux

package input

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"golang.org/x/sys/unix"
)

const defaultGPIORoot = "/sys/class/gpio"

const (
	pollTimeoutMs = 100
	pollEdge      = int16(unix.POLLPRI | unix.POLLERR)
)

// GPIOConfig names the sysfs pins of the two buttons.
type GPIOConfig struct {
	AcceptPin int
	RejectPin int

	// ActiveLow is set for buttons that pull the line to ground.
	ActiveLow bool

	// Root defaults to /sys/class/gpio.
	Root string
}

// GPIOSource waits for edges on two sysfs GPIO lines.
type GPIOSource struct {
	cfg GPIOConfig
	in  Inputs
	log blesec.Logger
}

func NewGPIOSource(cfg GPIOConfig, in Inputs) *GPIOSource {
	if cfg.Root == "" {
		cfg.Root = defaultGPIORoot
	}
	return &GPIOSource{cfg: cfg, in: in, log: blesec.ComponentLogger("input")}
}

// Run polls both lines until ctx is done.
func (g *GPIOSource) Run(ctx context.Context) error {
	acc, err := g.openPin(g.cfg.AcceptPin)
	if err != nil {
		return err
	}
	defer acc.Close()

	rej, err := g.openPin(g.cfg.RejectPin)
	if err != nil {
		return err
	}
	defer rej.Close()

	files := []*os.File{acc, rej}
	handlers := []func(){g.in.OnAccept, g.in.OnReject}

	// the first read clears any edge latched before we started
	for _, f := range files {
		if _, err := readValue(f); err != nil {
			return err
		}
	}

	pfds := []unix.PollFd{
		{Fd: int32(acc.Fd()), Events: pollEdge},
		{Fd: int32(rej.Fd()), Events: pollEdge},
	}

	g.log.Infof("watching gpio %d (accept) and %d (reject)", g.cfg.AcceptPin, g.cfg.RejectPin)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(pfds, pollTimeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "gpio poll")
		}
		if n == 0 {
			continue
		}

		for i := range pfds {
			if pfds[i].Revents&unix.POLLPRI == 0 {
				continue
			}
			v, err := readValue(files[i])
			if err != nil {
				return err
			}
			if v == '1' {
				handlers[i]()
			}
		}
	}
}

// openPin exports and configures pin and opens its value file.
func (g *GPIOSource) openPin(pin int) (*os.File, error) {
	dir := filepath.Join(g.cfg.Root, fmt.Sprintf("gpio%d", pin))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := writeAttr(filepath.Join(g.cfg.Root, "export"), fmt.Sprint(pin)); err != nil {
			return nil, errors.Wrapf(err, "can't export gpio %d", pin)
		}
	}

	activeLow := "0"
	if g.cfg.ActiveLow {
		activeLow = "1"
	}

	attrs := []struct{ name, value string }{
		{"direction", "in"},
		{"active_low", activeLow},
		{"edge", "rising"},
	}
	for _, a := range attrs {
		if err := writeAttr(filepath.Join(dir, a.name), a.value); err != nil {
			return nil, errors.Wrapf(err, "can't configure gpio %d %s", pin, a.name)
		}
	}

	f, err := os.Open(filepath.Join(dir, "value"))
	if err != nil {
		return nil, errors.Wrapf(err, "can't open gpio %d", pin)
	}
	return f, nil
}

func writeAttr(path, value string) error {
	return ioutil.WriteFile(path, []byte(value), 0644)
}

func readValue(f *os.File) (byte, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return 0, errors.Wrap(err, "gpio seek")
	}
	b := make([]byte, 1)
	if _, err := f.Read(b); err != nil {
		return 0, errors.Wrap(err, "gpio read")
	}
	return b[0], nil
}
