package input

import (
	"context"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/blesec"
)

// SerialConfig describes a button board that sends one byte per press:
// 'y', 'Y', 'a' or '1' for accept and 'n', 'N', 'r' or '0' for reject.
type SerialConfig struct {
	Port string
	Baud uint
}

type SerialSource struct {
	opts serial.OpenOptions
	in   Inputs
	log  blesec.Logger
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)
}

func NewSerialSource(cfg SerialConfig, in Inputs) *SerialSource {
	baud := cfg.Baud
	if baud == 0 {
		baud = 115200
	}

	return &SerialSource{
		opts: serial.OpenOptions{
			PortName:              cfg.Port,
			BaudRate:              baud,
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       0,
			InterCharacterTimeout: 100,
		},
		in:   in,
		log:  blesec.ComponentLogger("input"),
		open: serial.Open,
	}
}

// Run reads the port until ctx is done or the port fails.
func (s *SerialSource) Run(ctx context.Context) error {
	sp, err := s.open(s.opts)
	if err != nil {
		return errors.Wrapf(err, "can't open %s", s.opts.PortName)
	}
	defer sp.Close()

	s.log.Infof("reading buttons from %s", s.opts.PortName)

	b := make([]byte, 16)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := sp.Read(b)
		s.handle(b[:n])

		switch {
		case err == io.EOF:
			// read timed out with nothing pending
			if n == 0 {
				time.Sleep(10 * time.Millisecond)
			}
		case err != nil:
			return errors.Wrap(err, "can't read serial")
		}
	}
}

func (s *SerialSource) handle(p []byte) {
	for _, c := range p {
		switch c {
		case 'y', 'Y', 'a', '1':
			s.in.OnAccept()
		case 'n', 'N', 'r', '0':
			s.in.OnReject()
		case '\r', '\n':
		default:
			s.log.Debugf("ignoring byte 0x%02x", c)
		}
	}
}
