package input

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/rigado/blesec"
)

// LineSource reads y/n answers, one per line.
type LineSource struct {
	r   io.Reader
	in  Inputs
	log blesec.Logger
}

func NewLineSource(r io.Reader, in Inputs) *LineSource {
	return &LineSource{r: r, in: in, log: blesec.ComponentLogger("input")}
}

// Run reads until EOF, a read error or ctx is done.
func (s *LineSource) Run(ctx context.Context) error {
	sc := bufio.NewScanner(s.r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch strings.ToLower(strings.TrimSpace(sc.Text())) {
		case "y", "yes", "a", "accept":
			s.in.OnAccept()
		case "n", "no", "r", "reject":
			s.in.OnReject()
		case "":
		default:
			s.log.Infof("unrecognized input %q, answer y or n", sc.Text())
		}
	}
	return sc.Err()
}
