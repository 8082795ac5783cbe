// +build !linux

package input

import (
	"context"

	"github.com/pkg/errors"
)

type GPIOConfig struct {
	AcceptPin int
	RejectPin int
	ActiveLow bool
	Root      string
}

type GPIOSource struct {
	cfg GPIOConfig
	in  Inputs
}

func NewGPIOSource(cfg GPIOConfig, in Inputs) *GPIOSource {
	return &GPIOSource{cfg: cfg, in: in}
}

func (g *GPIOSource) Run(ctx context.Context) error {
	return errors.New("gpio input is only supported on linux")
}
