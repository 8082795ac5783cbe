package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/rigado/blesec"
	"github.com/rigado/blesec/bond"
)

func bondStore(c *cli.Context) (*bond.Store, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return bond.New(cfg.BondFile), nil
}

func bondsList(c *cli.Context) error {
	s, err := bondStore(c)
	if err != nil {
		return err
	}

	recs, err := s.List()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Printf("No bonds in %s\n", s.Filename())
		return nil
	}

	for _, r := range recs {
		irk := "-"
		if k := r.Info.IdentityKey(); len(k) != 0 {
			irk = fmt.Sprintf("%x", k)
		}
		fmt.Printf("%-24s %-9s legacy=%-5t irk=%s\n", r.Peer, r.Info.Level(), r.Info.Legacy(), irk)
	}
	return nil
}

func bondsClear(c *cli.Context) error {
	s, err := bondStore(c)
	if err != nil {
		return err
	}

	if c.NArg() == 0 {
		if err := s.ClearAll(); err != nil {
			return err
		}
		fmt.Printf("Cleared all bonds\n")
		return nil
	}

	t, err := blesec.ParseAddrType(c.Args().Get(1))
	if err != nil {
		return err
	}
	peer, err := blesec.ParsePeerIdentity(c.Args().Get(0), t)
	if err != nil {
		return errors.Wrap(err, "can't parse peer")
	}

	if err := s.ClearOne(peer); err != nil {
		return err
	}
	fmt.Printf("Cleared bond for %s\n", peer)
	return nil
}
