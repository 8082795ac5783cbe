// Package config reads the device configuration from a prj.conf style file:
// one KEY=value per line, '#' comments, CONFIG_ prefix optional and keys
// case-insensitive.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/adv"
	"github.com/rigado/blesec/bond"
	"github.com/rigado/blesec/connection"
	"github.com/rigado/blesec/input"
	"github.com/rigado/blesec/smp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// maxNameLength is what fits in the payload next to the flags record.
const maxNameLength = 26

type Config struct {
	DeviceName          string                   `structs:"device_name"`
	ServiceUUID         string                   `structs:"service_uuid"`
	IOCapability        blesec.IOCapability      `structs:"io_capability"`
	TargetSecurityLevel blesec.SecurityLevel     `structs:"target_security_level"`
	ClearBondsOnBoot    bool                     `structs:"clear_bonds_on_boot"`
	PairingTimeout      time.Duration            `structs:"pairing_timeout"`
	SecurityFailure     connection.FailurePolicy `structs:"security_failure"`
	BondFile            string                   `structs:"bond_file"`
	Debounce            time.Duration            `structs:"debounce"`
	LogLevel            string                   `structs:"log_level"`
}

func Default() Config {
	return Config{
		DeviceName:          "blesec",
		IOCapability:        blesec.IOCapJustWorks,
		TargetSecurityLevel: blesec.SecurityEncrypted,
		ClearBondsOnBoot:    true,
		PairingTimeout:      smp.DefaultTimeout,
		SecurityFailure:     connection.FailDisconnect,
		BondFile:            bond.DefaultFilename,
		Debounce:            input.DefaultDebounce,
		LogLevel:            "info",
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	p, err := homedir.Expand(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config path %s", path)
	}

	f, err := os.Open(p)
	if err != nil {
		return Config{}, errors.Wrap(err, "can't open config")
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", p)
	}
	return cfg, nil
}

// Parse reads r over the defaults and validates the result. Keys this
// package does not know are skipped.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	log := blesec.ComponentLogger("config")

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		i := strings.Index(text, "=")
		if i < 0 {
			return Config{}, errors.Errorf("line %d: expected KEY=value", line)
		}

		key, value := text[:i], text[i+1:]
		known, err := cfg.Set(key, value)
		if err != nil {
			return Config{}, errors.Wrapf(err, "line %d", line)
		}
		if !known {
			log.Debugf("line %d: ignoring %s", line, strings.TrimSpace(key))
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "config_")
	if k == "bt_device_name" {
		return "device_name"
	}
	return k
}

func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		if s, err := strconv.Unquote(v); err == nil {
			return s
		}
		return v[1 : len(v)-1]
	}
	return v
}

func toBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "y":
		return true, nil
	case "n":
		return false, nil
	}
	return cast.ToBoolE(v)
}

// Set applies one key. It reports false for keys it does not know.
func (c *Config) Set(key, value string) (bool, error) {
	v := unquote(value)

	switch k := normalizeKey(key); k {
	case "device_name":
		c.DeviceName = v

	case "service_uuid":
		c.ServiceUUID = v

	case "io_capability":
		iocap, err := blesec.ParseIOCapability(v)
		if err != nil {
			return true, err
		}
		c.IOCapability = iocap

	case "target_security_level":
		n, err := cast.ToIntE(v)
		if err != nil {
			return true, errors.Wrapf(err, "%s", k)
		}
		c.TargetSecurityLevel = blesec.SecurityLevel(n)

	case "clear_bonds_on_boot":
		b, err := toBool(v)
		if err != nil {
			return true, errors.Wrapf(err, "%s", k)
		}
		c.ClearBondsOnBoot = b

	case "pairing_timeout_ms":
		n, err := cast.ToInt64E(v)
		if err != nil {
			return true, errors.Wrapf(err, "%s", k)
		}
		c.PairingTimeout = time.Duration(n) * time.Millisecond

	case "security_failure":
		p, err := connection.ParseFailurePolicy(v)
		if err != nil {
			return true, err
		}
		c.SecurityFailure = p

	case "bond_file":
		p, err := homedir.Expand(v)
		if err != nil {
			return true, errors.Wrapf(err, "%s", k)
		}
		c.BondFile = p

	case "debounce_ms":
		n, err := cast.ToInt64E(v)
		if err != nil {
			return true, errors.Wrapf(err, "%s", k)
		}
		c.Debounce = time.Duration(n) * time.Millisecond

	case "log_level":
		c.LogLevel = strings.ToLower(v)

	default:
		return false, nil
	}

	return true, nil
}

func (c Config) Validate() error {
	switch {
	case c.DeviceName == "":
		return errors.New("device_name is empty")
	case len(c.DeviceName) > maxNameLength:
		return errors.Errorf("device_name %q longer than %d bytes", c.DeviceName, maxNameLength)
	case !c.TargetSecurityLevel.Valid():
		return errors.Errorf("target_security_level %d out of range 1..4", int(c.TargetSecurityLevel))
	case c.PairingTimeout <= 0:
		return errors.New("pairing_timeout_ms must be positive")
	case c.Debounce < 0:
		return errors.New("debounce_ms must not be negative")
	case c.BondFile == "":
		return errors.New("bond_file is empty")
	}

	if _, err := c.Services(); err != nil {
		return err
	}

	if _, err := smp.NewPolicy(c.IOCapability); err != nil {
		return err
	}

	// just works carries no MITM protection
	if c.IOCapability == blesec.IOCapJustWorks && c.TargetSecurityLevel > blesec.SecurityEncrypted {
		return errors.Errorf("io_capability %s can't reach %s", c.IOCapability, c.TargetSecurityLevel)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}

	return nil
}

// Services returns the advertised service UUIDs, none when service_uuid is
// unset.
func (c Config) Services() ([]adv.UUID128, error) {
	if c.ServiceUUID == "" {
		return nil, nil
	}
	u, err := adv.ParseUUID128(c.ServiceUUID)
	if err != nil {
		return nil, errors.Wrap(err, "service_uuid")
	}
	return []adv.UUID128{u}, nil
}

// Fields returns the configuration as log fields.
func (c Config) Fields() map[string]interface{} {
	m := structs.Map(c)
	for k, v := range m {
		if s, ok := v.(interface{ String() string }); ok {
			m[k] = s.String()
		}
	}
	return m
}
