package config

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/rigado/blesec"
	"github.com/rigado/blesec/connection"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.PairingTimeout != 30*time.Second {
		t.Fatalf("timeout %s", cfg.PairingTimeout)
	}
	if !cfg.ClearBondsOnBoot {
		t.Fatal("bonds should be cleared on boot by default")
	}
}

const prjConf = `
# Bluetooth
CONFIG_BT=y
CONFIG_BT_PERIPHERAL=y
CONFIG_BT_DEVICE_NAME="Security Lab"
CONFIG_IO_CAPABILITY=confirm
target_security_level=4
Clear_Bonds_On_Boot=n
PAIRING_TIMEOUT_MS=15000
security_failure=continue
debounce_ms=20
log_level=DEBUG
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(prjConf))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DeviceName != "Security Lab" {
		t.Fatalf("name %q", cfg.DeviceName)
	}
	if cfg.IOCapability != blesec.IOCapConfirm {
		t.Fatalf("io cap %s", cfg.IOCapability)
	}
	if cfg.TargetSecurityLevel != blesec.SecurityLESecure {
		t.Fatalf("level %s", cfg.TargetSecurityLevel)
	}
	if cfg.ClearBondsOnBoot {
		t.Fatal("clear_bonds_on_boot=n ignored")
	}
	if cfg.PairingTimeout != 15*time.Second {
		t.Fatalf("timeout %s", cfg.PairingTimeout)
	}
	if cfg.SecurityFailure != connection.FailContinue {
		t.Fatalf("failure policy %s", cfg.SecurityFailure)
	}
	if cfg.Debounce != 20*time.Millisecond {
		t.Fatalf("debounce %s", cfg.Debounce)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"no equals sign",
		"target_security_level=5",
		"target_security_level=high",
		"io_capability=keyboard",
		"pairing_timeout_ms=0",
		"clear_bonds_on_boot=maybe",
		"security_failure=explode",
		"device_name=",
		"device_name=" + strings.Repeat("x", 27),
		"log_level=loud",
		"service_uuid=10318a23-75d6",
		// just works can't authenticate
		"io_capability=JustWorks\ntarget_security_level=3",
	}

	for _, in := range bad {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
}

func TestServiceUUID(t *testing.T) {
	cfg, err := Parse(strings.NewReader("service_uuid=\"10318a23-75d6-4868-bbf9-cee1804ed43d\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	u, err := cfg.Services()
	if err != nil {
		t.Fatal(err)
	}
	if len(u) != 1 || u[0].String() != "10318a23-75d6-4868-bbf9-cee1804ed43d" {
		t.Fatalf("services %v", u)
	}

	if u, err := Default().Services(); err != nil || u != nil {
		t.Fatalf("default services %v %v", u, err)
	}
}

func TestLoadExpandsBondFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prj.conf")
	if err := ioutil.WriteFile(path, []byte("bond_file=~/bonds.json\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	home, err := homedir.Dir()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BondFile != filepath.Join(home, "bonds.json") {
		t.Fatalf("bond file %q", cfg.BondFile)
	}

	if _, err := Load(filepath.Join(dir, "missing.conf")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFields(t *testing.T) {
	f := Default().Fields()
	if f["device_name"] != "blesec" {
		t.Fatalf("device_name %v", f["device_name"])
	}
	if f["io_capability"] != "JustWorks" {
		t.Fatalf("io_capability %v", f["io_capability"])
	}
	if f["pairing_timeout"] != "30s" {
		t.Fatalf("pairing_timeout %v", f["pairing_timeout"])
	}
	if f["clear_bonds_on_boot"] != true {
		t.Fatalf("clear_bonds_on_boot %v", f["clear_bonds_on_boot"])
	}
}
