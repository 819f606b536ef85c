package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := []byte("owner: \"0x0000000000000000000000000000000000000001\"\nassets:\n  - \"0x00000000000000000000000000000000000000aa\"\n  - \"0x00000000000000000000000000000000000000bb\"\ninterval: 5m\n")
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CLOUDMINING_LEDGER_NAME", "pool-a")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.Int("max-retries", 5, "")
	if err := flags.Parse([]string{"--log-level=debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(cfgPath, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LedgerName != "pool-a" {
		t.Fatalf("ledger name = %q", cfg.LedgerName)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("max retries = %d", cfg.MaxRetries)
	}
	if cfg.Interval != 5*time.Minute {
		t.Fatalf("interval = %s", cfg.Interval)
	}
	if len(cfg.Assets) != 2 {
		t.Fatalf("assets = %v", cfg.Assets)
	}
	if cfg.Caller != cfg.Owner {
		t.Fatalf("caller should default to owner, got %q", cfg.Caller)
	}
	if cfg.StateFile != "./data/ledger.json" {
		t.Fatalf("state file = %q", cfg.StateFile)
	}
}

func TestParseAddresses(t *testing.T) {
	addrs, err := ParseAddresses([]string{" 0x00000000000000000000000000000000000000aa", "", "0x00000000000000000000000000000000000000BB"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(addrs) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(addrs))
	}
	if _, err := ParseAddresses([]string{"0x1234"}); err == nil {
		t.Fatalf("expected error for short address")
	}
	if _, err := ParseAddress("not-an-address"); err == nil {
		t.Fatalf("expected error")
	}
}
