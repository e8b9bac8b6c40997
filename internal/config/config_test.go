package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newBoundCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "sstash"}
	BindFlags(cmd)
	return cmd
}

func TestFromArgsRejectsWrongArgCount(t *testing.T) {
	viper.Reset()
	_, err := FromArgs(newBoundCmd(), []string{"7000"})
	if err == nil {
		t.Fatalf("expected an error for a single positional argument")
	}

	viper.Reset()
	_, err = FromArgs(newBoundCmd(), []string{"7000", "7001", "127.0.0.1"})
	if err == nil {
		t.Fatalf("expected an error for three positional arguments")
	}
}

func TestFromArgsRejectsNonNumericPort(t *testing.T) {
	viper.Reset()
	if _, err := FromArgs(newBoundCmd(), []string{"not-a-port", "7001"}); err == nil {
		t.Fatalf("expected an error for a non-numeric primary_port")
	}
}

func TestFromArgsStandaloneHasNoMasterAddr(t *testing.T) {
	viper.Reset()
	cfg, err := FromArgs(newBoundCmd(), []string{"7000", "7001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.PrimaryAddr != ":7000" || cfg.ReadOnlyAddr != ":7001" {
		t.Fatalf("unexpected addrs: %+v", cfg)
	}
	if cfg.ReplicationAddr != ":7001" {
		t.Fatalf("expected replication addr derived from primary_port+1, got %q", cfg.ReplicationAddr)
	}
	if cfg.MasterAddr != "" {
		t.Fatalf("expected no master addr for a standalone/leader node, got %q", cfg.MasterAddr)
	}
}

func TestFromArgsFollowerDerivesMasterReplicationPort(t *testing.T) {
	viper.Reset()
	cfg, err := FromArgs(newBoundCmd(), []string{"7000", "7001", "10.0.0.5", "9000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MasterAddr != "10.0.0.5:9001" {
		t.Fatalf("expected master addr to dial master_port+1, got %q", cfg.MasterAddr)
	}
}

func TestFromArgsAppliesDefaultFlagValues(t *testing.T) {
	viper.Reset()
	cfg, err := FromArgs(newBoundCmd(), []string{"7000", "7001"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DataDir != "." {
		t.Fatalf("expected default data dir \".\", got %q", cfg.DataDir)
	}
	if cfg.SnapshotInterval != 60*time.Second {
		t.Fatalf("expected default snapshot interval 60s, got %v", cfg.SnapshotInterval)
	}
	if cfg.ExpireInterval != 1*time.Second {
		t.Fatalf("expected default expire interval 1s, got %v", cfg.ExpireInterval)
	}
	if cfg.StripeCount != 16 {
		t.Fatalf("expected default stripe count 16, got %d", cfg.StripeCount)
	}
	if cfg.DefaultMaxKeyCount != 1_000_000 {
		t.Fatalf("expected default max key count 1000000, got %d", cfg.DefaultMaxKeyCount)
	}
}
