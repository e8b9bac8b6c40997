// Package config resolves server configuration the way the teacher's
// cmd/serve package does: positional CLI arguments for the protocol's
// required invocation shape, plus viper-bound flags with SSTASH_
// environment-variable overrides and optional .env loading for the
// operational knobs the protocol itself leaves unspecified.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServerConfig is the fully resolved set of knobs the server entry
// point needs to start listening.
type ServerConfig struct {
	PrimaryAddr  string
	ReadOnlyAddr string
	// ReplicationAddr is where this node, acting as a leader, accepts
	// follower connections. Derived from PrimaryAddr's port + 1 rather
	// than taking its own flag, keeping the CLI's required positional
	// arguments exactly as spec'd.
	ReplicationAddr string
	// MasterAddr is empty when this node is a leader; otherwise it is
	// the replication-listener address of the leader this node follows
	// (the configured master_port + 1, mirroring ReplicationAddr).
	MasterAddr string

	DataDir            string
	SnapshotInterval   time.Duration
	ExpireInterval     time.Duration
	StripeCount        int
	LogLevel           string
	MetricsAddr        string
	DefaultMaxKeyCount int
}

// BindFlags registers the operational flags on cmd and binds them
// through viper, matching the teacher's serve command's flag wiring.
func BindFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", ".", "directory for off-heap stash files and snapshots")
	cmd.Flags().Duration("snapshot-interval", 60*time.Second, "how often each stash's snapshot scheduler ticks")
	cmd.Flags().Duration("expire-interval", 1*time.Second, "how often the shared active TTL sweep runs across every stash")
	cmd.Flags().Int("stripe-count", 16, "number of lock stripes per stash")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("metrics-addr", "", "address to serve Prometheus-text metrics on (empty disables)")
	cmd.Flags().Int("default-max-keys", 1_000_000, "max key count for the default stash")
}

// InitViper loads .env files and configures SSTASH_-prefixed
// environment variable overrides, mirroring the teacher's initConfig.
func InitViper() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("sstash")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// FromArgs parses the required positional arguments
// (`sstash <primary_port> <read_only_port> [master_ip master_port]`)
// and combines them with the already-bound viper flags.
func FromArgs(cmd *cobra.Command, args []string) (ServerConfig, error) {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return ServerConfig{}, err
	}

	if len(args) != 2 && len(args) != 4 {
		return ServerConfig{}, fmt.Errorf("usage: sstash <primary_port> <read_only_port> [master_ip master_port]")
	}

	primaryPort, err := strconv.Atoi(args[0])
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid primary_port %q: %w", args[0], err)
	}
	readOnlyPort, err := strconv.Atoi(args[1])
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid read_only_port %q: %w", args[1], err)
	}

	var masterAddr string
	if len(args) == 4 {
		masterPort, err := strconv.Atoi(args[3])
		if err != nil {
			return ServerConfig{}, fmt.Errorf("invalid master_port %q: %w", args[3], err)
		}
		masterAddr = net.JoinHostPort(args[2], strconv.Itoa(masterPort+1))
	}

	return ServerConfig{
		PrimaryAddr:        fmt.Sprintf(":%d", primaryPort),
		ReadOnlyAddr:       fmt.Sprintf(":%d", readOnlyPort),
		ReplicationAddr:    fmt.Sprintf(":%d", primaryPort+1),
		MasterAddr:         masterAddr,
		DataDir:            viper.GetString("data-dir"),
		SnapshotInterval:   viper.GetDuration("snapshot-interval"),
		ExpireInterval:     viper.GetDuration("expire-interval"),
		StripeCount:        viper.GetInt("stripe-count"),
		LogLevel:           viper.GetString("log-level"),
		MetricsAddr:        viper.GetString("metrics-addr"),
		DefaultMaxKeyCount: viper.GetInt("default-max-keys"),
	}, nil
}
