// Package sessionsweep implements the expiry sweep daemon: a periodic task
// that reaps expired sessions for one scope, preferring sessions this node
// owns before falling back to orphans.
package sessionsweep

import (
	"flag"
	"time"

	"github.com/louisbranch/sessiondb/internal/platform/config"
)

// Config holds sessionsweep configuration. Environment variables provide
// defaults; flags override.
type Config struct {
	Driver      string        `env:"SESSIONDB_DRIVER" envDefault:"sqlite"`
	DSN         string        `env:"SESSIONDB_DSN" envDefault:"sessions.db"`
	NodeID      string        `env:"SESSIONDB_NODE_ID"`
	ContextPath string        `env:"SESSIONDB_CONTEXT_PATH" envDefault:"/"`
	VirtualHost string        `env:"SESSIONDB_VIRTUAL_HOST"`
	Interval    time.Duration `env:"SESSIONDB_SWEEP_INTERVAL" envDefault:"30s"`
	MetricsAddr string        `env:"SESSIONDB_METRICS_ADDR"`
}

// ParseConfig reads the environment and then parses flags over it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "database/sql driver name (sqlite, pgx, mysql)")
	fs.StringVar(&cfg.DSN, "dsn", cfg.DSN, "database connection string")
	fs.StringVar(&cfg.NodeID, "node-id", cfg.NodeID, "cluster node id; defaults to the hostname")
	fs.StringVar(&cfg.ContextPath, "context-path", cfg.ContextPath, "web application context path to sweep")
	fs.StringVar(&cfg.VirtualHost, "virtual-host", cfg.VirtualHost, "virtual host to sweep; blank means the default host")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "time between sweeps")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "prometheus listen address; blank disables metrics")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
