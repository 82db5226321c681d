package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	HTTPAddr     string   // FLEET_HTTP_ADDR (default ":8080")
	GRPCAddr     string   // FLEET_GRPC_ADDR (default ":9090")
	NATSURL      string   // FLEET_NATS_URL (optional)
	KafkaBrokers []string // FLEET_KAFKA_BROKERS (optional, comma separated)
	AuthToken    string   // FLEET_AUTH_TOKEN (optional, empty = auth disabled)

	// Pull fallback
	SnapshotURL     string        // FLEET_SNAPSHOT_URL (JSON driver list)
	GTFSVehiclesURL string        // FLEET_GTFS_VEHICLES_URL (GTFS-realtime VehiclePositions)
	FeedAuthHeader  string        // FLEET_FEED_AUTH_HEADER
	FeedAuthValue   string        // FLEET_FEED_AUTH_VALUE
	PollInterval    time.Duration // FLEET_POLL_INTERVAL (default 30s; used without a push transport)

	// Stale-driver reaper
	StaleAfter    time.Duration // FLEET_STALE_AFTER (default 0 = reaper off)
	EvictAfter    time.Duration // FLEET_EVICT_AFTER (default 0 = never evict)
	SweepInterval time.Duration // FLEET_SWEEP_INTERVAL (default 30s)

	RejectOutOfOrder bool // FLEET_REJECT_OUT_OF_ORDER
	MirrorSnapshots  bool // FLEET_MIRROR_SNAPSHOTS (re-publish snapshots on the bus)

	LogFormat string // FLEET_LOG_FORMAT (text|json, default text)
	LogLevel  string // FLEET_LOG_LEVEL (default info)

	// File is the TOML file the values were layered over, if any.
	File string // FLEET_CONFIG
}

// fileConfig mirrors Config for the optional TOML file. Durations are
// strings in time.ParseDuration syntax.
type fileConfig struct {
	HTTPAddr         string   `toml:"http_addr"`
	GRPCAddr         string   `toml:"grpc_addr"`
	NATSURL          string   `toml:"nats_url"`
	KafkaBrokers     []string `toml:"kafka_brokers"`
	AuthToken        string   `toml:"auth_token"`
	SnapshotURL      string   `toml:"snapshot_url"`
	GTFSVehiclesURL  string   `toml:"gtfs_vehicles_url"`
	FeedAuthHeader   string   `toml:"feed_auth_header"`
	FeedAuthValue    string   `toml:"feed_auth_value"`
	PollInterval     string   `toml:"poll_interval"`
	StaleAfter       string   `toml:"stale_after"`
	EvictAfter       string   `toml:"evict_after"`
	SweepInterval    string   `toml:"sweep_interval"`
	RejectOutOfOrder *bool    `toml:"reject_out_of_order"`
	MirrorSnapshots  *bool    `toml:"mirror_snapshots"`
	LogFormat        string   `toml:"log_format"`
	LogLevel         string   `toml:"log_level"`
}

func (f fileConfig) values() map[string]string {
	v := map[string]string{
		"FLEET_HTTP_ADDR":         f.HTTPAddr,
		"FLEET_GRPC_ADDR":         f.GRPCAddr,
		"FLEET_NATS_URL":          f.NATSURL,
		"FLEET_KAFKA_BROKERS":     strings.Join(f.KafkaBrokers, ","),
		"FLEET_AUTH_TOKEN":        f.AuthToken,
		"FLEET_SNAPSHOT_URL":      f.SnapshotURL,
		"FLEET_GTFS_VEHICLES_URL": f.GTFSVehiclesURL,
		"FLEET_FEED_AUTH_HEADER":  f.FeedAuthHeader,
		"FLEET_FEED_AUTH_VALUE":   f.FeedAuthValue,
		"FLEET_POLL_INTERVAL":     f.PollInterval,
		"FLEET_STALE_AFTER":       f.StaleAfter,
		"FLEET_EVICT_AFTER":       f.EvictAfter,
		"FLEET_SWEEP_INTERVAL":    f.SweepInterval,
		"FLEET_LOG_FORMAT":        f.LogFormat,
		"FLEET_LOG_LEVEL":         f.LogLevel,
	}
	if f.RejectOutOfOrder != nil {
		v["FLEET_REJECT_OUT_OF_ORDER"] = strconv.FormatBool(*f.RejectOutOfOrder)
	}
	if f.MirrorSnapshots != nil {
		v["FLEET_MIRROR_SNAPSHOTS"] = strconv.FormatBool(*f.MirrorSnapshots)
	}
	return v
}

// Load reads configuration from the environment. When FLEET_CONFIG names
// a TOML file its values are used for every variable the environment
// leaves empty.
func Load() (*Config, error) {
	l := loader{file: map[string]string{}}

	if path := os.Getenv("FLEET_CONFIG"); path != "" {
		var fc fileConfig
		md, err := toml.DecodeFile(path, &fc)
		if err != nil {
			return nil, fmt.Errorf("FLEET_CONFIG: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("FLEET_CONFIG: unknown key %q", undecoded[0].String())
		}
		l.file = fc.values()
	}

	c := &Config{
		HTTPAddr:         l.get("FLEET_HTTP_ADDR", ":8080"),
		GRPCAddr:         l.get("FLEET_GRPC_ADDR", ":9090"),
		NATSURL:          l.get("FLEET_NATS_URL", ""),
		KafkaBrokers:     splitList(l.get("FLEET_KAFKA_BROKERS", "")),
		AuthToken:        l.get("FLEET_AUTH_TOKEN", ""),
		SnapshotURL:      l.get("FLEET_SNAPSHOT_URL", ""),
		GTFSVehiclesURL:  l.get("FLEET_GTFS_VEHICLES_URL", ""),
		FeedAuthHeader:   l.get("FLEET_FEED_AUTH_HEADER", ""),
		FeedAuthValue:    l.get("FLEET_FEED_AUTH_VALUE", ""),
		PollInterval:     l.duration("FLEET_POLL_INTERVAL", "30s"),
		StaleAfter:       l.duration("FLEET_STALE_AFTER", "0"),
		EvictAfter:       l.duration("FLEET_EVICT_AFTER", "0"),
		SweepInterval:    l.duration("FLEET_SWEEP_INTERVAL", "30s"),
		RejectOutOfOrder: l.boolean("FLEET_REJECT_OUT_OF_ORDER"),
		MirrorSnapshots:  l.boolean("FLEET_MIRROR_SNAPSHOTS"),
		LogFormat:        l.get("FLEET_LOG_FORMAT", "text"),
		LogLevel:         l.get("FLEET_LOG_LEVEL", "info"),
		File:             os.Getenv("FLEET_CONFIG"),
	}
	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks combinations that cannot be caught per variable.
func (c *Config) Validate() error {
	if c.NATSURL != "" && len(c.KafkaBrokers) > 0 {
		return fmt.Errorf("FLEET_NATS_URL and FLEET_KAFKA_BROKERS are mutually exclusive")
	}
	if c.SnapshotURL != "" && c.GTFSVehiclesURL != "" {
		return fmt.Errorf("FLEET_SNAPSHOT_URL and FLEET_GTFS_VEHICLES_URL are mutually exclusive")
	}
	for name, d := range map[string]time.Duration{
		"FLEET_POLL_INTERVAL":  c.PollInterval,
		"FLEET_STALE_AFTER":    c.StaleAfter,
		"FLEET_EVICT_AFTER":    c.EvictAfter,
		"FLEET_SWEEP_INTERVAL": c.SweepInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%s: must not be negative", name)
		}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("FLEET_LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return nil
}

// Transport names the push transport the configuration selects.
func (c *Config) Transport() string {
	switch {
	case c.NATSURL != "":
		return "nats"
	case len(c.KafkaBrokers) > 0:
		return "kafka"
	}
	return "none"
}

type loader struct {
	file map[string]string
	errs []error
}

func (l *loader) get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := l.file[key]; v != "" {
		return v
	}
	return fallback
}

func (l *loader) duration(key, fallback string) time.Duration {
	s := l.get(key, fallback)
	d, err := time.ParseDuration(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
	}
	return d
}

func (l *loader) boolean(key string) bool {
	s := l.get(key, "false")
	b, err := strconv.ParseBool(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
