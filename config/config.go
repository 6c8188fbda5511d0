// Package config loads the registry's TOML configuration.
package config

import (
	"encoding/hex"
	"time"

	"github.com/BurntSushi/toml"
	secp256k1 "github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/xerrors"

	"github.com/LavaMoat/ipfs-registry/core"
	"github.com/LavaMoat/ipfs-registry/layer"
)

// DefaultBodyLimit caps uploads at 16 MiB unless configured.
const DefaultBodyLimit = 16 << 20

// DefaultMime is the archive content type required on publish.
const DefaultMime = "application/gzip"

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Storage  StorageConfig  `toml:"storage"`
	Registry RegistryConfig `toml:"registry"`
	CORS     CORSConfig     `toml:"cors"`
	TLS      TLSConfig      `toml:"tls"`
	Webhooks WebhookConfig  `toml:"webhooks"`
}

type DatabaseConfig struct {
	URL string `toml:"url"`
}

type StorageConfig struct {
	Layers []layer.Config `toml:"layers"`

	// TimeoutSeconds bounds each per-layer storage operation.
	TimeoutSeconds int `toml:"timeout"`
}

func (s StorageConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

type RegistryConfig struct {
	Kind      string   `toml:"kind"`
	BodyLimit int64    `toml:"body-limit"`
	Mime      string   `toml:"mime"`
	Allow     []string `toml:"allow"`
	Deny      []string `toml:"deny"`
}

type CORSConfig struct {
	Origins []string `toml:"origins"`
}

type TLSConfig struct {
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

type WebhookConfig struct {
	Endpoints []string `toml:"endpoints"`

	// SigningKey is the hex encoded secp256k1 private key used to
	// sign webhook payloads.
	SigningKey string `toml:"signing-key"`

	RetryLimit     uint64 `toml:"retry-limit"`
	BackoffSeconds int    `toml:"backoff-seconds"`
}

func (w WebhookConfig) BackoffDuration() time.Duration {
	return time.Duration(w.BackoffSeconds) * time.Second
}

// Load reads and validates the configuration file, filling defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, xerrors.Errorf("reading config %s: %w", path, err)
	}
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) fill() error {
	if c.Database.URL == "" {
		return xerrors.Errorf("database.url is required")
	}
	if len(c.Storage.Layers) == 0 {
		return xerrors.Errorf("storage needs at least one layer")
	}
	if c.Registry.BodyLimit <= 0 {
		c.Registry.BodyLimit = DefaultBodyLimit
	}
	if c.Registry.Mime == "" {
		c.Registry.Mime = DefaultMime
	}
	if c.Registry.Kind == "" {
		c.Registry.Kind = "npm"
	}
	if len(c.Webhooks.Endpoints) > 0 && c.Webhooks.SigningKey == "" {
		return xerrors.Errorf("webhooks.signing-key is required when endpoints are configured")
	}
	if c.Webhooks.RetryLimit == 0 {
		c.Webhooks.RetryLimit = 5
	}
	if c.Webhooks.BackoffSeconds == 0 {
		c.Webhooks.BackoffSeconds = 1
	}
	if _, err := c.AllowList(); err != nil {
		return err
	}
	if _, err := c.DenyList(); err != nil {
		return err
	}
	return nil
}

// AllowList parses registry.allow.
func (c *Config) AllowList() ([]core.Address, error) {
	return parseAddresses(c.Registry.Allow)
}

// DenyList parses registry.deny.
func (c *Config) DenyList() ([]core.Address, error) {
	return parseAddresses(c.Registry.Deny)
}

func parseAddresses(in []string) ([]core.Address, error) {
	out := make([]core.Address, 0, len(in))
	for _, s := range in {
		addr, err := core.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// WebhookSigningKey parses webhooks.signing-key.
func (c *Config) WebhookSigningKey() (*secp256k1.PrivateKey, error) {
	if c.Webhooks.SigningKey == "" {
		return nil, nil
	}
	raw, err := hex.DecodeString(c.Webhooks.SigningKey)
	if err != nil {
		return nil, xerrors.Errorf("webhooks.signing-key: %w", err)
	}
	return secp256k1.PrivKeyFromBytes(raw), nil
}
