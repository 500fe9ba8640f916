package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/rennerdo30/pacparser/internal/accesscontrol"
	"github.com/rennerdo30/pacparser/internal/logging"
	"github.com/rennerdo30/pacparser/internal/ratelimit"
	"github.com/rennerdo30/pacparser/internal/util"
)

// Resolver modes.
const (
	ResolverSystem   = "system"
	ResolverUpstream = "upstream"
)

// Config is the main configuration for the pacparser service.
type Config struct {
	PAC      PACConfig      `yaml:"pac" json:"pac"`
	Resolver ResolverConfig `yaml:"resolver" json:"resolver"`
	Logging  logging.Config `yaml:"logging" json:"logging"`
	API      APIConfig      `yaml:"api" json:"api"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// PACConfig selects the script and the engine options.
type PACConfig struct {
	File      string `yaml:"file" json:"file"`
	Exclusive bool   `yaml:"exclusive" json:"exclusive"`
	MyIP      string `yaml:"my_ip,omitempty" json:"my_ip,omitempty"`
}

// ResolverConfig configures the DNS used by the PAC host functions.
type ResolverConfig struct {
	Mode    string              `yaml:"mode" json:"mode"` // system, upstream
	Servers []string            `yaml:"servers,omitempty" json:"servers,omitempty"`
	Timeout Duration            `yaml:"timeout" json:"timeout"`
	Hosts   map[string][]string `yaml:"hosts,omitempty" json:"hosts,omitempty"` // static overrides
}

// APIConfig contains REST API settings.
type APIConfig struct {
	Listen         string   `yaml:"listen" json:"listen"`
	Token          string   `yaml:"token" json:"token,omitempty"`
	TokenHash      string   `yaml:"token_hash,omitempty" json:"token_hash,omitempty"` // bcrypt
	Allow          []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny           []string `yaml:"deny,omitempty" json:"deny,omitempty"`

	RateLimit ratelimit.Config `yaml:"rate_limit" json:"rate_limit"`
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled            bool     `yaml:"enabled" json:"enabled"`
	Path               string   `yaml:"path" json:"path"`
	CollectionInterval Duration `yaml:"collection_interval" json:"collection_interval"`
}

// Duration is a time.Duration that can be unmarshaled from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns a configuration with sensible defaults.
func Default() Config {
	return Config{
		PAC: PACConfig{
			File: "proxy.pac",
		},
		Resolver: ResolverConfig{
			Mode:    ResolverSystem,
			Timeout: Duration(5 * time.Second),
		},
		Logging: logging.DefaultConfig(),
		API: APIConfig{
			Listen:         "127.0.0.1:8089",
			RequestTimeout: Duration(30 * time.Second),
		},
		Metrics: MetricsConfig{
			Enabled:            true,
			Path:               "/metrics",
			CollectionInterval: Duration(15 * time.Second),
		},
	}
}

// Validate validates every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs util.MultiError

	errs.Add(c.PAC.Validate())
	errs.Add(c.Resolver.Validate())
	errs.Add(c.Logging.Validate())
	errs.Add(c.API.Validate())
	errs.Add(c.Metrics.Validate())

	return errs.Err()
}

// Validate checks the PAC section.
func (c PACConfig) Validate() error {
	if c.File == "" {
		return errors.New("pac.file is required")
	}
	if c.MyIP != "" {
		if _, err := netip.ParseAddr(c.MyIP); err != nil {
			return fmt.Errorf("pac.my_ip: %w", err)
		}
	}
	return nil
}

// Validate checks the resolver section.
func (c ResolverConfig) Validate() error {
	switch c.Mode {
	case "", ResolverSystem:
	case ResolverUpstream:
		if len(c.Servers) == 0 {
			return errors.New("resolver.servers is required in upstream mode")
		}
	default:
		return fmt.Errorf("resolver.mode: unknown mode %q", c.Mode)
	}
	if c.Timeout < 0 {
		return errors.New("resolver.timeout must not be negative")
	}
	for name, addrs := range c.Hosts {
		if len(addrs) == 0 {
			return fmt.Errorf("resolver.hosts.%s: no addresses", name)
		}
	}
	return nil
}

// Validate checks the API section.
func (c APIConfig) Validate() error {
	if c.Listen == "" {
		return errors.New("api.listen is required")
	}
	if c.RequestTimeout < 0 {
		return errors.New("api.request_timeout must not be negative")
	}
	if c.Token != "" && c.TokenHash != "" {
		return errors.New("api.token and api.token_hash are mutually exclusive")
	}
	if c.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.TokenHash)); err != nil {
			return fmt.Errorf("api.token_hash: %w", err)
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("api.rate_limit must not be negative")
	}
	if _, err := c.AccessController(); err != nil {
		return fmt.Errorf("api access list: %w", err)
	}
	return nil
}

// Validate checks the metrics section.
func (c MetricsConfig) Validate() error {
	if c.Enabled && (c.Path == "" || c.Path[0] != '/') {
		return fmt.Errorf("metrics.path must start with /: %q", c.Path)
	}
	return nil
}

// AccessController builds the client filter for the API.
func (c APIConfig) AccessController() (*accesscontrol.Controller, error) {
	return accesscontrol.NewController(accesscontrol.Config{Allow: c.Allow, Deny: c.Deny})
}
