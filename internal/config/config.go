// Package config loads minidns configuration.
//
// Values are layered in this order, later sources winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file
//  3. MINIDNS_* environment variables
//
// The result is normalized and validated before it is handed out. The same
// Config is read by the daemon and by the CLI, which only needs the API
// section and the daemon control paths.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "MINIDNS_"
	// EnvConfigFile names the config file when no -c flag is given.
	EnvConfigFile = EnvPrefix + "CONFIG_FILE"
	// EnvNoDivert suppresses port diversion when set to a true value.
	EnvNoDivert = EnvPrefix + "NO_DIVERT"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// APIConfig contains control API settings.
//
// Note: APIKey is a secret and is never logged.
type APIConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"gte=1,lte=65535"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// Addr returns host:port for listening or dialing.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the URL the CLI talks to.
func (c APIConfig) BaseURL() string {
	return "http://" + c.Addr()
}

// DNSConfig contains DNS listener settings.
type DNSConfig struct {
	Host       string        `koanf:"host" validate:"required"`
	Port       int           `koanf:"port" validate:"gte=1,lte=65535"`
	Forwarders []string      `koanf:"forwarders" validate:"dive,hostname_port"`
	Timeout    time.Duration `koanf:"timeout" validate:"gt=0"`
	TTL        uint32        `koanf:"ttl"`
}

// Addr returns host:port for the DNS listeners.
func (c DNSConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// StorageConfig selects the zone store.
type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite bolt memory"`
	Path   string `koanf:"path" validate:"required_unless=Driver memory"`
}

// DaemonConfig contains process control settings.
type DaemonConfig struct {
	PIDFile string `koanf:"pidfile" validate:"required"`
	LogFile string `koanf:"logfile"`
	// Binary is the daemon executable started by "minidns start". Empty means
	// minidnsd next to the CLI binary, then $PATH.
	Binary string `koanf:"binary"`
}

// DivertConfig controls the iptables redirect from the public DNS port.
type DivertConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port" validate:"gte=1,lte=65535"`
}

// MetricsConfig controls the prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `koanf:"level" validate:"oneof=DEBUG INFO WARN WARNING ERROR"`
	Structured       bool              `koanf:"structured"`
	StructuredFormat string            `koanf:"structured_format" validate:"oneof=json keyvalue"`
	IncludePID       bool              `koanf:"include_pid"`
	ExtraFields      map[string]string `koanf:"extra_fields"`
}

// Config is the root configuration structure.
type Config struct {
	API     APIConfig     `koanf:"api"`
	DNS     DNSConfig     `koanf:"dns"`
	Storage StorageConfig `koanf:"storage"`
	Daemon  DaemonConfig  `koanf:"daemon"`
	Divert  DivertConfig  `koanf:"divert"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			Host:    "127.0.0.1",
			Port:    5080,
			Timeout: 5 * time.Second,
		},
		DNS: DNSConfig{
			Host:    "127.0.0.1",
			Port:    5053,
			Timeout: 2 * time.Second,
			TTL:     300,
		},
		Storage: StorageConfig{Driver: DriverSQLite, Path: "minidns.db"},
		Daemon:  DaemonConfig{PIDFile: "minidns.pid", LogFile: "minidns.log"},
		Divert:  DivertConfig{Enabled: true, Port: 53},
		Logging: LoggingConfig{Level: "INFO", StructuredFormat: "json"},
	}
}

// ResolveConfigPath returns the config file path: the flag value if set,
// else MINIDNS_CONFIG_FILE, else "" (defaults only).
func ResolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(EnvConfigFile))
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps MINIDNS_API_API_KEY to api.api_key. Only the first underscore
// separates section from key; section names never contain one.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	value = strings.TrimSpace(value)

	if key == "dns.forwarders" {
		if value == "" {
			return key, []string{}
		}
		return key, strings.FieldsFunc(value, func(r rune) bool {
			return r == ' ' || r == ','
		})
	}
	return key, value
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate normalizes the configuration and checks it.
func (cfg *Config) Validate() error {
	cfg.Logging.Level = strings.ToUpper(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.StructuredFormat = strings.ToLower(cfg.Logging.StructuredFormat)
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))

	// Forwarders without a port default to 53.
	for i, fw := range cfg.DNS.Forwarders {
		if _, _, err := net.SplitHostPort(fw); err != nil {
			cfg.DNS.Forwarders[i] = net.JoinHostPort(fw, "53")
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// NoDivertFromEnv reports whether MINIDNS_NO_DIVERT asks to skip diversion.
func NoDivertFromEnv() bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(EnvNoDivert)))
	return err == nil && v
}
