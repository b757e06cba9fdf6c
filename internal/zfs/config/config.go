package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/zfs-snmpd/internal/zfs/domain"
)

const (
	// envPrefix prefixes every environment override.
	envPrefix = "ZFS_SNMP_"
	// configFileEnv names the optional configuration file.
	configFileEnv = envPrefix + "CONFIG_FILE"
)

// AppConfig holds the daemon configuration.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Debug forces debug logging regardless of LogLevel.
	Debug bool `koanf:"debug"`

	// StatsRoot is the SPL kstat directory holding arcstats, zil and one
	// directory per pool.
	StatsRoot string `koanf:"stats_root" validate:"required"`

	// CacheTTL is how long a parsed category is served before it is re-read.
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gt=0"`

	// RootOID is the registration root every identifier is placed under.
	RootOID string `koanf:"root_oid" validate:"required,oid"`

	// Transport selects how requests arrive: "udp" or "pass_persist".
	Transport string `koanf:"transport" validate:"required,oneof=udp pass_persist agentx"`

	// Listen is the UDP agent address in host:port format.
	Listen string `koanf:"listen" validate:"required,host_port"`

	// Community is the SNMPv2c community the UDP agent answers.
	Community string `koanf:"community" validate:"required"`

	// IndexDB, when set, persists identifier indices in a bbolt file so they
	// survive restarts.
	IndexDB string `koanf:"index_db"`

	// NextCacheSize sizes the NEXT successor memo; 0 disables it.
	NextCacheSize int `koanf:"next_cache_size" validate:"gte=0"`
}

// DEFAULT_APP_CONFIG defines the default application configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:           "prod",
	LogLevel:      "info",
	Debug:         false,
	StatsRoot:     "/proc/spl/kstat/zfs",
	CacheTTL:      30 * time.Second,
	RootOID:       ".1.3.6.1.4.1.8072.9999.9999.1",
	Transport:     "udp",
	Listen:        "127.0.0.1:1161",
	Community:     "public",
	IndexDB:       "",
	NextCacheSize: 1024,
}

// validOID accepts a dotted numeric OID with at least two arcs.
func validOID(fl validator.FieldLevel) bool {
	oid, err := domain.ParseOID(fl.Field().String())
	return err == nil && len(oid) >= 2
}

// validHostPort validates a "host:port" listen address. The host may be empty,
// an IP address or a hostname; port 0 lets the OS choose.
func validHostPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	_, err = strconv.ParseUint(port, 10, 16)
	return err == nil
}

// fileParser picks a koanf parser from the configuration file extension.
func fileParser(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	case ".toml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
}

// defaultLoader loads DEFAULT_APP_CONFIG into k.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader loads the file named by ZFS_SNMP_CONFIG_FILE, if set.
var fileLoader = func(k *koanf.Koanf) error {
	path := strings.TrimSpace(os.Getenv(configFileEnv))
	if path == "" {
		return nil
	}
	parser, err := fileParser(path)
	if err != nil {
		return err
	}
	return k.Load(file.Provider(path), parser)
}

// envLoader loads environment variables with the prefix "ZFS_SNMP_".
// Keys are lowercased with the prefix removed.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return key, strings.TrimSpace(value)
		},
	}), nil)
}

// registerValidation registers the "oid" and "host_port" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("oid", validOID); err != nil {
		return err
	}
	return v.RegisterValidation("host_port", validHostPort)
}

// Load layers defaults, the optional config file and the environment, in that
// order, and validates the result.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := fileLoader(k); err != nil {
		return nil, fmt.Errorf("error loading config file: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
