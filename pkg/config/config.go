// Package config loads client and proxy settings from a YAML file, a .env file
// or CB_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/coinbase-client/pkg/auth"
	"github.com/Sternrassler/coinbase-client/pkg/client"
	"github.com/Sternrassler/coinbase-client/pkg/logging"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Duration is a time.Duration written as a string such as "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML accepts duration strings and plain integers (seconds).
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		secs, err := strconv.Atoi(value.Value)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Auth selects credentials. Scheme may be left empty: a key name implies jwt
// and an API key implies hmac.
type Auth struct {
	Scheme string `yaml:"scheme"`

	// hmac
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	Passphrase string `yaml:"passphrase"`

	// jwt
	KeyName        string `yaml:"key_name"`
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyFile string `yaml:"private_key_file"`
}

// Redis configures the optional response cache.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Log configures logging.Setup.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Proxy configures cmd/cb-proxy.
type Proxy struct {
	Port string `yaml:"port"`
}

// Config is the on-disk configuration.
type Config struct {
	BaseURL           string   `yaml:"base_url"`
	UserAgent         string   `yaml:"user_agent"`
	Auth              Auth     `yaml:"auth"`
	Timeout           Duration `yaml:"timeout"`
	ClockSyncInterval Duration `yaml:"clock_sync_interval"`
	MaxRetries        int      `yaml:"max_retries"`
	CacheTTL          Duration `yaml:"cache_ttl"`
	Redis             Redis    `yaml:"redis"`
	Log               Log      `yaml:"log"`
	Proxy             Proxy    `yaml:"proxy"`
}

// Default returns the configuration used for unset fields.
func Default() Config {
	def := client.DefaultConfig(client.BaseURLProduction, nil)
	return Config{
		BaseURL:    def.BaseURL,
		UserAgent:  def.UserAgent,
		Timeout:    Duration(def.Timeout),
		MaxRetries: def.Retry.MaxRetries,
		CacheTTL:   Duration(def.CacheTTL),
		Log:        Log{Level: string(logging.LevelInfo)},
		Proxy:      Proxy{Port: "8080"},
	}
}

// Load reads a YAML file, expanding ${VAR} references from the environment
// before parsing.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse([]byte(os.ExpandEnv(string(raw))))
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotenv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// FromEnv builds a configuration from CB_* environment variables only.
func FromEnv() (Config, error) {
	cfg := Default()

	setString(&cfg.BaseURL, "CB_BASE_URL")
	setString(&cfg.UserAgent, "CB_USER_AGENT")
	setString(&cfg.Auth.Scheme, "CB_AUTH_SCHEME")
	setString(&cfg.Auth.APIKey, "CB_API_KEY")
	setString(&cfg.Auth.APISecret, "CB_API_SECRET")
	setString(&cfg.Auth.Passphrase, "CB_API_PASSPHRASE")
	setString(&cfg.Auth.KeyName, "CB_KEY_NAME")
	setString(&cfg.Auth.PrivateKey, "CB_PRIVATE_KEY")
	setString(&cfg.Auth.PrivateKeyFile, "CB_PRIVATE_KEY_FILE")
	setString(&cfg.Redis.Addr, "CB_REDIS_ADDR")
	setString(&cfg.Redis.Password, "CB_REDIS_PASSWORD")
	setString(&cfg.Log.Level, "CB_LOG_LEVEL")
	setString(&cfg.Proxy.Port, "CB_PROXY_PORT")

	for _, d := range []struct {
		dst *Duration
		key string
	}{
		{&cfg.Timeout, "CB_TIMEOUT"},
		{&cfg.ClockSyncInterval, "CB_CLOCK_SYNC_INTERVAL"},
		{&cfg.CacheTTL, "CB_CACHE_TTL"},
	} {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, d.key, err)
			}
			*d.dst = Duration(parsed)
		}
	}
	for _, n := range []struct {
		dst *int
		key string
	}{
		{&cfg.MaxRetries, "CB_MAX_RETRIES"},
		{&cfg.Redis.DB, "CB_REDIS_DB"},
	} {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalid, n.key, err)
			}
			*n.dst = parsed
		}
	}
	if v := os.Getenv("CB_LOG_PRETTY"); v != "" {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: CB_LOG_PRETTY: %w", ErrInvalid, err)
		}
		cfg.Log.Pretty = pretty
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks values that client.New does not.
func (c Config) Validate() error {
	if c.Timeout < 0 || c.ClockSyncInterval < 0 || c.CacheTTL < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalid)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrInvalid)
	}
	switch c.scheme() {
	case "", auth.SchemeHMAC, auth.SchemeJWT:
	default:
		return fmt.Errorf("%w: unknown auth scheme %q", ErrInvalid, c.Auth.Scheme)
	}
	if c.Auth.PrivateKey != "" && c.Auth.PrivateKeyFile != "" {
		return fmt.Errorf("%w: private_key and private_key_file are exclusive", ErrInvalid)
	}
	return nil
}

func (c Config) scheme() auth.Scheme {
	switch {
	case c.Auth.Scheme != "":
		return auth.Scheme(strings.ToLower(c.Auth.Scheme))
	case c.Auth.KeyName != "":
		return auth.SchemeJWT
	case c.Auth.APIKey != "":
		return auth.SchemeHMAC
	default:
		return ""
	}
}

// Credentials returns the configured credential variant, or nil when no
// credentials are configured.
func (c Config) Credentials() (auth.Credentials, error) {
	switch c.scheme() {
	case "":
		return nil, nil
	case auth.SchemeHMAC:
		if c.Auth.APIKey == "" || c.Auth.APISecret == "" {
			return nil, fmt.Errorf("%w: hmac requires api_key and api_secret", ErrInvalid)
		}
		return auth.NewHMACCredentials(c.Auth.APIKey, c.Auth.APISecret, c.Auth.Passphrase), nil
	case auth.SchemeJWT:
		pem := c.Auth.PrivateKey
		if c.Auth.PrivateKeyFile != "" {
			raw, err := os.ReadFile(c.Auth.PrivateKeyFile)
			if err != nil {
				return nil, fmt.Errorf("read private key: %w", err)
			}
			pem = string(raw)
		}
		if c.Auth.KeyName == "" || pem == "" {
			return nil, fmt.Errorf("%w: jwt requires key_name and a private key", ErrInvalid)
		}
		// Keys pasted into env vars often carry literal \n sequences.
		pem = strings.ReplaceAll(pem, `\n`, "\n")
		return auth.NewECCredentials(c.Auth.KeyName, pem), nil
	default:
		return nil, fmt.Errorf("%w: unknown auth scheme %q", ErrInvalid, c.Auth.Scheme)
	}
}

// NewRedis returns a Redis client for the cache, or nil when no address is
// configured. The caller closes it.
func (c Config) NewRedis() *redis.Client {
	if c.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
}

// ClientConfig converts the file configuration into a client.Config. Redis
// is left unset; pass the result of NewRedis if caching is wanted.
func (c Config) ClientConfig(logger *zerolog.Logger) (client.Config, error) {
	creds, err := c.Credentials()
	if err != nil {
		return client.Config{}, err
	}

	cfg := client.DefaultConfig(c.BaseURL, creds)
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	if c.Timeout > 0 {
		cfg.Timeout = c.Timeout.Std()
	}
	if c.CacheTTL > 0 {
		cfg.CacheTTL = c.CacheTTL.Std()
	}
	cfg.ClockSyncInterval = c.ClockSyncInterval.Std()
	cfg.Retry.MaxRetries = c.MaxRetries
	cfg.Logger = logger
	return cfg, nil
}

// Logging converts the log section into a logging.Config.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	if c.Log.Level != "" {
		cfg.Level = logging.LogLevel(c.Log.Level)
	}
	cfg.Pretty = c.Log.Pretty
	return cfg
}
