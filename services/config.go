package services

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "planner.toml"
	DefaultDBName         = "planner.db"
	DefaultPort           = "3001"

	defaultJWTSecret = "your-default-secret-key-change-in-production"
)

// LoadEnv loads environment variables from a .env file. Variables already
// set in the environment win.
func LoadEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		value = strings.Trim(value, `"'`)

		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, value)
	}

	return scanner.Err()
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

type ServerConfig struct {
	Port           string   `toml:"port"`
	DatabasePath   string   `toml:"database_path"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string     `toml:"jwt_secret"`
	TokenTTL  string     `toml:"token_ttl"`
	SMTP      SMTPConfig `toml:"smtp"`
}

// ClientConfig drives the agenda command.
type ClientConfig struct {
	Server        string `toml:"server"`
	Token         string `toml:"token"`
	FlushInterval string `toml:"flush_interval"`
	CallTimeout   string `toml:"call_timeout"`
}

type Config struct {
	Server ServerConfig `toml:"server"`
	Auth   AuthConfig   `toml:"auth"`
	Client ClientConfig `toml:"client"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			DatabasePath:   DefaultDBName,
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			JWTSecret: defaultJWTSecret,
			TokenTTL:  "168h",
		},
		Client: ClientConfig{
			Server:        "http://localhost:" + DefaultPort,
			FlushInterval: "30s",
			CallTimeout:   "10s",
		},
	}
}

// LoadConfig reads the TOML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()

	if _, err := cfg.Auth.TTL(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Client.Timeout(); err != nil {
		return cfg, err
	}
	if _, err := cfg.Client.Interval(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.Server.Port, "PORT")
	override(&c.Server.DatabasePath, "DATABASE_PATH")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Auth.SMTP.Host, "SMTP_HOST")
	override(&c.Auth.SMTP.Port, "SMTP_PORT")
	override(&c.Auth.SMTP.Username, "SMTP_USERNAME")
	override(&c.Auth.SMTP.Password, "SMTP_PASSWORD")
	override(&c.Auth.SMTP.From, "SMTP_FROM")
	override(&c.Client.Server, "PLANNER_SERVER")
	override(&c.Client.Token, "PLANNER_TOKEN")
	override(&c.Client.FlushInterval, "FLUSH_INTERVAL")
	override(&c.Client.CallTimeout, "CALL_TIMEOUT")
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

// TTL is the lifetime of issued session tokens.
func (a AuthConfig) TTL() (time.Duration, error) {
	d, err := time.ParseDuration(a.TokenTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid token_ttl %q: %w", a.TokenTTL, err)
	}
	return d, nil
}

// Timeout bounds each repository call made by the client.
func (c ClientConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.CallTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid call_timeout %q: %w", c.CallTimeout, err)
	}
	return d, nil
}

// Interval is how often the agenda session flushes queued completions.
func (c ClientConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid flush_interval %q", c.FlushInterval)
	}
	return d, nil
}

const redacted = "********"

// Redacted returns a copy of c with secrets masked.
func (c Config) Redacted() Config {
	mask := func(v *string) {
		if *v != "" {
			*v = redacted
		}
	}
	mask(&c.Auth.JWTSecret)
	mask(&c.Auth.SMTP.Password)
	mask(&c.Client.Token)
	c.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	return c
}

// EncodeConfig writes cfg as TOML to w.
func EncodeConfig(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteConfig saves cfg as TOML.
func WriteConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
