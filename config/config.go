package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nftlend/crypto"
)

// Config is the node daemon configuration.
type Config struct {
	ListenAddress     string `toml:"ListenAddress"`
	DataDir           string `toml:"DataDir"`
	Environment       string `toml:"Environment"`
	ChainID           uint64 `toml:"ChainID"`
	Owner             string `toml:"Owner"`
	OwnerKeystorePath string `toml:"OwnerKeystorePath"`
	Treasury          string `toml:"Treasury,omitempty"`
	BootstrapFile     string `toml:"BootstrapFile,omitempty"`

	Protocol  ProtocolConfig  `toml:"protocol"`
	Log       LogConfig       `toml:"log"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Gateway   GatewayConfig   `toml:"gateway"`
}

// ProtocolConfig carries the economic parameters of the loan contracts.
type ProtocolConfig struct {
	MaxLoanDurationSecs uint64 `toml:"MaxLoanDurationSecs"`
	AdminFeeBps         uint64 `toml:"AdminFeeBps"`
	FlashFeeBps         uint64 `toml:"FlashFeeBps"`
}

type LogConfig struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB,omitempty"`
	MaxBackups int    `toml:"MaxBackups,omitempty"`
	MaxAgeDays int    `toml:"MaxAgeDays,omitempty"`
}

type TelemetryConfig struct {
	Endpoint    string  `toml:"Endpoint,omitempty"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers,omitempty"`
	Metrics     bool    `toml:"Metrics"`
	Traces      bool    `toml:"Traces"`
	SampleRatio float64 `toml:"SampleRatio"`
}

type IndexerConfig struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	// DSN defaults to an SQLite file under DataDir.
	DSN string `toml:"DSN,omitempty"`
}

type GatewayConfig struct {
	ReadTimeoutSecs   int      `toml:"ReadTimeoutSecs"`
	WriteTimeoutSecs  int      `toml:"WriteTimeoutSecs"`
	IdleTimeoutSecs   int      `toml:"IdleTimeoutSecs"`
	AuthEnabled       bool     `toml:"AuthEnabled"`
	AuthSecretEnv     string   `toml:"AuthSecretEnv"`
	Issuer            string   `toml:"Issuer,omitempty"`
	Audience          string   `toml:"Audience,omitempty"`
	RequestsPerMinute float64  `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	AllowedOrigins    []string `toml:"AllowedOrigins,omitempty"`
}

// AuthSecret reads the JWT signing secret from the configured environment
// variable.
func (g GatewayConfig) AuthSecret() string {
	if g.AuthSecretEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(g.AuthSecretEnv))
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default one with a freshly generated owner key.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if strings.TrimSpace(cfg.Owner) == "" {
		if err := ensureOwnerKeystore(path, cfg); err != nil {
			return nil, err
		}
	}
	cfg.normalize(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written on first start.
func Default() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./nftlend-data",
		Environment:   "local",
		ChainID:       1337,
		Protocol: ProtocolConfig{
			MaxLoanDurationSecs: 365 * 24 * 60 * 60,
			AdminFeeBps:         500,
			FlashFeeBps:         9,
		},
		Log: LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Insecure:    true,
			Metrics:     true,
			Traces:      true,
			SampleRatio: 1,
		},
		Indexer: IndexerConfig{Enabled: true, Driver: "sqlite"},
		Gateway: GatewayConfig{
			ReadTimeoutSecs:   15,
			WriteTimeoutSecs:  15,
			IdleTimeoutSecs:   60,
			AuthEnabled:       true,
			AuthSecretEnv:     "NFTLEND_AUTH_SECRET",
			RequestsPerMinute: 600,
			Burst:             50,
		},
	}
}

func (c *Config) normalize(configPath string) {
	c.ListenAddress = strings.TrimSpace(c.ListenAddress)
	c.Environment = strings.TrimSpace(c.Environment)
	c.Indexer.Driver = strings.ToLower(strings.TrimSpace(c.Indexer.Driver))
	if c.Indexer.Driver == "" {
		c.Indexer.Driver = "sqlite"
	}
	if c.Indexer.DSN == "" && c.Indexer.Driver == "sqlite" {
		c.Indexer.DSN = filepath.Join(c.DataDir, "events.db")
	}
	if c.BootstrapFile != "" && !filepath.IsAbs(c.BootstrapFile) {
		c.BootstrapFile = filepath.Join(filepath.Dir(configPath), c.BootstrapFile)
	}
	if c.Gateway.AllowedOrigins == nil {
		c.Gateway.AllowedOrigins = []string{}
	}
}

func ensureOwnerKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OwnerKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}
	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	owner, err := crypto.KeystoreAddress(keystorePath)
	if err != nil {
		return fmt.Errorf("read owner keystore %s: %w", keystorePath, err)
	}
	cfg.Owner = owner.Hex()
	cfg.OwnerKeystorePath = keystorePath
	return persist(configPath, cfg)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := ensureOwnerKeystore(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize(path)
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "owner.keystore")
}
