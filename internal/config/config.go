package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the client configuration file looked up in a workspace.
const FileName = "storm.yml"

// Config models storm.yml.
type Config struct {
	Service struct {
		URL          string        `yaml:"url"`
		Token        string        `yaml:"token"`
		TokenInQuery bool          `yaml:"token_in_query"`
		Timeout      time.Duration `yaml:"timeout"`
	} `yaml:"service"`
	Project struct {
		ID string `yaml:"id"`
	} `yaml:"project"`
	Search struct {
		CacheSize int `yaml:"cache_size"`
	} `yaml:"search"`
	Downloads struct {
		Concurrency      int  `yaml:"concurrency"`
		ValidateChecksum bool `yaml:"validate_checksum"`
	} `yaml:"downloads"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with storm config init --url <service>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Service.URL == "" {
		return fmt.Errorf("config.service.url is required")
	}
	u, err := url.Parse(c.Service.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.service.url %q is not an absolute url", c.Service.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config.service.url scheme must be http or https")
	}
	if c.Service.Timeout < 0 {
		return fmt.Errorf("config.service.timeout must not be negative")
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("config.search.cache_size must not be negative")
	}
	if c.Downloads.Concurrency < 0 {
		return fmt.Errorf("config.downloads.concurrency must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML for a service.
func GenerateDefault(serviceURL string) string {
	return fmt.Sprintf(defaultTemplate, serviceURL)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct for a service.
func Default(serviceURL string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(serviceURL))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Write stores c as storm.yml in workspace.
func (c *Config) Write(workspace string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o600)
}

const defaultTemplate = `service:
  url: %s
  token: ""
  token_in_query: false
  timeout: 60s

search:
  cache_size: 0

downloads:
  concurrency: 4
  validate_checksum: true
`
