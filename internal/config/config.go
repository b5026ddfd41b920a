package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/pepe57/OpenGateLLM/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultRoutingMaxRetries   = 3
	defaultRoutingRetrySeconds = 3
	defaultMetricsRetentionMS  = 120000
	defaultQueueMaxPriority    = 4
	defaultTokenizerEncoding   = "cl100k_base"
	defaultIndexPrefix         = "ogl"
)

// Config represents the complete application configuration
type Config struct {
	Server       models.ServerConfig       `yaml:"server"`
	Models       []models.ModelSpec        `yaml:"models"`
	Dependencies models.DependenciesConfig `yaml:"dependencies"`
	Settings     models.SettingsConfig     `yaml:"settings"`
}

// LoadFromFile loads configuration from a YAML file with environment variable substitution
func LoadFromFile(configPath string) (*Config, error) {
	// Validate and clean the file path to prevent directory traversal
	cleanPath := filepath.Clean(configPath)

	if strings.Contains(cleanPath, "..") {
		return nil, fmt.Errorf("invalid config path: path traversal not allowed")
	}

	ext := filepath.Ext(cleanPath)
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("invalid config file: only .yaml and .yml files are allowed")
	}

	data, err := os.ReadFile(cleanPath) // #nosec G304 - path is validated above
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML config bytes after environment variable substitution.
func Parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadEnvFiles loads environment variables from .env files in order of precedence
// Loads files in the order provided (first has highest priority)
func LoadEnvFiles(envFiles []string) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err == nil {
				fiberlog.Infof("Loaded environment variables from %s", envFile)
			}
		}
	}
}

// New creates a new Config instance by loading from the specified config file path
func New(configPath string) (*Config, error) {
	return LoadFromFile(configPath)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Environment == "" {
		c.Server.Environment = "development"
	}
	if c.Settings.RoutingMaxRetries <= 0 {
		c.Settings.RoutingMaxRetries = defaultRoutingMaxRetries
	}
	if c.Settings.RoutingRetrySeconds <= 0 {
		c.Settings.RoutingRetrySeconds = defaultRoutingRetrySeconds
	}
	if c.Settings.MetricsRetentionMS <= 0 {
		c.Settings.MetricsRetentionMS = defaultMetricsRetentionMS
	}
	if c.Settings.QueueMaxPriority <= 0 {
		c.Settings.QueueMaxPriority = defaultQueueMaxPriority
	}
	if c.Settings.RateLimitStrategy == "" {
		c.Settings.RateLimitStrategy = "fixed_window"
	}
	if c.Settings.TokenizerEncoding == "" {
		c.Settings.TokenizerEncoding = defaultTokenizerEncoding
	}
	if c.Settings.VectorStoreIndexPrefix == "" {
		c.Settings.VectorStoreIndexPrefix = defaultIndexPrefix
	}

	for i := range c.Models {
		m := &c.Models[i]
		if m.LoadBalancingStrategy == "" {
			m.LoadBalancingStrategy = models.StrategyShuffle
		}
		for j := range m.Providers {
			p := &m.Providers[j]
			if p.URL == "" {
				p.URL = models.DefaultProviderURL(p.Type)
			}
			if p.TimeoutSeconds <= 0 {
				p.TimeoutSeconds = int(models.DefaultProviderTimeout / time.Second)
			}
		}
	}
}

// Validate checks the configuration for structural errors before startup.
func (c *Config) Validate() error {
	if c.Dependencies.Postgres.DSN == "" && c.Dependencies.Postgres.Host == "" {
		return fmt.Errorf("dependencies.postgres: dsn or host is required")
	}
	if c.Dependencies.Redis.URL == "" && c.Dependencies.Redis.Host == "" {
		return fmt.Errorf("dependencies.redis: url or host is required")
	}
	if ws := c.Dependencies.WebSearch; ws != nil {
		switch ws.Engine {
		case models.WebSearchBrave:
			if ws.APIKey == "" {
				return fmt.Errorf("dependencies.websearch: brave requires an api_key")
			}
		case models.WebSearchDuckDuckGo:
		default:
			return fmt.Errorf("dependencies.websearch: unknown engine %q", ws.Engine)
		}
	}
	if s := c.Settings.RateLimitStrategy; s != "fixed_window" && s != "sliding_window" {
		return fmt.Errorf("settings.rate_limit_strategy: must be fixed_window or sliding_window, got %q", s)
	}

	seen := make(map[string]string)
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("models: every model needs a name")
		}
		if err := registerName(seen, m.Name, m.Name); err != nil {
			return err
		}
		for _, alias := range m.Aliases {
			if err := registerName(seen, alias, m.Name); err != nil {
				return err
			}
		}
		if _, ok := models.ProviderTypesForModelType[m.Type]; !ok {
			return fmt.Errorf("model %s: unknown type %q", m.Name, m.Type)
		}
		switch m.LoadBalancingStrategy {
		case models.StrategyShuffle, models.StrategyRoundRobin, models.StrategyLeastBusy:
		default:
			return fmt.Errorf("model %s: unknown load_balancing_strategy %q", m.Name, m.LoadBalancingStrategy)
		}
		if len(m.Providers) == 0 {
			return fmt.Errorf("model %s: at least one provider is required", m.Name)
		}
		for _, p := range m.Providers {
			if !providerTypeAllowed(m.Type, p.Type) {
				return fmt.Errorf("model %s: provider type %q cannot serve model type %q", m.Name, p.Type, m.Type)
			}
			if p.ModelName == "" {
				return fmt.Errorf("model %s: provider model_name is required", m.Name)
			}
			if p.URL == "" {
				return fmt.Errorf("model %s: provider type %q has no default url, url is required", m.Name, p.Type)
			}
			if (p.QoSMetric == nil) != (p.QoSLimit == nil) {
				return fmt.Errorf("model %s: qos_metric and qos_limit must be set together", m.Name)
			}
		}
	}
	return nil
}

func registerName(seen map[string]string, name, owner string) error {
	if prev, ok := seen[name]; ok {
		return fmt.Errorf("model name %q conflicts with model %s", name, prev)
	}
	seen[name] = owner
	return nil
}

func providerTypeAllowed(mt models.ModelType, pt models.ProviderType) bool {
	for _, allowed := range models.ProviderTypesForModelType[mt] {
		if allowed == pt {
			return true
		}
	}
	return false
}

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} patterns with environment variables
func substituteEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::(-[^}]*))?\}`)

	return re.ReplaceAllStringFunc(content, func(match string) string {
		submatches := re.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""

		if len(submatches) > 2 && submatches[2] != "" {
			defaultValue = strings.TrimPrefix(submatches[2], "-")
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}
