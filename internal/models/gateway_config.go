package models

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string `json:"port,omitzero" yaml:"port"`
	AllowedOrigins string `json:"allowed_origins,omitzero" yaml:"allowed_origins"`
	Environment    string `json:"environment,omitzero" yaml:"environment"`
	LogLevel       string `json:"log_level,omitzero" yaml:"log_level"`
	MasterKey      string `json:"-" yaml:"master_key"`
}

type DatabaseConfig struct {
	DSN      string `yaml:"dsn,omitempty" json:"dsn,omitzero"`
	Host     string `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int    `yaml:"port,omitempty" json:"port,omitzero"`
	Username string `yaml:"username,omitempty" json:"username,omitzero"`
	Password string `yaml:"password,omitempty" json:"password,omitzero"`
	Database string `yaml:"database" json:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitzero"`

	MaxOpenConns    int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitzero"`
	MaxIdleConns    int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitzero"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitzero"`
}

type RedisConfig struct {
	URL      string `yaml:"url,omitempty" json:"url,omitzero"`
	Host     string `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int    `yaml:"port,omitempty" json:"port,omitzero"`
	Password string `yaml:"password,omitempty" json:"-"`
	DB       int    `yaml:"db,omitempty" json:"db,omitzero"`
}

type ElasticsearchConfig struct {
	Addresses []string `yaml:"addresses" json:"addresses"`
	Username  string   `yaml:"username,omitempty" json:"username,omitzero"`
	Password  string   `yaml:"password,omitempty" json:"-"`
	APIKey    string   `yaml:"api_key,omitempty" json:"-"`
}

type RabbitMQConfig struct {
	URL string `yaml:"url" json:"url,omitzero"`
}

// WebSearchEngine selects the backing search engine.
type WebSearchEngine string

const (
	WebSearchBrave      WebSearchEngine = "brave"
	WebSearchDuckDuckGo WebSearchEngine = "duckduckgo"
)

type WebSearchConfig struct {
	Engine WebSearchEngine `yaml:"engine" json:"engine"`
	APIKey string          `yaml:"api_key,omitempty" json:"-"`
}

// DependenciesConfig groups the external services the gateway talks to.
// Postgres and Redis are required, everything else is optional.
type DependenciesConfig struct {
	Postgres      DatabaseConfig       `yaml:"postgres" json:"postgres"`
	Redis         RedisConfig          `yaml:"redis" json:"redis"`
	Elasticsearch *ElasticsearchConfig `yaml:"elasticsearch,omitempty" json:"elasticsearch,omitzero"`
	RabbitMQ      *RabbitMQConfig      `yaml:"rabbitmq,omitempty" json:"rabbitmq,omitzero"`
	WebSearch     *WebSearchConfig     `yaml:"websearch,omitempty" json:"websearch,omitzero"`
}

// SettingsConfig tunes gateway-wide behavior.
type SettingsConfig struct {
	// Retries of the routing loop before giving up with 503.
	RoutingMaxRetries      int    `yaml:"routing_max_retries" json:"routing_max_retries,omitzero"`
	RoutingRetrySeconds    int    `yaml:"routing_retry_seconds" json:"routing_retry_seconds,omitzero"`
	MetricsRetentionMS     int    `yaml:"metrics_retention_ms" json:"metrics_retention_ms,omitzero"`
	QueueMaxPriority       int    `yaml:"queue_max_priority" json:"queue_max_priority,omitzero"`
	RateLimitStrategy      string `yaml:"rate_limit_strategy" json:"rate_limit_strategy,omitzero"`
	DisableQueuedRouting   bool   `yaml:"disable_queued_routing" json:"disable_queued_routing,omitzero"`
	TokenizerEncoding      string `yaml:"tokenizer_encoding" json:"tokenizer_encoding,omitzero"`
	VectorStoreIndexPrefix string `yaml:"vector_store_index_prefix" json:"vector_store_index_prefix,omitzero"`
}

// ProviderSpec declares one backend deployment under a router in the
// configuration file.
type ProviderSpec struct {
	Type             ProviderType `yaml:"type" json:"type"`
	URL              string       `yaml:"url,omitempty" json:"url,omitzero"`
	Key              string       `yaml:"key,omitempty" json:"-"`
	ModelName        string       `yaml:"model_name" json:"model_name"`
	TimeoutSeconds   int          `yaml:"timeout,omitempty" json:"timeout,omitzero"`
	QoSMetric        *Metric      `yaml:"qos_metric,omitempty" json:"qos_metric,omitzero"`
	QoSLimit         *float64     `yaml:"qos_limit,omitempty" json:"qos_limit,omitzero"`
	MaxContextLength *int         `yaml:"max_context_length,omitempty" json:"max_context_length,omitzero"`
	VectorSize       *int         `yaml:"vector_size,omitempty" json:"vector_size,omitzero"`
}

// ModelSpec declares one gateway model (a router and its providers) in the
// configuration file.
type ModelSpec struct {
	Name                  string                `yaml:"name" json:"name"`
	Type                  ModelType             `yaml:"type" json:"type"`
	Aliases               []string              `yaml:"aliases,omitempty" json:"aliases,omitzero"`
	LoadBalancingStrategy LoadBalancingStrategy `yaml:"load_balancing_strategy,omitempty" json:"load_balancing_strategy,omitzero"`
	CostPromptTokens      float64               `yaml:"cost_prompt_tokens,omitempty" json:"cost_prompt_tokens,omitzero"`
	CostCompletionTokens  float64               `yaml:"cost_completion_tokens,omitempty" json:"cost_completion_tokens,omitzero"`
	Providers             []ProviderSpec        `yaml:"providers" json:"providers"`
}
