package models

import "time"

// ProviderType identifies a backend implementation.
type ProviderType string

const (
	ProviderTypeAlbert ProviderType = "albert"
	ProviderTypeOpenAI ProviderType = "openai"
	ProviderTypeTEI    ProviderType = "tei"
	ProviderTypeVLLM   ProviderType = "vllm"
)

// Metric names the performance signals kept in the Redis store.
type Metric string

const (
	// MetricTTFT is the time to first token in milliseconds.
	MetricTTFT Metric = "ttft"
	// MetricLatency is the end-to-end request latency in milliseconds.
	MetricLatency Metric = "latency"
	// MetricInflight is the number of requests currently held by a provider.
	MetricInflight Metric = "inflight"
)

// DefaultProviderTimeout is applied when a provider config omits one.
const DefaultProviderTimeout = 300 * time.Second

// DefaultProviderURL returns the implicit API URL for provider types that have one.
func DefaultProviderURL(t ProviderType) string {
	switch t {
	case ProviderTypeOpenAI:
		return "https://api.openai.com/"
	case ProviderTypeAlbert:
		return "https://albert.api.etalab.gouv.fr/"
	default:
		return ""
	}
}

// Provider is one backend endpoint serving a router's model.
type Provider struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	RouterID         uint         `gorm:"index;uniqueIndex:idx_provider_backend;not null" json:"router_id"`
	Type             ProviderType `gorm:"size:32;not null" json:"type"`
	URL              string       `gorm:"uniqueIndex:idx_provider_backend;not null" json:"url"`
	Key              string       `gorm:"size:512" json:"-"`
	TimeoutSeconds   int          `gorm:"default:300" json:"timeout"`
	ModelName        string       `gorm:"uniqueIndex:idx_provider_backend;size:255;not null" json:"model_name"`
	QoSMetric        *Metric      `gorm:"size:32" json:"qos_metric,omitempty"`
	QoSLimit         *float64     `json:"qos_limit,omitempty"`
	MaxContextLength *int         `json:"max_context_length,omitempty"`
	VectorSize       *int         `json:"vector_size,omitempty"`
	CreatedAt        time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Provider) TableName() string {
	return "providers"
}

// Timeout returns the provider timeout as a duration.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return DefaultProviderTimeout
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}
