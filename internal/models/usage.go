package models

import "time"

// TokenUsage mirrors the OpenAI usage block returned with completions.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Usage is one accounting row written after a forwarded request.
type Usage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID string    `gorm:"index;size:64" json:"request_id"`
	KeyID     uint      `gorm:"index" json:"key_id"`
	RouterID  uint      `gorm:"index" json:"router_id"`
	Model     string    `gorm:"size:255" json:"model"`
	Endpoint  string    `gorm:"size:64" json:"endpoint"`

	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `gorm:"type:decimal(12,6)" json:"cost"`

	Status     int           `json:"status"`
	DurationMS int64         `json:"duration_ms"`
	TTFTMS     *int64        `json:"ttft_ms,omitempty"`
	Stream     bool          `json:"stream"`
	CreatedAt  time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}

func (Usage) TableName() string {
	return "usage_records"
}

// Cost computes the price of a token count against per-million rates.
func (c ModelCosts) Cost(u TokenUsage) float64 {
	return float64(u.PromptTokens)/1e6*c.PromptTokens +
		float64(u.CompletionTokens)/1e6*c.CompletionTokens
}
