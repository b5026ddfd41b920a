package models

import "time"

// LoadBalancingStrategy selects a provider among a router's candidates.
type LoadBalancingStrategy string

const (
	// StrategyShuffle picks a provider uniformly at random.
	StrategyShuffle LoadBalancingStrategy = "shuffle"
	// StrategyRoundRobin cycles through providers with a shared Redis cursor.
	StrategyRoundRobin LoadBalancingStrategy = "round_robin"
	// StrategyLeastBusy picks the provider with the lowest p95 TTFT.
	StrategyLeastBusy LoadBalancingStrategy = "least_busy"
)

// Router groups the providers serving one client-visible model.
type Router struct {
	ID                    uint                  `gorm:"primaryKey" json:"id"`
	Name                  string                `gorm:"uniqueIndex;size:64;not null" json:"name"`
	Type                  ModelType             `gorm:"size:64;not null" json:"type"`
	LoadBalancingStrategy LoadBalancingStrategy `gorm:"size:32;default:'shuffle'" json:"load_balancing_strategy"`
	CostPromptTokens      float64               `gorm:"default:0" json:"cost_prompt_tokens"`
	CostCompletionTokens  float64               `gorm:"default:0" json:"cost_completion_tokens"`
	Aliases               []RouterAlias         `gorm:"constraint:OnDelete:CASCADE" json:"aliases"`
	Providers             []Provider            `gorm:"constraint:OnDelete:CASCADE" json:"providers,omitempty"`
	CreatedAt             time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Router) TableName() string {
	return "routers"
}

// Costed reports whether requests against this router consume user budget.
func (r Router) Costed() bool {
	return r.CostPromptTokens != 0 || r.CostCompletionTokens != 0
}

// AliasValues flattens the alias rows into their string values.
func (r Router) AliasValues() []string {
	values := make([]string, 0, len(r.Aliases))
	for _, alias := range r.Aliases {
		values = append(values, alias.Value)
	}
	return values
}

// RouterAlias is an alternate client-visible name for a router.
type RouterAlias struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	RouterID uint   `gorm:"index;not null" json:"-"`
	Value    string `gorm:"uniqueIndex;size:64;not null" json:"value"`
}

func (RouterAlias) TableName() string {
	return "router_aliases"
}
