package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// APIKey is a client credential with its own limits and budget.
type APIKey struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	Name      string `gorm:"not null;size:255" json:"name"`
	KeyHash   string `gorm:"uniqueIndex;not null;size:64" json:"-"`
	KeyPrefix string `gorm:"index;size:12" json:"key_prefix"`

	// Per-key rate limits. nil means unlimited, 0 means no access.
	LimitRPM *int64 `json:"limit_rpm,omitempty"`
	LimitRPD *int64 `json:"limit_rpd,omitempty"`
	LimitTPM *int64 `json:"limit_tpm,omitempty"`
	LimitTPD *int64 `json:"limit_tpd,omitempty"`

	// Budget in currency units. nil means unlimited.
	Budget   *float64 `gorm:"type:decimal(12,6)" json:"budget,omitempty"`
	Priority int      `gorm:"default:0" json:"priority"`
	Admin    bool     `gorm:"default:false" json:"admin"`

	IsActive   bool       `gorm:"default:true;index" json:"is_active"`
	ExpiresAt  *time.Time `gorm:"index" json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (APIKey) TableName() string {
	return "api_keys"
}

// Expired reports whether the key is past its expiration date.
func (k *APIKey) Expired() bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now())
}

// UserInfo is the resolved identity attached to an authenticated request.
type UserInfo struct {
	KeyID    uint
	Name     string
	Master   bool
	Admin    bool
	Priority int
	Budget   *float64
	LimitRPM *int64
	LimitRPD *int64
	LimitTPM *int64
	LimitTPD *int64
}

// LimitType names the rate limit windows kept in the Redis counter store.
type LimitType string

const (
	LimitRPM LimitType = "rpm"
	LimitRPD LimitType = "rpd"
	LimitTPM LimitType = "tpm"
	LimitTPD LimitType = "tpd"
)

// Limit returns the user's value for the given limit type.
func (u UserInfo) Limit(t LimitType) *int64 {
	switch t {
	case LimitRPM:
		return u.LimitRPM
	case LimitRPD:
		return u.LimitRPD
	case LimitTPM:
		return u.LimitTPM
	case LimitTPD:
		return u.LimitTPD
	default:
		return nil
	}
}

// APIKeyCreateRequest is the admin payload to mint a new key.
type APIKeyCreateRequest struct {
	Name      string     `json:"name"`
	LimitRPM  *int64     `json:"limit_rpm,omitempty"`
	LimitRPD  *int64     `json:"limit_rpd,omitempty"`
	LimitTPM  *int64     `json:"limit_tpm,omitempty"`
	LimitTPD  *int64     `json:"limit_tpd,omitempty"`
	Budget    *float64   `json:"budget,omitempty"`
	Priority  int        `json:"priority,omitempty"`
	Admin     bool       `json:"admin,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// APIKeyResponse is the admin view of a key; Key is only set on creation.
type APIKeyResponse struct {
	APIKey
	Key string `json:"key,omitempty"`
}

// GenerateAPIKey returns a new random key with the gateway prefix.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return "ogl_" + base64.URLEncoding.EncodeToString(b)[:43], nil
}

// HashAPIKey returns the hex sha256 digest stored in place of the key.
func HashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}

// ExtractKeyPrefix keeps the displayable head of a key.
func ExtractKeyPrefix(key string) string {
	if len(key) < 12 {
		return key
	}
	return key[:12]
}
