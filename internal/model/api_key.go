package model

import (
	"time"

	"gorm.io/gorm"
)

// APIKey is a provider credential stored in the vault. The secret is sealed at rest.
type APIKey struct {
	gorm.Model
	Provider     string     `gorm:"type:varchar(32);index;not null" json:"provider"`
	Name         string     `gorm:"type:varchar(255)" json:"name"`
	SealedSecret string     `gorm:"type:text;not null" json:"-"`
	Active       bool       `gorm:"index;not null" json:"active"`
	UsageCount   int64      `gorm:"default:0;not null" json:"usage_count"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	ErrorCount   int        `gorm:"default:0;not null" json:"error_count"`
	DisabledAt   *time.Time `json:"disabled_at,omitempty"`
}
