package models

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a catalog listing. Stock lives on the attached
// InventoryItem so the counters can be updated without touching the listing.
type Product struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Name        string         `gorm:"column:name;not null"`
	Description *string        `gorm:"column:description"`
	PriceCents  int            `gorm:"column:price_cents;not null"`
	Inventory   *InventoryItem `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
