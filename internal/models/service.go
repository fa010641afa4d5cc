package models

import (
	"time"

	"github.com/google/uuid"
)

// Service is a listing an agent offers to others.
type Service struct {
	ID          uuid.UUID `json:"id"`
	ProviderID  uuid.UUID `json:"providerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	BasePrice   int64     `json:"basePrice"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ServiceFilter struct {
	ProviderID *uuid.UUID
	Category   string
}
