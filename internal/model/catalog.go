package model

import "time"

// Provider is an entry in the provider directory.
type Provider struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CatalogEntry is a persisted plan in the catalog. Identity is
// (ProviderID, PlanName); ProviderName is joined in for display.
type CatalogEntry struct {
	ID           int64     `json:"id"`
	ProviderID   int64     `json:"provider_id"`
	ProviderName string    `json:"provider_name"`
	PlanName     string    `json:"plan_name"`
	Rates        Rates     `json:"rates"`
	Active       bool      `json:"active"`
	UpdatedAt    time.Time `json:"updated_at"`
}
