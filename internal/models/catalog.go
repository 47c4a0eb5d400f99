package models

import "time"

// Category groups tools. Name is unique.
type Category struct {
	ID        string    `json:"_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tag labels tools. Name is unique.
type Tag struct {
	ID        string    `json:"_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Facets holds the distinct values currently stored for the filterable tool fields.
type Facets struct {
	Categories []string `json:"categories"`
	Locations  []string `json:"locations"`
	Statuses   []string `json:"statuses"`
}
