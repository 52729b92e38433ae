package projects

import "time"

// Project is a tenant of the feature platform, identified by a slug.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int64     `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

// NewProject carries a project creation request.
type NewProject struct {
	ID          string `json:"id" validate:"required,min=1,max=100"`
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=1000"`
}
