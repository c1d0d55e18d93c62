package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectStatus enum constants
const (
	ProjectActive   = "ACTIVE"
	ProjectPaused   = "PAUSED"
	ProjectFinished = "FINISHED"
)

// Project groups billable work under a named engagement for a client.
// Incomes reference a project optionally; ad-hoc work carries a free-text
// project name instead.
type Project struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ClientID    *uuid.UUID     `gorm:"type:uuid;index" json:"client_id"`
	Client      *Client        `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Status      string         `gorm:"type:varchar(20);not null;default:'ACTIVE';index" json:"status"` // ACTIVE, PAUSED, FINISHED
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
