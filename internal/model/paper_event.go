package model

import "time"

const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
	EventSynced  = "synced"
)

// PaperEvent is one entry of the activity log.
type PaperEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	PaperID   int       `gorm:"not null;index" json:"paperId"`
	Action    string    `gorm:"size:16;not null;index" json:"action"`
	Title     string    `gorm:"size:512" json:"title"`
	Detail    string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
