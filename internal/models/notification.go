package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeInfo    NotificationType = "info"
	NotificationTypeSuccess NotificationType = "success"
	NotificationTypeWarning NotificationType = "warning"
	NotificationTypeError   NotificationType = "error"
	NotificationTypeAlert   NotificationType = "alert"
)

type Notification struct {
	ID            string           `gorm:"primaryKey" json:"id"`
	Type          NotificationType `gorm:"index" json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	UserID        string           `json:"user_id,omitempty"`
	ActivityLogID string           `json:"activity_log_id,omitempty"`
	RiskScore     float64          `json:"risk_score,omitempty"`
	Read          bool             `gorm:"index" json:"read"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return
}
