package model

import (
	"time"

	"gorm.io/datatypes"
)

// NotificationTypeMatchFound 为高分匹配生成的站内通知类型。
const NotificationTypeMatchFound = "match_found"

// Notification 站内通知。
type Notification struct {
	ID              string            `gorm:"primaryKey;size:36" json:"id"`
	UserID          string            `gorm:"index;size:36;not null" json:"user_id"`
	Type            string            `gorm:"size:32;not null" json:"type"`
	Title           string            `json:"title"`
	Message         string            `json:"message"`
	Link            string            `json:"link"`
	SearchID        string            `gorm:"size:36" json:"search_id"`
	InventoryItemID string            `gorm:"size:36" json:"inventory_item_id,omitempty"`
	SpotRequestID   string            `gorm:"size:36" json:"spot_request_id,omitempty"`
	Payload         datatypes.JSONMap `json:"payload"`
	ReadAt          *time.Time        `json:"read_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
