package model

import (
	"time"

	"gorm.io/datatypes"
)

// MatchStatus 由人工接受或忽略，引擎只在新建时写入 pending。
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusAccepted  MatchStatus = "accepted"
	MatchStatusDismissed MatchStatus = "dismissed"
)

// Match 表示搜索与候选之间的持久化匹配结果。
// (SearchID, InventoryItemID, SpotRequestID) 唯一，未使用的一侧存空字符串而不是 NULL，
// 否则唯一索引无法约束重复行。
type Match struct {
	ID              string                      `gorm:"primaryKey;size:36" json:"id"`
	SearchID        string                      `gorm:"size:36;not null;uniqueIndex:idx_match_key" json:"search_id"`
	InventoryItemID string                      `gorm:"size:36;not null;uniqueIndex:idx_match_key" json:"inventory_item_id,omitempty"`
	SpotRequestID   string                      `gorm:"size:36;not null;uniqueIndex:idx_match_key" json:"spot_request_id,omitempty"`
	Score           int                         `gorm:"index" json:"score"`
	Reasons         datatypes.JSONSlice[string] `json:"reasons"`
	Status          MatchStatus                 `gorm:"size:16;default:pending" json:"status"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}
