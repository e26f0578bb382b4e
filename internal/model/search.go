package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SearchStatus 表示求购搜索的生命周期状态。
type SearchStatus string

const (
	SearchStatusActive SearchStatus = "active"
	SearchStatusPaused SearchStatus = "paused"
	SearchStatusClosed SearchStatus = "closed"
)

// Search 表示店铺的长期求购条件
// - 仅 Status=active 的记录参与匹配
// - 价格区间、地点、成色等字段为空时不参与打分
// - AutoNotify 为 nil 时视为 true（数据库默认值）
// - Radius 单位为公里，目前只作为展示信息保存
type Search struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	ShopID      string                      `gorm:"index;size:36;not null" json:"shop_id"`
	Title       string                      `json:"title"`
	Category    string                      `gorm:"size:64" json:"category"`
	Subcategory string                      `gorm:"size:64" json:"subcategory"`
	Brand       string                      `json:"brand"`
	Model       string                      `json:"model"`
	MinPrice    decimal.NullDecimal         `gorm:"type:decimal(12,2)" json:"min_price"`
	MaxPrice    decimal.NullDecimal         `gorm:"type:decimal(12,2)" json:"max_price"`
	Location    string                      `json:"location"`
	Radius      int                         `json:"radius"`
	Condition   string                      `gorm:"size:32" json:"condition"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	AutoNotify  *bool                       `gorm:"default:true" json:"auto_notify"`
	Status      SearchStatus                `gorm:"index;size:16;default:active" json:"status"`
	Priority    int                         `json:"priority"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// NotifyEnabled 仅在 AutoNotify 被显式设置为 false 时返回 false。
func (s Search) NotifyEnabled() bool {
	return s.AutoNotify == nil || *s.AutoNotify
}
