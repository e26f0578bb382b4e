package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ListingStatus 同时用于库存商品与求购帖。
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusArchived ListingStatus = "archived"
)

// InventoryItem 表示店铺在售库存。
type InventoryItem struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	ShopID      string                      `gorm:"index;size:36;not null" json:"shop_id"`
	Title       string                      `json:"title"`
	Description string                      `json:"description"`
	Category    string                      `gorm:"index;size:64" json:"category"`
	Subcategory string                      `gorm:"size:64" json:"subcategory"`
	Brand       string                      `json:"brand"`
	Model       string                      `json:"model"`
	Price       decimal.NullDecimal         `gorm:"type:decimal(12,2)" json:"price"`
	Currency    string                      `gorm:"size:8" json:"currency"`
	Location    string                      `json:"location"`
	Condition   string                      `gorm:"size:32" json:"condition"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	Status      ListingStatus               `gorm:"index;size:16;default:active" json:"status"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// SpotRequest 表示普通用户发布的求购帖，描述可能包含富文本 HTML。
type SpotRequest struct {
	ID          string                      `gorm:"primaryKey;size:36" json:"id"`
	UserID      string                      `gorm:"index;size:36;not null" json:"user_id"`
	Title       string                      `json:"title"`
	Description string                      `json:"description"`
	Category    string                      `gorm:"index;size:64" json:"category"`
	Subcategory string                      `gorm:"size:64" json:"subcategory"`
	Location    string                      `json:"location"`
	Condition   string                      `gorm:"size:32" json:"condition"`
	Images      datatypes.JSONSlice[string] `json:"images"`
	Status      ListingStatus               `gorm:"index;size:16;default:active" json:"status"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}
