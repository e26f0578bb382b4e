package model

import "time"

// DailyShopAnalytics 每个店铺每天一行，Day 格式为 2006-01-02。
type DailyShopAnalytics struct {
	ShopID       string    `gorm:"primaryKey;size:36" json:"shop_id"`
	Day          string    `gorm:"primaryKey;size:10" json:"day"`
	MatchesFound int       `json:"matches_found"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (DailyShopAnalytics) TableName() string {
	return "daily_shop_analytics"
}
