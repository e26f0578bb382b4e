package matching

import (
	"strings"

	"github.com/shopspring/decimal"

	"wanted-radar/internal/model"
)

// Kind 区分候选来源。
type Kind string

const (
	KindInventory Kind = "inventory"
	KindSpot      Kind = "spot"
)

// Candidate 是库存商品与求购帖的统一视图，只保留打分需要的字段。
// OwnerID 对库存是店铺 ID，对求购帖是用户 ID。
type Candidate struct {
	Kind        Kind
	ID          string
	OwnerID     string
	Title       string
	Description string
	Brand       string
	Model       string
	Category    string
	Subcategory string
	Price       decimal.NullDecimal
	Currency    string
	Location    string
	Condition   string
	HasImages   bool
}

// InventoryCandidate 由库存商品构造候选。
func InventoryCandidate(item model.InventoryItem) Candidate {
	return Candidate{
		Kind:        KindInventory,
		ID:          item.ID,
		OwnerID:     item.ShopID,
		Title:       item.Title,
		Description: item.Description,
		Brand:       item.Brand,
		Model:       item.Model,
		Category:    strings.TrimSpace(item.Category),
		Subcategory: strings.TrimSpace(item.Subcategory),
		Price:       item.Price,
		Currency:    item.Currency,
		Location:    strings.TrimSpace(item.Location),
		Condition:   strings.TrimSpace(item.Condition),
		HasImages:   hasImage(item.Images),
	}
}

// SpotCandidate 由求购帖构造候选，求购帖没有价格。
func SpotCandidate(spot model.SpotRequest) Candidate {
	return Candidate{
		Kind:        KindSpot,
		ID:          spot.ID,
		OwnerID:     spot.UserID,
		Title:       spot.Title,
		Description: spot.Description,
		Category:    strings.TrimSpace(spot.Category),
		Subcategory: strings.TrimSpace(spot.Subcategory),
		Location:    strings.TrimSpace(spot.Location),
		Condition:   strings.TrimSpace(spot.Condition),
		HasImages:   hasImage(spot.Images),
	}
}

// fieldsContain 判断 term 是否为标题、描述、品牌或型号中某一个字段的子串（不区分大小写）。
// 逐字段比较，跨字段拼接出的文本不算命中。
func (c Candidate) fieldsContain(term string) bool {
	term = strings.ToLower(term)
	for _, field := range []string{c.Title, c.Description, c.Brand, c.Model} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}
