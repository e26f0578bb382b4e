package matching

import (
	"strings"

	"github.com/shopspring/decimal"

	"wanted-radar/internal/model"
)

// Criteria 是从 Search 归一化得到的匹配条件，空字符串或无效价格表示未设置。
type Criteria struct {
	SearchID    string
	ShopID      string
	Category    string
	Subcategory string
	Brand       string
	Model       string
	MinPrice    decimal.NullDecimal
	MaxPrice    decimal.NullDecimal
	Location    string
	Radius      int
	Condition   string
	HasImages   bool
}

// BuildCriteria 将搜索记录转换为 Criteria，不做校验。
func BuildCriteria(s model.Search) Criteria {
	c := Criteria{
		SearchID:    s.ID,
		ShopID:      s.ShopID,
		Category:    strings.TrimSpace(s.Category),
		Subcategory: strings.TrimSpace(s.Subcategory),
		Brand:       strings.TrimSpace(s.Brand),
		Model:       strings.TrimSpace(s.Model),
		Location:    strings.TrimSpace(s.Location),
		Condition:   strings.TrimSpace(s.Condition),
		MinPrice:    s.MinPrice,
		MaxPrice:    s.MaxPrice,
		HasImages:   hasImage(s.Images),
	}
	if s.Radius > 0 {
		c.Radius = s.Radius
	}
	return c
}

func hasImage(refs []string) bool {
	for _, ref := range refs {
		if strings.TrimSpace(ref) != "" {
			return true
		}
	}
	return false
}
