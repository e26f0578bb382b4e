package matching

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 各规则权重，规则相互独立累加，价格规则之间互斥。
const (
	WeightCategory        = 30
	WeightSubcategory     = 10
	WeightBrand           = 20
	WeightModel           = 20
	WeightPricePerfect    = 20
	WeightPriceClose      = 10
	WeightPriceMaxOnly    = 15
	WeightLocationExact   = 10
	WeightLocationPartial = 5
	WeightCondition       = 5
	WeightImages          = 5

	MaxScore = 100
)

var closePriceFactor = decimal.RequireFromString("1.2")

// Reason 是展示给用户的匹配原因标签。
type Reason string

const (
	ReasonCategory        Reason = "category"
	ReasonSubcategory     Reason = "subcategory"
	ReasonBrand           Reason = "brand"
	ReasonModel           Reason = "model"
	ReasonPricePerfect    Reason = "price_in_range"
	ReasonPriceClose      Reason = "price_close"
	ReasonPriceMaxOnly    Reason = "price_within_budget"
	ReasonLocationExact   Reason = "same_location"
	ReasonLocationPartial Reason = "nearby_location"
	ReasonCondition       Reason = "condition"
	ReasonImages          Reason = "has_images"
)

var reasonLabels = map[Reason]string{
	ReasonCategory:        "Category match",
	ReasonSubcategory:     "Subcategory match",
	ReasonBrand:           "Brand match",
	ReasonModel:           "Model match",
	ReasonPricePerfect:    "Price in range",
	ReasonPriceClose:      "Price close to budget",
	ReasonPriceMaxOnly:    "Within budget",
	ReasonLocationExact:   "Same location",
	ReasonLocationPartial: "Nearby location",
	ReasonCondition:       "Condition match",
	ReasonImages:          "Has images",
}

// Label 返回原因的可读文本。
func (r Reason) Label() string {
	if label, ok := reasonLabels[r]; ok {
		return label
	}
	return string(r)
}

// Result 为单个候选的打分结果，Reasons 按规则顺序排列。
type Result struct {
	Score   int
	Reasons []Reason
}

// Score 计算候选与条件的匹配分数，结果限制在 [0, 100]。
// 原因标签与计分规则一一对应：只有实际加分的规则才会出现在 Reasons 中。
func Score(c Criteria, cand Candidate) Result {
	var res Result
	add := func(points int, reason Reason) {
		res.Score += points
		res.Reasons = append(res.Reasons, reason)
	}

	if c.Category != "" && c.Category == cand.Category {
		add(WeightCategory, ReasonCategory)
		if c.Subcategory != "" && c.Subcategory == cand.Subcategory {
			add(WeightSubcategory, ReasonSubcategory)
		}
	}

	if c.Brand != "" && cand.fieldsContain(c.Brand) {
		add(WeightBrand, ReasonBrand)
	}
	if c.Model != "" && cand.fieldsContain(c.Model) {
		add(WeightModel, ReasonModel)
	}

	if points, reason, ok := scorePrice(c, cand); ok {
		add(points, reason)
	}

	if c.Location != "" && cand.Location != "" {
		switch {
		case c.Location == cand.Location:
			add(WeightLocationExact, ReasonLocationExact)
		case strings.Contains(c.Location, cand.Location) || strings.Contains(cand.Location, c.Location):
			add(WeightLocationPartial, ReasonLocationPartial)
		}
	}

	if c.Condition != "" && c.Condition == cand.Condition {
		add(WeightCondition, ReasonCondition)
	}
	if c.HasImages && cand.HasImages {
		add(WeightImages, ReasonImages)
	}

	res.Score = clamp(res.Score)
	return res
}

// scorePrice 最多返回一条价格规则：区间内 > 接近上限 > 仅上限。
func scorePrice(c Criteria, cand Candidate) (int, Reason, bool) {
	if cand.Kind != KindInventory || !cand.Price.Valid {
		return 0, "", false
	}
	price := cand.Price.Decimal
	switch {
	case c.MinPrice.Valid && c.MaxPrice.Valid:
		if price.GreaterThanOrEqual(c.MinPrice.Decimal) && price.LessThanOrEqual(c.MaxPrice.Decimal) {
			return WeightPricePerfect, ReasonPricePerfect, true
		}
		if price.LessThanOrEqual(c.MaxPrice.Decimal.Mul(closePriceFactor)) {
			return WeightPriceClose, ReasonPriceClose, true
		}
	case c.MaxPrice.Valid:
		if price.LessThanOrEqual(c.MaxPrice.Decimal) {
			return WeightPriceMaxOnly, ReasonPriceMaxOnly, true
		}
	}
	return 0, "", false
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
