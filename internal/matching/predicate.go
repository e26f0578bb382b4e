package matching

import "github.com/shopspring/decimal"

// Op 是宽松过滤条件支持的比较方式。
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpLte      Op = "lte"
	OpGte      Op = "gte"
	OpBetween  Op = "between"
)

// Predicate 描述一条字段过滤条件，由存储层翻译为具体查询。
// OpBetween 的 Value 为 [2]decimal.Decimal。
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// InventoryFilter 生成库存候选的 OR 过滤条件，为空表示不缩小范围。
func InventoryFilter(c Criteria) []Predicate {
	var preds []Predicate
	if c.Category != "" {
		preds = append(preds, Predicate{Field: "category", Op: OpEq, Value: c.Category})
	}
	if c.Brand != "" {
		preds = append(preds,
			Predicate{Field: "brand", Op: OpContains, Value: c.Brand},
			Predicate{Field: "title", Op: OpContains, Value: c.Brand},
		)
	}
	if c.Model != "" {
		preds = append(preds,
			Predicate{Field: "model", Op: OpContains, Value: c.Model},
			Predicate{Field: "title", Op: OpContains, Value: c.Model},
		)
	}
	if p, ok := pricePredicate(c); ok {
		preds = append(preds, p)
	}
	return preds
}

// SpotFilter 生成求购帖的 OR 过滤条件，品牌和型号在标题与描述中查找。
func SpotFilter(c Criteria) []Predicate {
	var preds []Predicate
	if c.Category != "" {
		preds = append(preds, Predicate{Field: "category", Op: OpEq, Value: c.Category})
	}
	for _, term := range []string{c.Brand, c.Model} {
		if term == "" {
			continue
		}
		preds = append(preds,
			Predicate{Field: "title", Op: OpContains, Value: term},
			Predicate{Field: "description", Op: OpContains, Value: term},
		)
	}
	return preds
}

// pricePredicate 的上限放宽到 1.2 倍，与“接近预算”规则保持一致。
func pricePredicate(c Criteria) (Predicate, bool) {
	switch {
	case c.MinPrice.Valid && c.MaxPrice.Valid:
		upper := c.MaxPrice.Decimal.Mul(closePriceFactor)
		return Predicate{Field: "price", Op: OpBetween, Value: [2]decimal.Decimal{c.MinPrice.Decimal, upper}}, true
	case c.MaxPrice.Valid:
		return Predicate{Field: "price", Op: OpLte, Value: c.MaxPrice.Decimal}, true
	case c.MinPrice.Valid:
		return Predicate{Field: "price", Op: OpGte, Value: c.MinPrice.Decimal}, true
	}
	return Predicate{}, false
}
