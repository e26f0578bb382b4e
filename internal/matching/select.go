package matching

import "sort"

// Thresholds 控制各类候选的最低保留分数。
type Thresholds struct {
	Inventory int `yaml:"inventory" json:"inventory"`
	Spot      int `yaml:"spot" json:"spot"`
}

// DefaultThresholds 库存 50 分，求购帖信息较少需要 60 分。
func DefaultThresholds() Thresholds {
	return Thresholds{Inventory: 50, Spot: 60}
}

// Keep 判断候选分数是否达到对应阈值。
func (t Thresholds) Keep(kind Kind, score int) bool {
	switch kind {
	case KindInventory:
		return score >= t.Inventory
	case KindSpot:
		return score >= t.Spot
	default:
		return false
	}
}

// Scored 是保留下来的候选及其分数。
type Scored struct {
	Candidate Candidate
	Result
}

// Rank 对两个候选池打分、按阈值过滤并合并，结果按分数降序，同分保持抓取顺序（库存在前）。
func Rank(c Criteria, inventory, spots []Candidate, t Thresholds) []Scored {
	kept := make([]Scored, 0, len(inventory)+len(spots))
	for _, pool := range [][]Candidate{inventory, spots} {
		for _, cand := range pool {
			res := Score(c, cand)
			if !t.Keep(cand.Kind, res.Score) {
				continue
			}
			kept = append(kept, Scored{Candidate: cand, Result: res})
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	return kept
}
