package engine

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

// MatchWriter 按唯一键写入匹配，返回是否新增。
type MatchWriter interface {
	UpsertMatch(ctx context.Context, m *model.Match) (bool, error)
}

// Persisted 为一次写入的结果。
type Persisted struct {
	Match     model.Match
	Candidate matching.Candidate
	Created   bool
}

// Persister 逐个写入打分后的候选，单个失败只记录日志并跳过。
type Persister struct {
	store  MatchWriter
	logger *zap.Logger
}

// NewPersister 创建 Persister。
func NewPersister(store MatchWriter, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{store: store, logger: logger}
}

// Persist 写入候选并返回成功写入的记录与新增数量。
func (p *Persister) Persist(ctx context.Context, search model.Search, ranked []matching.Scored) ([]Persisted, int) {
	out := make([]Persisted, 0, len(ranked))
	created := 0
	for _, sc := range ranked {
		m := model.Match{
			SearchID: search.ID,
			Score:    sc.Score,
			Reasons:  reasonTags(sc.Reasons),
		}
		switch sc.Candidate.Kind {
		case matching.KindInventory:
			m.InventoryItemID = sc.Candidate.ID
		case matching.KindSpot:
			m.SpotRequestID = sc.Candidate.ID
		default:
			continue
		}

		isNew, err := p.store.UpsertMatch(ctx, &m)
		if err != nil {
			p.logger.Warn("persist match",
				zap.String("search_id", search.ID),
				zap.String("candidate_id", sc.Candidate.ID),
				zap.Error(err),
			)
			continue
		}
		if isNew {
			created++
		}
		out = append(out, Persisted{Match: m, Candidate: sc.Candidate, Created: isNew})
	}
	return out, created
}

func reasonTags(reasons []matching.Reason) datatypes.JSONSlice[string] {
	tags := make(datatypes.JSONSlice[string], 0, len(reasons))
	for _, r := range reasons {
		tags = append(tags, string(r))
	}
	return tags
}
