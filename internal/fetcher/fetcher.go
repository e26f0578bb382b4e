package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

// DefaultInventoryLimit 为每次搜索读取的库存候选上限。
const DefaultInventoryLimit = 20

// Config 控制候选池大小。
type Config struct {
	InventoryLimit int `yaml:"inventory_limit" json:"inventory_limit"`
}

// Store 抽象候选读取接口，便于测试替换。
type Store interface {
	ListInventoryCandidates(ctx context.Context, excludeShopID string, filter []matching.Predicate, limit int) ([]model.InventoryItem, error)
	ListSpotCandidates(ctx context.Context, excludeShopID string, filter []matching.Predicate) ([]model.SpotRequest, error)
}

// Pools 为一次搜索得到的两个候选池，保持存储返回的顺序。
type Pools struct {
	Inventory []matching.Candidate
	Spots     []matching.Candidate
}

// CandidateFetcher 并发读取库存与求购帖，并在边界处转换为 matching.Candidate。
type CandidateFetcher struct {
	store  Store
	limit  int
	logger *zap.Logger
}

// New 创建 CandidateFetcher。
func New(store Store, cfg Config, logger *zap.Logger) *CandidateFetcher {
	limit := cfg.InventoryLimit
	if limit <= 0 {
		limit = DefaultInventoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateFetcher{store: store, limit: limit, logger: logger.Named("fetcher")}
}

// Fetch 读取与条件宽松匹配的候选，任一读取失败都会返回错误。
func (f *CandidateFetcher) Fetch(ctx context.Context, c matching.Criteria) (Pools, error) {
	var (
		items []model.InventoryItem
		spots []model.SpotRequest
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := f.store.ListInventoryCandidates(gctx, c.ShopID, matching.InventoryFilter(c), f.limit)
		if err != nil {
			return fmt.Errorf("list inventory candidates: %w", err)
		}
		items = res
		return nil
	})
	g.Go(func() error {
		res, err := f.store.ListSpotCandidates(gctx, c.ShopID, matching.SpotFilter(c))
		if err != nil {
			return fmt.Errorf("list spot candidates: %w", err)
		}
		spots = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return Pools{}, err
	}

	pools := Pools{
		Inventory: make([]matching.Candidate, 0, len(items)),
		Spots:     make([]matching.Candidate, 0, len(spots)),
	}
	for _, item := range items {
		if item.ShopID == c.ShopID || item.Status != model.ListingStatusActive {
			continue
		}
		if len(pools.Inventory) >= f.limit {
			break
		}
		cand := matching.InventoryCandidate(item)
		cand.Description = PlainText(cand.Description)
		pools.Inventory = append(pools.Inventory, cand)
	}
	for _, spot := range spots {
		if spot.Status != model.ListingStatusActive {
			continue
		}
		cand := matching.SpotCandidate(spot)
		cand.Description = PlainText(cand.Description)
		pools.Spots = append(pools.Spots, cand)
	}

	f.logger.Debug("candidates fetched",
		zap.String("search_id", c.SearchID),
		zap.Int("inventory", len(pools.Inventory)),
		zap.Int("spots", len(pools.Spots)),
	)
	return pools, nil
}
