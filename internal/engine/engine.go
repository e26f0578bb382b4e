package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"wanted-radar/internal/fetcher"
	"wanted-radar/internal/lock"
	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

// DefaultNotifyMinScore 达到该分数的匹配才会发送通知。
const DefaultNotifyMinScore = 80

var (
	// ErrShopRequired 请求缺少 shopId。
	ErrShopRequired = errors.New("shopId is required")
	// ErrRunInProgress 同一店铺已有批处理在运行。
	ErrRunInProgress = errors.New("match run already in progress")
)

// SearchReader 读取店铺的有效搜索。
type SearchReader interface {
	ListActiveSearches(ctx context.Context, shopID string) ([]model.Search, error)
}

// CandidateFetcher 根据条件获取候选池。
type CandidateFetcher interface {
	Fetch(ctx context.Context, c matching.Criteria) (fetcher.Pools, error)
}

// Notifier 处理高分匹配的通知。
type Notifier interface {
	NotifyMatch(ctx context.Context, search model.Search, match model.Match, cand matching.Candidate)
}

// Locker 可选的店铺级互斥锁。
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

// Deps 汇总引擎依赖，Notifier 与 Locker 可为空。
type Deps struct {
	Searches   SearchReader
	Candidates CandidateFetcher
	Matches    MatchWriter
	Analytics  AnalyticsWriter
	Notifier   Notifier
	Locker     Locker
}

// Config 匹配引擎配置。
type Config struct {
	Thresholds     matching.Thresholds `yaml:"thresholds"`
	NotifyMinScore int                 `yaml:"notify_min_score"`
	Timezone       string              `yaml:"timezone"`
}

// Request 为一次批处理请求，searchId 与 trigger 仅记录日志。
type Request struct {
	ShopID   string `json:"shopId" validate:"required"`
	SearchID string `json:"searchId,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
}

// Stats 为批处理汇总。
type Stats struct {
	TotalSearchesChecked int       `json:"totalSearchesChecked"`
	TotalMatchesFound    int       `json:"totalMatchesFound"`
	NewMatchesAdded      int       `json:"newMatchesAdded"`
	Timestamp            time.Time `json:"timestamp"`
}

// Engine 按店铺顺序处理有效搜索：打分、写入、通知，最后更新当日统计。
type Engine struct {
	searches   SearchReader
	candidates CandidateFetcher
	persister  *Persister
	analytics  *AnalyticsUpdater
	notifier   Notifier
	locker     Locker
	thresholds matching.Thresholds
	minNotify  int
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// New 创建 Engine。
func New(deps Deps, cfg Config, logger *zap.Logger) (*Engine, error) {
	if deps.Searches == nil || deps.Candidates == nil || deps.Matches == nil || deps.Analytics == nil {
		return nil, fmt.Errorf("engine missing dependencies")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("engine")

	loc := time.UTC
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
		}
		loc = l
	}

	thresholds := cfg.Thresholds
	def := matching.DefaultThresholds()
	if thresholds.Inventory <= 0 {
		thresholds.Inventory = def.Inventory
	}
	if thresholds.Spot <= 0 {
		thresholds.Spot = def.Spot
	}
	minNotify := cfg.NotifyMinScore
	if minNotify <= 0 {
		minNotify = DefaultNotifyMinScore
	}

	return &Engine{
		searches:   deps.Searches,
		candidates: deps.Candidates,
		persister:  NewPersister(deps.Matches, logger),
		analytics:  NewAnalyticsUpdater(deps.Analytics, loc),
		notifier:   deps.Notifier,
		locker:     deps.Locker,
		thresholds: thresholds,
		minNotify:  minNotify,
		validate:   validator.New(),
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Run 执行一次店铺批处理。读取搜索或候选失败会中止整批，之前已写入的匹配保留。
func (e *Engine) Run(ctx context.Context, req Request) (Stats, error) {
	req.ShopID = strings.TrimSpace(req.ShopID)
	if err := e.validate.Struct(req); err != nil {
		return Stats{}, ErrShopRequired
	}

	if e.locker != nil {
		release, err := e.locker.Lock(ctx, "match-run:"+req.ShopID)
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				return Stats{}, ErrRunInProgress
			}
			return Stats{}, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn("release run lock", zap.String("shop_id", req.ShopID), zap.Error(err))
			}
		}()
	}

	e.logger.Info("match run started",
		zap.String("shop_id", req.ShopID),
		zap.String("search_id", req.SearchID),
		zap.String("trigger", req.Trigger),
	)

	searches, err := e.searches.ListActiveSearches(ctx, req.ShopID)
	if err != nil {
		return Stats{}, fmt.Errorf("list active searches: %w", err)
	}

	var stats Stats
	for _, search := range searches {
		if search.Status != model.SearchStatusActive {
			continue
		}
		stats.TotalSearchesChecked++

		found, added, err := e.processSearch(ctx, search)
		if err != nil {
			return Stats{}, err
		}
		stats.TotalMatchesFound += found
		stats.NewMatchesAdded += added
	}

	if err := e.analytics.Record(ctx, req.ShopID, stats.NewMatchesAdded); err != nil {
		e.logger.Warn("update analytics", zap.String("shop_id", req.ShopID), zap.Error(err))
	}

	stats.Timestamp = e.now().UTC()
	e.logger.Info("match run finished",
		zap.String("shop_id", req.ShopID),
		zap.Int("searches", stats.TotalSearchesChecked),
		zap.Int("found", stats.TotalMatchesFound),
		zap.Int("new", stats.NewMatchesAdded),
	)
	return stats, nil
}

func (e *Engine) processSearch(ctx context.Context, search model.Search) (int, int, error) {
	criteria := matching.BuildCriteria(search)

	pools, err := e.candidates.Fetch(ctx, criteria)
	if err != nil {
		return 0, 0, fmt.Errorf("fetch candidates for search %s: %w", search.ID, err)
	}

	ranked := matching.Rank(criteria, pools.Inventory, pools.Spots, e.thresholds)
	persisted, added := e.persister.Persist(ctx, search, ranked)

	e.logger.Debug("search scored",
		zap.String("search_id", search.ID),
		zap.Int("inventory", len(pools.Inventory)),
		zap.Int("spots", len(pools.Spots)),
		zap.Int("kept", len(ranked)),
		zap.Int("new", added),
	)

	if e.notifier != nil && search.NotifyEnabled() {
		for _, p := range persisted {
			if !p.Created || p.Match.Score < e.minNotify {
				continue
			}
			e.notifier.NotifyMatch(ctx, search, p.Match, p.Candidate)
		}
	}
	return len(ranked), added, nil
}
