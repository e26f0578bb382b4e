package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

// ErrNotFound 表示记录不存在。
var ErrNotFound = errors.New("record not found")

// Config 数据库配置，Driver 支持 sqlite（默认）与 mysql。
type Config struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Store 封装数据库访问，负责搜索、候选、匹配、通知与统计数据的读写。
type Store struct {
	db *gorm.DB
}

// NewStore 打开 SQLite 数据库文件并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	return Open(Config{Driver: "sqlite", DSN: dbPath})
}

// Open 按配置打开数据库并自动迁移数据表。
func Open(cfg Config) (*Store, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if err := db.AutoMigrate(
		&model.Shop{},
		&model.User{},
		&model.Search{},
		&model.InventoryItem{},
		&model.SpotRequest{},
		&model.Match{},
		&model.Notification{},
		&model.DailyShopAnalytics{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}

	return &Store{db: db}, nil
}

func openDialector(cfg Config) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "wanted.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		return sqlite.Open(path), nil
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql dsn required")
		}
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// ListActiveSearches 返回店铺所有 active 搜索，优先级高的在前。
func (s *Store) ListActiveSearches(ctx context.Context, shopID string) ([]model.Search, error) {
	var searches []model.Search
	if err := s.db.WithContext(ctx).
		Where("shop_id = ? AND status = ?", shopID, model.SearchStatusActive).
		Order("priority DESC").
		Order("created_at ASC").
		Find(&searches).Error; err != nil {
		return nil, fmt.Errorf("list active searches: %w", err)
	}
	return searches, nil
}

// ListShopsWithActiveSearches 返回至少有一个 active 搜索的店铺 ID。
func (s *Store) ListShopsWithActiveSearches(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&model.Search{}).
		Where("status = ?", model.SearchStatusActive).
		Distinct().
		Order("shop_id ASC").
		Pluck("shop_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list shops with active searches: %w", err)
	}
	return ids, nil
}

// ListInventoryCandidates 返回其他店铺的 active 库存，filter 中的条件以 OR 组合。
func (s *Store) ListInventoryCandidates(ctx context.Context, excludeShopID string, filter []matching.Predicate, limit int) ([]model.InventoryItem, error) {
	query := s.db.WithContext(ctx).
		Where("status = ? AND shop_id <> ?", model.ListingStatusActive, excludeShopID)
	query, err := applyPredicates(query, filter, inventoryColumns)
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var items []model.InventoryItem
	if err := query.Order("created_at DESC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list inventory candidates: %w", err)
	}
	return items, nil
}

// ListSpotCandidates 返回其他用户的 active 求购帖，排除 excludeShopID 店主本人发布的帖子，
// filter 中的条件以 OR 组合。
func (s *Store) ListSpotCandidates(ctx context.Context, excludeShopID string, filter []matching.Predicate) ([]model.SpotRequest, error) {
	query := s.db.WithContext(ctx).Where("status = ?", model.ListingStatusActive)
	if excludeShopID != "" {
		owners := s.db.Model(&model.Shop{}).Select("owner_id").Where("id = ? AND owner_id IS NOT NULL", excludeShopID)
		query = query.Where("user_id NOT IN (?)", owners)
	}
	query, err := applyPredicates(query, filter, spotColumns)
	if err != nil {
		return nil, err
	}

	var spots []model.SpotRequest
	if err := query.Order("created_at DESC").Order("id ASC").Find(&spots).Error; err != nil {
		return nil, fmt.Errorf("list spot candidates: %w", err)
	}
	return spots, nil
}

// UpsertMatch 按 (search, inventory, spot) 写入匹配，已存在则只更新分数与原因，不覆盖人工修改的状态。
// 返回值 created 表示本次是否新增行；已存在时 m.ID 会被替换为已有记录的 ID。
// 同一搜索的并发写入以最后一次为准，不做版本校验。
func (s *Store) UpsertMatch(ctx context.Context, m *model.Match) (bool, error) {
	db := s.db.WithContext(ctx)

	var existing model.Match
	err := db.Select("id").
		Where("search_id = ? AND inventory_item_id = ? AND spot_request_id = ?", m.SearchID, m.InventoryItemID, m.SpotRequestID).
		Take(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("query existing match: %w", err)
	}
	created := existing.ID == ""

	if m.ID == "" || !created {
		m.ID = uuid.NewString()
	}
	if created && m.Status == "" {
		m.Status = model.MatchStatusPending
	}

	tx := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "search_id"}, {Name: "inventory_item_id"}, {Name: "spot_request_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "reasons", "updated_at"}),
	}).Create(m)
	if tx.Error != nil {
		return false, fmt.Errorf("upsert match: %w", tx.Error)
	}
	if !created {
		m.ID = existing.ID
	}
	return created, nil
}

// ListMatches 返回搜索的匹配结果，按分数倒序。
func (s *Store) ListMatches(ctx context.Context, searchID string, limit int) ([]model.Match, error) {
	query := s.db.WithContext(ctx).Where("search_id = ?", searchID).Order("score DESC").Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var matches []model.Match
	if err := query.Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// CreateNotification 写入站内通知。
func (s *Store) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications 返回用户的站内通知，最新的在前。
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	var list []model.Notification
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return list, nil
}

// UpsertDailyAnalytics 写入 (shop, day) 当日统计，已存在时用本次数量覆盖。
func (s *Store) UpsertDailyAnalytics(ctx context.Context, shopID, day string, matchesFound int) error {
	row := model.DailyShopAnalytics{ShopID: shopID, Day: day, MatchesFound: matchesFound, UpdatedAt: time.Now()}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "shop_id"}, {Name: "day"}},
		DoUpdates: clause.AssignmentColumns([]string{"matches_found", "updated_at"}),
	}).Create(&row)
	if tx.Error != nil {
		return fmt.Errorf("upsert daily analytics: %w", tx.Error)
	}
	return nil
}

// GetDailyAnalytics 读取店铺某天的统计。
func (s *Store) GetDailyAnalytics(ctx context.Context, shopID, day string) (*model.DailyShopAnalytics, error) {
	var row model.DailyShopAnalytics
	if err := s.db.WithContext(ctx).First(&row, "shop_id = ? AND day = ?", shopID, day).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get daily analytics: %w", err)
	}
	return &row, nil
}

// GetShopOwnerContact 返回店主用户 ID 与邮箱。
func (s *Store) GetShopOwnerContact(ctx context.Context, shopID string) (string, string, error) {
	var shop model.Shop
	if err := s.db.WithContext(ctx).First(&shop, "id = ?", shopID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", fmt.Errorf("shop %s: %w", shopID, ErrNotFound)
		}
		return "", "", fmt.Errorf("get shop: %w", err)
	}
	if shop.OwnerID == "" {
		return "", "", fmt.Errorf("shop %s owner: %w", shopID, ErrNotFound)
	}

	var owner model.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", shop.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return shop.OwnerID, "", fmt.Errorf("user %s: %w", shop.OwnerID, ErrNotFound)
		}
		return shop.OwnerID, "", fmt.Errorf("get owner: %w", err)
	}
	return owner.ID, owner.Email, nil
}

// CreateSearch 新增搜索。
func (s *Store) CreateSearch(ctx context.Context, search *model.Search) error {
	if search.ID == "" {
		search.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(search).Error; err != nil {
		return fmt.Errorf("create search: %w", err)
	}
	return nil
}

// GetSearch 根据 ID 获取搜索。
func (s *Store) GetSearch(ctx context.Context, id string) (*model.Search, error) {
	var search model.Search
	if err := s.db.WithContext(ctx).First(&search, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get search: %w", err)
	}
	return &search, nil
}

// UpdateSearchStatus 更新搜索状态。
func (s *Store) UpdateSearchStatus(ctx context.Context, id string, status model.SearchStatus) error {
	tx := s.db.WithContext(ctx).Model(&model.Search{}).Where("id = ?", id).Update("status", status)
	if tx.Error != nil {
		return fmt.Errorf("update search status: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("update search status %s: %w", id, ErrNotFound)
	}
	return nil
}

var (
	inventoryColumns = map[string]struct{}{"category": {}, "subcategory": {}, "brand": {}, "model": {}, "title": {}, "description": {}, "price": {}, "location": {}, "condition": {}}
	spotColumns      = map[string]struct{}{"category": {}, "subcategory": {}, "title": {}, "description": {}, "location": {}, "condition": {}}
)

// applyPredicates 将结构化条件翻译为 OR 组合的 WHERE 子句，空列表不做过滤。
func applyPredicates(db *gorm.DB, preds []matching.Predicate, allowed map[string]struct{}) (*gorm.DB, error) {
	if len(preds) == 0 {
		return db, nil
	}
	exprs := make([]clause.Expression, 0, len(preds))
	for _, p := range preds {
		if _, ok := allowed[p.Field]; !ok {
			return nil, fmt.Errorf("unsupported filter field %q", p.Field)
		}
		expr, err := predicateExpr(p)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return db.Where(clause.Or(exprs...)), nil
}

func predicateExpr(p matching.Predicate) (clause.Expression, error) {
	col := clause.Column{Name: p.Field}
	switch p.Op {
	case matching.OpEq:
		return clause.Eq{Column: col, Value: p.Value}, nil
	case matching.OpContains:
		term, ok := p.Value.(string)
		if !ok {
			return nil, fmt.Errorf("contains filter on %s needs a string value", p.Field)
		}
		return clause.Expr{SQL: "LOWER(?) LIKE ?", Vars: []any{col, "%" + strings.ToLower(term) + "%"}}, nil
	case matching.OpLte:
		return clause.Lte{Column: col, Value: p.Value}, nil
	case matching.OpGte:
		return clause.Gte{Column: col, Value: p.Value}, nil
	case matching.OpBetween:
		bounds, ok := p.Value.([2]decimal.Decimal)
		if !ok {
			return nil, fmt.Errorf("between filter on %s needs two bounds", p.Field)
		}
		return clause.Expr{SQL: "? BETWEEN ? AND ?", Vars: []any{col, bounds[0], bounds[1]}}, nil
	default:
		return nil, fmt.Errorf("unsupported filter op %q", p.Op)
	}
}
