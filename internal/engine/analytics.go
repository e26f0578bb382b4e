package engine

import (
	"context"
	"fmt"
	"time"
)

// AnalyticsWriter 写入店铺每日统计。
type AnalyticsWriter interface {
	UpsertDailyAnalytics(ctx context.Context, shopID, day string, matchesFound int) error
}

// AnalyticsUpdater 每次批处理写一次当日新增匹配数，同一天多次运行以最后一次为准。
type AnalyticsUpdater struct {
	store AnalyticsWriter
	loc   *time.Location
	now   func() time.Time
}

// NewAnalyticsUpdater 创建 AnalyticsUpdater，loc 为 nil 时按 UTC 划分日期。
func NewAnalyticsUpdater(store AnalyticsWriter, loc *time.Location) *AnalyticsUpdater {
	if loc == nil {
		loc = time.UTC
	}
	return &AnalyticsUpdater{store: store, loc: loc, now: time.Now}
}

// Record 写入 (shop, 今天) 的统计。
func (a *AnalyticsUpdater) Record(ctx context.Context, shopID string, newMatches int) error {
	day := a.now().In(a.loc).Format(time.DateOnly)
	if err := a.store.UpsertDailyAnalytics(ctx, shopID, day, newMatches); err != nil {
		return fmt.Errorf("record analytics for %s: %w", day, err)
	}
	return nil
}
