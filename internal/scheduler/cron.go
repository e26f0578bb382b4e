package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wanted-radar/internal/engine"
)

// DefaultInterval 未配置或配置无效时的运行间隔。
const DefaultInterval = time.Hour

// Config 用于调度配置，Interval 可以是 Go duration 或五段 cron 表达式。
type Config struct {
	Interval string `yaml:"interval" json:"interval"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// Store 列出需要匹配的店铺。
type Store interface {
	ListShopsWithActiveSearches(ctx context.Context) ([]string, error)
}

// Runner 执行单个店铺的批处理。
type Runner interface {
	Run(ctx context.Context, req engine.Request) (engine.Stats, error)
}

// Summary 为一轮调度的汇总。
type Summary struct {
	Shops           int `json:"shops"`
	Skipped         int `json:"skipped"`
	NewMatchesAdded int `json:"newMatchesAdded"`
}

// Scheduler 周期性地对所有有效搜索的店铺触发匹配。
type Scheduler struct {
	store     Store
	runner    Runner
	interval  time.Duration
	cronSpec  string
	cron      cron.Schedule
	timeout   time.Duration
	running   atomic.Bool
	newTicker func(time.Duration) ticker
	now       func() time.Time
	logger    *zap.Logger
}

type ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewScheduler 创建 Scheduler，解析配置的间隔与超时。
func NewScheduler(s Store, r Runner, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval, spec, schedule := parseSchedule(cfg.Interval)
	timeout := 5 * time.Minute
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	return &Scheduler{
		store:     s,
		runner:    r,
		interval:  interval,
		cronSpec:  spec,
		cron:      schedule,
		timeout:   timeout,
		newTicker: defaultTicker,
		now:       time.Now,
		logger:    logger.Named("scheduler"),
	}
}

// Start 启动调度循环，直到上下文取消。单轮失败只记录日志。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.store == nil || s.runner == nil {
		return fmt.Errorf("scheduler missing dependencies")
	}

	g, ctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Info("scheduler started", zap.String("cron", s.cronSpec))
		g.Go(func() error {
			return s.startCron(ctx)
		})
	} else {
		s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
		tick := s.newTicker(s.interval)
		ch := tick.C()

		g.Go(func() error {
			defer tick.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ch:
					s.tick(ctx)
				drain:
					for {
						select {
						case <-ch:
							continue
						default:
							break drain
						}
					}
				}
			}
		})
	}

	return g.Wait()
}

// RunOnce 立即执行一轮，上一轮仍在运行时直接返回空汇总。
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	return s.runOnce(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	sum, err := s.runOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}
	s.logger.Info("scheduled run finished",
		zap.Int("shops", sum.Shops),
		zap.Int("skipped", sum.Skipped),
		zap.Int("new", sum.NewMatchesAdded),
	)
}

func (s *Scheduler) runOnce(ctx context.Context) (Summary, error) {
	if s.running.Swap(true) {
		s.logger.Debug("previous run still in progress")
		return Summary{}, nil
	}
	defer s.running.Store(false)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	shops, err := s.store.ListShopsWithActiveSearches(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list shops: %w", err)
	}

	var (
		sum  Summary
		errs []error
	)
	for _, shopID := range shops {
		stats, err := s.runner.Run(ctx, engine.Request{ShopID: shopID, Trigger: "schedule"})
		if errors.Is(err, engine.ErrRunInProgress) {
			sum.Skipped++
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("shop %s: %w", shopID, err))
			continue
		}
		sum.Shops++
		sum.NewMatchesAdded += stats.NewMatchesAdded
	}
	return sum, errors.Join(errs...)
}

func defaultTicker(d time.Duration) ticker {
	t := time.NewTicker(d)
	return tickerWrapper{t}
}

type tickerWrapper struct {
	*time.Ticker
}

func (t tickerWrapper) C() <-chan time.Time { return t.Ticker.C }
func (t tickerWrapper) Stop()               { t.Ticker.Stop() }

func (s *Scheduler) startCron(ctx context.Context) error {
	for {
		next := s.cron.Next(s.now())
		if next.IsZero() {
			return fmt.Errorf("cron %q has no next activation", s.cronSpec)
		}
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func parseSchedule(value string) (time.Duration, string, cron.Schedule) {
	trimmed := strings.TrimSpace(value)
	if trimmed != "" {
		if d, err := time.ParseDuration(trimmed); err == nil && d > 0 {
			return d, "", nil
		}
		if schedule, err := cron.ParseStandard(trimmed); err == nil {
			return 0, trimmed, schedule
		}
	}
	return DefaultInterval, "", nil
}
