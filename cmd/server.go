package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"wanted-radar/internal/api"
	"wanted-radar/internal/engine"
	"wanted-radar/internal/fetcher"
	"wanted-radar/internal/lock"
	"wanted-radar/internal/matching"
	"wanted-radar/internal/notifier"
	"wanted-radar/internal/scheduler"
	"wanted-radar/internal/search"
	"wanted-radar/internal/storage"
)

// AppConfig 应用配置。
type AppConfig struct {
	Server    ServerConfig         `yaml:"server"`
	Database  storage.Config       `yaml:"database"`
	Email     notifier.EmailConfig `yaml:"email"`
	Notify    NotifyConfig         `yaml:"notify"`
	Matching  MatchingConfig       `yaml:"matching"`
	Scheduler scheduler.Config     `yaml:"scheduler"`
	Redis     lock.Config          `yaml:"redis"`
	Log       LogConfig            `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type NotifyConfig struct {
	BaseURL    string `yaml:"base_url"`
	AdminEmail string `yaml:"admin_email"`
	MinScore   int    `yaml:"min_score"`
}

type MatchingConfig struct {
	Thresholds     matching.Thresholds `yaml:"thresholds"`
	InventoryLimit int                 `yaml:"inventory_limit"`
	Timezone       string              `yaml:"timezone"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// httpServer 便于测试替换 *http.Server。
type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type backgroundScheduler interface {
	Start(ctx context.Context) error
}

type matchRunner interface {
	Run(ctx context.Context, req engine.Request) (engine.Stats, error)
}

// appDeps 为装配好的组件。
type appDeps struct {
	engine  matchRunner
	sched   backgroundScheduler
	handler http.Handler
	logger  *zap.Logger
}

type depsBuilder func(AppConfig) (appDeps, func(), error)

func main() {
	shopID := flag.String("once", "", "run the match batch for one shop and exit")
	flag.Parse()

	cfg, err := loadConfig(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *shopID != "" {
		stats, err := runOnceManual(ctx, cfg, *shopID, buildDeps)
		if err != nil {
			fmt.Fprintf(os.Stderr, "manual run error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("searches=%d found=%d new=%d\n", stats.TotalSearchesChecked, stats.TotalMatchesFound, stats.NewMatchesAdded)
		return
	}

	deps, cleanup, err := buildDeps(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: deps.handler, ReadHeaderTimeout: 10 * time.Second}

	deps.logger.Info("listening", zap.String("addr", addr))
	if err := runServer(ctx, srv, deps.sched, 5*time.Second); err != nil {
		deps.logger.Error("server error", zap.Error(err))
	}
}

// runServer 运行 HTTP 服务与调度器，上下文取消后优雅关闭。
func runServer(ctx context.Context, srv httpServer, sched backgroundScheduler, timeout time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if sched != nil {
			_ = sched.Start(ctx)
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), timeout)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	<-schedDone
	return err
}

// runOnceManual 装配依赖后对单个店铺执行一次批处理。
func runOnceManual(ctx context.Context, cfg AppConfig, shopID string, build depsBuilder) (engine.Stats, error) {
	deps, cleanup, err := build(cfg)
	if err != nil {
		return engine.Stats{}, fmt.Errorf("build deps: %w", err)
	}
	defer cleanup()
	return deps.engine.Run(ctx, engine.Request{ShopID: shopID, Trigger: "manual"})
}

func buildDeps(cfg AppConfig) (appDeps, func(), error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return appDeps{}, nil, err
	}

	store, err := storage.Open(cfg.Database)
	if err != nil {
		_ = logger.Sync()
		return appDeps{}, nil, fmt.Errorf("init store: %w", err)
	}
	closers := []func() error{store.Close}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = logger.Sync()
	}

	sender, err := buildSender(cfg.Email, logger)
	if err != nil {
		cleanup()
		return appDeps{}, nil, err
	}
	dispatcher := notifier.NewDispatcher(store, sender, notifier.Config{
		BaseURL:    cfg.Notify.BaseURL,
		AdminEmail: cfg.Notify.AdminEmail,
	}, logger)

	engineDeps := engine.Deps{
		Searches:   store,
		Candidates: fetcher.New(store, fetcher.Config{InventoryLimit: cfg.Matching.InventoryLimit}, logger),
		Matches:    store,
		Analytics:  store,
		Notifier:   dispatcher,
	}
	if cfg.Redis.Addr != "" {
		dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		locker, closeRedis, err := lock.Dial(dialCtx, cfg.Redis)
		cancel()
		if err != nil {
			cleanup()
			return appDeps{}, nil, fmt.Errorf("init redis lock: %w", err)
		}
		closers = append(closers, closeRedis)
		engineDeps.Locker = locker
	} else {
		logger.Info("redis lock disabled, concurrent runs are last-write-wins")
	}

	eng, err := engine.New(engineDeps, engine.Config{
		Thresholds:     cfg.Matching.Thresholds,
		NotifyMinScore: cfg.Notify.MinScore,
		Timezone:       cfg.Matching.Timezone,
	}, logger)
	if err != nil {
		cleanup()
		return appDeps{}, nil, err
	}

	sched := scheduler.NewScheduler(store, eng, cfg.Scheduler, logger)
	handler := api.NewHandler(api.Deps{
		Runner:    eng,
		Matches:   store,
		Searches:  search.NewService(store),
		Scheduler: sched,
		Logger:    logger,
	})

	return appDeps{engine: eng, sched: sched, handler: handler, logger: logger}, cleanup, nil
}

func buildSender(cfg notifier.EmailConfig, logger *zap.Logger) (notifier.Sender, error) {
	if !cfg.Enabled() {
		logger.Info("email disabled: missing host/port/from, notifications are logged")
		return notifier.NewLogSender(logger), nil
	}
	mailer, err := notifier.NewMailer(cfg, notifier.NewSMTPClient(cfg))
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	return mailer, nil
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	if cfg.Level == "debug" {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

// loadConfig 读取 YAML 配置（文件不存在时使用默认值），再叠加 .env 与环境变量。
func loadConfig(path string) (AppConfig, error) {
	if path == "" {
		path = "config.yaml"
	}
	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return AppConfig{}, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return AppConfig{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return AppConfig{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	strs := map[string]*string{
		"SERVER_ADDR":        &cfg.Server.Addr,
		"DATABASE_DRIVER":    &cfg.Database.Driver,
		"DATABASE_DSN":       &cfg.Database.DSN,
		"SMTP_HOST":          &cfg.Email.Host,
		"SMTP_USERNAME":      &cfg.Email.Username,
		"SMTP_PASSWORD":      &cfg.Email.Password,
		"SMTP_FROM":          &cfg.Email.From,
		"NOTIFY_BASE_URL":    &cfg.Notify.BaseURL,
		"NOTIFY_ADMIN_EMAIL": &cfg.Notify.AdminEmail,
		"SCHEDULER_INTERVAL": &cfg.Scheduler.Interval,
		"REDIS_ADDR":         &cfg.Redis.Addr,
		"REDIS_PASSWORD":     &cfg.Redis.Password,
		"MATCH_TIMEZONE":     &cfg.Matching.Timezone,
		"LOG_LEVEL":          &cfg.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SMTP_PORT":        &cfg.Email.Port,
		"NOTIFY_MIN_SCORE": &cfg.Notify.MinScore,
		"REDIS_DB":         &cfg.Redis.DB,
		"INVENTORY_LIMIT":  &cfg.Matching.InventoryLimit,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}
