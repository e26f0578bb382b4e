package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"wanted-radar/internal/engine"
)

func TestSchedulerRunOnce(t *testing.T) {
	t.Parallel()

	st := &stubStore{shops: []string{"shop-a", "shop-b"}}
	r := &stubRunner{added: 2}

	sched := NewScheduler(st, r, Config{Interval: "1h", Timeout: "5s"}, nil)

	sum, err := sched.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if sum.Shops != 2 || sum.NewMatchesAdded != 4 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	got := r.requests()
	if len(got) != 2 || got[0].ShopID != "shop-a" || got[1].ShopID != "shop-b" {
		t.Fatalf("unexpected requests %+v", got)
	}
	if got[0].Trigger != "schedule" {
		t.Fatalf("expected schedule trigger, got %q", got[0].Trigger)
	}
}

func TestSchedulerContinuesAfterShopFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	st := &stubStore{shops: []string{"shop-a", "shop-b", "shop-c"}}
	r := &stubRunner{
		added: 1,
		errs: map[string]error{
			"shop-a": boom,
			"shop-b": engine.ErrRunInProgress,
		},
	}

	sched := NewScheduler(st, r, Config{Interval: "1h"}, nil)
	sum, err := sched.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined shop error, got %v", err)
	}
	if sum.Shops != 1 || sum.Skipped != 1 || sum.NewMatchesAdded != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestSchedulerListFailure(t *testing.T) {
	t.Parallel()

	st := &stubStore{err: errors.New("db down")}
	r := &stubRunner{}
	sched := NewScheduler(st, r, Config{}, nil)

	if _, err := sched.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected list error")
	}
	if len(r.requests()) != 0 {
		t.Fatalf("runner should not be called")
	}
}

func TestSchedulerNoOverlap(t *testing.T) {
	t.Parallel()

	tickCh := make(chan time.Time, 4)
	tk := &stubTicker{ch: tickCh}

	st := &stubStore{shops: []string{"shop-a"}}
	r := &stubRunner{block: make(chan struct{})}

	sched := NewScheduler(st, r, Config{Interval: "100ms", Timeout: "5s"}, nil)
	sched.newTicker = func(d time.Duration) ticker { return tk }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Start(ctx)
	}()

	// 第一次触发，runner 阻塞直到释放。
	tickCh <- time.Now()
	time.Sleep(20 * time.Millisecond)

	// 运行期间手动触发应被跳过。
	sum, err := sched.RunOnce(context.Background())
	if err != nil || sum.Shops != 0 {
		t.Fatalf("expected overlapping run to be skipped, got %+v %v", sum, err)
	}

	close(r.block)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if r.calls.Load() != 1 {
		t.Fatalf("expected runner called once due to overlap prevention, got %d", r.calls.Load())
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	if d, spec, s := parseSchedule("15m"); d != 15*time.Minute || spec != "" || s != nil {
		t.Fatalf("expected duration schedule, got %v %q %v", d, spec, s)
	}

	d, spec, s := parseSchedule("*/10 * * * *")
	if d != 0 || spec != "*/10 * * * *" || s == nil {
		t.Fatalf("expected cron schedule, got %v %q %v", d, spec, s)
	}
	from := time.Date(2024, 3, 1, 10, 3, 0, 0, time.UTC)
	if next := s.Next(from); !next.Equal(time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)) {
		t.Fatalf("unexpected next activation %v", next)
	}

	if d, _, s := parseSchedule("not a schedule"); d != DefaultInterval || s != nil {
		t.Fatalf("expected default interval, got %v %v", d, s)
	}
}

func TestStartRequiresDependencies(t *testing.T) {
	t.Parallel()

	sched := NewScheduler(nil, nil, Config{}, nil)
	if err := sched.Start(context.Background()); err == nil {
		t.Fatalf("expected dependency error")
	}
}

// --- stubs ---

type stubStore struct {
	shops []string
	err   error
}

func (s *stubStore) ListShopsWithActiveSearches(ctx context.Context) ([]string, error) {
	return s.shops, s.err
}

type stubRunner struct {
	added int
	errs  map[string]error
	block chan struct{}
	calls atomic.Int32

	mu   sync.Mutex
	reqs []engine.Request
}

func (r *stubRunner) Run(ctx context.Context, req engine.Request) (engine.Stats, error) {
	r.calls.Add(1)
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.reqs = append(r.reqs, req)
	r.mu.Unlock()
	if err := r.errs[req.ShopID]; err != nil {
		return engine.Stats{}, err
	}
	return engine.Stats{NewMatchesAdded: r.added}, nil
}

func (r *stubRunner) requests() []engine.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]engine.Request(nil), r.reqs...)
}

type stubTicker struct {
	ch chan time.Time
}

func (s *stubTicker) C() <-chan time.Time { return s.ch }
func (s *stubTicker) Stop()               {}
