package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"wanted-radar/internal/engine"
	"wanted-radar/internal/model"
	"wanted-radar/internal/scheduler"
	"wanted-radar/internal/search"
	"wanted-radar/internal/storage"
)

// MatchRunner 执行单个店铺的匹配批处理。
type MatchRunner interface {
	Run(ctx context.Context, req engine.Request) (engine.Stats, error)
}

// MatchStore 读取已保存的匹配。
type MatchStore interface {
	ListMatches(ctx context.Context, searchID string, limit int) ([]model.Match, error)
}

// SearchService 处理搜索的创建与状态变更。
type SearchService interface {
	Create(ctx context.Context, req search.CreateRequest) (model.Search, error)
	SetStatus(ctx context.Context, id string, status model.SearchStatus) (model.Search, error)
}

// Scheduler 抽象调度接口。
type Scheduler interface {
	RunOnce(ctx context.Context) (scheduler.Summary, error)
}

// Deps 汇总 HTTP 层依赖，Scheduler 可为空。
type Deps struct {
	Runner    MatchRunner
	Matches   MatchStore
	Searches  SearchService
	Scheduler Scheduler
	Logger    *zap.Logger
}

// RunResponse 为批处理触发的响应体。
type RunResponse struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Stats   *engine.Stats `json:"stats,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type statusRequest struct {
	Status model.SearchStatus `json:"status"`
}

// NewHandler 构造 HTTP 多路复用器。
func NewHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/matches/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req engine.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, RunResponse{Message: "invalid payload", Error: err.Error()})
			return
		}
		stats, err := deps.Runner.Run(r.Context(), req)
		switch {
		case errors.Is(err, engine.ErrShopRequired):
			writeJSON(w, http.StatusBadRequest, RunResponse{Message: "shopId is required", Error: err.Error()})
		case errors.Is(err, engine.ErrRunInProgress):
			writeJSON(w, http.StatusConflict, RunResponse{Message: "match run already in progress", Error: err.Error()})
		case err != nil:
			logger.Error("match run failed", zap.String("shop_id", req.ShopID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, RunResponse{Message: "internal error", Error: err.Error()})
		default:
			writeJSON(w, http.StatusOK, RunResponse{Success: true, Message: "match run completed", Stats: &stats})
		}
	})

	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if deps.Scheduler == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler disabled"})
			return
		}
		sum, err := deps.Scheduler.RunOnce(r.Context())
		if err != nil {
			logger.Error("refresh failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "summary": sum})
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	mux.HandleFunc("POST /api/searches", func(w http.ResponseWriter, r *http.Request) {
		var req search.CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		created, err := deps.Searches.Create(r.Context(), req)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})

	mux.HandleFunc("POST /api/searches/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
			return
		}
		updated, err := deps.Searches.SetStatus(r.Context(), r.PathValue("id"), req.Status)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})

	mux.HandleFunc("GET /api/searches/{id}/matches", func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if v, err := strconv.Atoi(l); err == nil && v > 0 {
				if v > 200 {
					v = 200
				}
				limit = v
			}
		}
		matches, err := deps.Matches.ListMatches(r.Context(), r.PathValue("id"), limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, matches)
	})

	return mux
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, search.ErrInvalid):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, search.ErrClosed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
