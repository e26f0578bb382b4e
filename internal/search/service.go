package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"wanted-radar/internal/model"
)

var (
	// ErrInvalid 请求未通过校验。
	ErrInvalid = errors.New("invalid search")
	// ErrClosed 已关闭的搜索不能再修改状态。
	ErrClosed = errors.New("search is closed")
)

// Store 定义持久化接口。
type Store interface {
	CreateSearch(ctx context.Context, search *model.Search) error
	GetSearch(ctx context.Context, id string) (*model.Search, error)
	UpdateSearchStatus(ctx context.Context, id string, status model.SearchStatus) error
}

// CreateRequest 表示店铺创建搜索的请求。
type CreateRequest struct {
	ShopID      string           `json:"shopId" validate:"required,max=36"`
	Title       string           `json:"title" validate:"required,max=200"`
	Category    string           `json:"category" validate:"max=64"`
	Subcategory string           `json:"subcategory" validate:"max=64"`
	Brand       string           `json:"brand" validate:"max=120"`
	Model       string           `json:"model" validate:"max=120"`
	MinPrice    *decimal.Decimal `json:"minPrice"`
	MaxPrice    *decimal.Decimal `json:"maxPrice"`
	Location    string           `json:"location" validate:"max=120"`
	Radius      int              `json:"radius" validate:"gte=0"`
	Condition   string           `json:"condition" validate:"max=32"`
	Images      []string         `json:"images" validate:"dive,required"`
	AutoNotify  *bool            `json:"autoNotify"`
	Priority    int              `json:"priority" validate:"gte=0,lte=10"`
}

// Service 负责校验搜索请求并维护状态流转。
type Service struct {
	store    Store
	validate *validator.Validate
}

// NewService 创建搜索服务。
func NewService(store Store) *Service {
	return &Service{store: store, validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Create 校验请求并写入数据库，新建搜索总是 active。
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Search, error) {
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validate.Struct(req); err != nil {
		return model.Search{}, fmt.Errorf("%w: %s", ErrInvalid, describe(err))
	}
	if err := checkPrices(req.MinPrice, req.MaxPrice); err != nil {
		return model.Search{}, err
	}

	autoNotify := true
	if req.AutoNotify != nil {
		autoNotify = *req.AutoNotify
	}

	search := model.Search{
		ShopID:      req.ShopID,
		Title:       req.Title,
		Category:    strings.TrimSpace(req.Category),
		Subcategory: strings.TrimSpace(req.Subcategory),
		Brand:       strings.TrimSpace(req.Brand),
		Model:       strings.TrimSpace(req.Model),
		MinPrice:    nullable(req.MinPrice),
		MaxPrice:    nullable(req.MaxPrice),
		Location:    strings.TrimSpace(req.Location),
		Radius:      req.Radius,
		Condition:   strings.TrimSpace(req.Condition),
		Images:      datatypes.JSONSlice[string](req.Images),
		AutoNotify:  &autoNotify,
		Status:      model.SearchStatusActive,
		Priority:    req.Priority,
	}
	if err := s.store.CreateSearch(ctx, &search); err != nil {
		return model.Search{}, err
	}
	return search, nil
}

// SetStatus 修改搜索状态（暂停、恢复或关闭），closed 为终态。
func (s *Service) SetStatus(ctx context.Context, id string, status model.SearchStatus) (model.Search, error) {
	switch status {
	case model.SearchStatusActive, model.SearchStatusPaused, model.SearchStatusClosed:
	default:
		return model.Search{}, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}

	current, err := s.store.GetSearch(ctx, id)
	if err != nil {
		return model.Search{}, err
	}
	if current.Status == model.SearchStatusClosed {
		return *current, ErrClosed
	}
	if current.Status == status {
		return *current, nil
	}
	if err := s.store.UpdateSearchStatus(ctx, id, status); err != nil {
		return model.Search{}, err
	}
	current.Status = status
	return *current, nil
}

func checkPrices(lo, hi *decimal.Decimal) error {
	if lo != nil && lo.IsNegative() {
		return fmt.Errorf("%w: minPrice must not be negative", ErrInvalid)
	}
	if hi != nil && hi.IsNegative() {
		return fmt.Errorf("%w: maxPrice must not be negative", ErrInvalid)
	}
	if lo != nil && hi != nil && lo.GreaterThan(*hi) {
		return fmt.Errorf("%w: minPrice greater than maxPrice", ErrInvalid)
	}
	return nil
}

func nullable(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}
