package notifier

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

// Store 定义通知所需的读写接口。
type Store interface {
	GetShopOwnerContact(ctx context.Context, shopID string) (ownerID, email string, err error)
	CreateNotification(ctx context.Context, n *model.Notification) error
}

// Config 控制通知链接与兜底收件人。
type Config struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	AdminEmail string `yaml:"admin_email" json:"admin_email"`
}

// Dispatcher 为高分匹配发送邮件并写入站内通知，两者互不影响，失败只记录日志。
type Dispatcher struct {
	store  Store
	sender Sender
	cfg    Config
	logger *zap.Logger
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(store Store, sender Sender, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	return &Dispatcher{store: store, sender: sender, cfg: cfg, logger: logger.Named("dispatcher")}
}

// NotifyMatch 通知店主有新的匹配。
func (d *Dispatcher) NotifyMatch(ctx context.Context, search model.Search, match model.Match, cand matching.Candidate) {
	log := d.logger.With(
		zap.String("shop_id", search.ShopID),
		zap.String("search_id", search.ID),
		zap.String("match_id", match.ID),
	)

	ownerID, email, err := d.store.GetShopOwnerContact(ctx, search.ShopID)
	if err != nil {
		log.Warn("owner lookup failed", zap.Error(err))
	}

	link := d.matchLink(search.ID, match.ID)
	reasons := reasonLabels(match.Reasons)
	data := map[string]any{
		"search_title":    search.Title,
		"score":           match.Score,
		"reasons":         strings.Join(reasons, ", "),
		"link":            link,
		"candidate_title": cand.Title,
		"candidate_kind":  string(cand.Kind),
	}

	to := email
	if to == "" {
		to = d.cfg.AdminEmail
	}
	switch {
	case d.sender == nil:
	case to == "":
		log.Warn("no recipient for match email")
	default:
		if err := d.sender.Send(ctx, to, TemplateMatchFound, data); err != nil {
			log.Error("send match email", zap.Error(err))
		}
	}

	if ownerID == "" {
		log.Warn("no owner for in-app notification")
		return
	}
	n := &model.Notification{
		UserID:          ownerID,
		Type:            model.NotificationTypeMatchFound,
		Title:           fmt.Sprintf("New match for %s", search.Title),
		Message:         fmt.Sprintf("%s scored %d/100", cand.Title, match.Score),
		Link:            link,
		SearchID:        search.ID,
		InventoryItemID: match.InventoryItemID,
		SpotRequestID:   match.SpotRequestID,
		Payload: datatypes.JSONMap{
			"score":   match.Score,
			"reasons": []string(match.Reasons),
			"kind":    string(cand.Kind),
		},
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		log.Error("create in-app notification", zap.Error(err))
	}
}

func (d *Dispatcher) matchLink(searchID, matchID string) string {
	return fmt.Sprintf("%s/searches/%s/matches/%s", d.cfg.BaseURL, searchID, matchID)
}

func reasonLabels(tags []string) []string {
	labels := make([]string, 0, len(tags))
	for _, tag := range tags {
		labels = append(labels, matching.Reason(tag).Label())
	}
	return labels
}
