package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "wanted.db"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func price(v int64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromInt(v))
}

func TestUpsertMatchIsIdempotentAndKeepsStatus(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := &model.Match{SearchID: "s1", InventoryItemID: "i1", Score: 70, Reasons: datatypes.JSONSlice[string]{"category"}}
	created, err := store.UpsertMatch(ctx, first)
	if err != nil {
		t.Fatalf("UpsertMatch error: %v", err)
	}
	if !created {
		t.Fatalf("expected first upsert to create a row")
	}

	if err := store.db.Model(&model.Match{}).Where("id = ?", first.ID).Update("status", model.MatchStatusAccepted).Error; err != nil {
		t.Fatalf("accept match: %v", err)
	}

	again := &model.Match{SearchID: "s1", InventoryItemID: "i1", Score: 90, Reasons: datatypes.JSONSlice[string]{"category", "brand"}}
	created, err = store.UpsertMatch(ctx, again)
	if err != nil {
		t.Fatalf("UpsertMatch second run error: %v", err)
	}
	if created {
		t.Fatalf("expected second upsert to update, not create")
	}
	if again.ID != first.ID {
		t.Fatalf("expected existing id %s, got %s", first.ID, again.ID)
	}

	spot := &model.Match{SearchID: "s1", SpotRequestID: "sp1", Score: 65}
	if created, err := store.UpsertMatch(ctx, spot); err != nil || !created {
		t.Fatalf("expected spot match created, got created=%v err=%v", created, err)
	}

	matches, err := store.ListMatches(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListMatches error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 stored matches, got %d", len(matches))
	}
	top := matches[0]
	if top.ID != first.ID || top.Score != 90 {
		t.Fatalf("expected updated score 90 on %s first, got %+v", first.ID, top)
	}
	if top.Status != model.MatchStatusAccepted {
		t.Fatalf("expected human status to survive re-scoring, got %s", top.Status)
	}
	if len(top.Reasons) != 2 {
		t.Fatalf("expected reasons replaced, got %v", top.Reasons)
	}
	if matches[1].Status != model.MatchStatusPending {
		t.Fatalf("expected new match pending, got %s", matches[1].Status)
	}
}

func TestListInventoryCandidates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	items := []model.InventoryItem{
		{ID: "own", ShopID: "shop-a", Category: "Electronics", Status: model.ListingStatusActive},
		{ID: "cat", ShopID: "shop-b", Category: "Electronics", Price: price(9000), Status: model.ListingStatusActive},
		{ID: "brand", ShopID: "shop-b", Category: "Music", Title: "old NIKON body", Status: model.ListingStatusActive},
		{ID: "cheap", ShopID: "shop-c", Category: "Garden", Price: price(1500), Status: model.ListingStatusActive},
		{ID: "pricey", ShopID: "shop-c", Category: "Garden", Price: price(5000), Status: model.ListingStatusActive},
		{ID: "sold", ShopID: "shop-c", Category: "Electronics", Status: model.ListingStatusSold},
	}
	if err := store.db.Create(&items).Error; err != nil {
		t.Fatalf("seed items: %v", err)
	}

	c := matching.Criteria{ShopID: "shop-a", Category: "Electronics", Brand: "Nikon", MinPrice: price(1000), MaxPrice: price(2000)}
	got, err := store.ListInventoryCandidates(ctx, "shop-a", matching.InventoryFilter(c), 20)
	if err != nil {
		t.Fatalf("ListInventoryCandidates error: %v", err)
	}

	ids := map[string]bool{}
	for _, item := range got {
		ids[item.ID] = true
	}
	for _, want := range []string{"cat", "brand", "cheap"} {
		if !ids[want] {
			t.Fatalf("expected %s in candidates, got %v", want, ids)
		}
	}
	for _, unwanted := range []string{"own", "pricey", "sold"} {
		if ids[unwanted] {
			t.Fatalf("did not expect %s in candidates, got %v", unwanted, ids)
		}
	}
}

func TestListInventoryCandidatesLimit(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	var items []model.InventoryItem
	for i := 0; i < 25; i++ {
		items = append(items, model.InventoryItem{ID: fmt.Sprintf("item-%02d", i), ShopID: "other", Status: model.ListingStatusActive})
	}
	if err := store.db.Create(&items).Error; err != nil {
		t.Fatalf("seed items: %v", err)
	}

	got, err := store.ListInventoryCandidates(ctx, "mine", nil, 20)
	if err != nil {
		t.Fatalf("ListInventoryCandidates error: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("expected 20 candidates, got %d", len(got))
	}
}

func TestListSpotCandidatesMatchesDescription(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	spots := []model.SpotRequest{
		{ID: "desc", UserID: "u1", Title: "wanted", Description: "Any nikon F2 please", Status: model.ListingStatusActive},
		{ID: "other", UserID: "u2", Title: "bike", Description: "road bike", Status: model.ListingStatusActive},
		{ID: "closed", UserID: "u3", Title: "nikon", Status: model.ListingStatusArchived},
	}
	if err := store.db.Create(&spots).Error; err != nil {
		t.Fatalf("seed spots: %v", err)
	}

	got, err := store.ListSpotCandidates(ctx, "", matching.SpotFilter(matching.Criteria{Brand: "Nikon"}))
	if err != nil {
		t.Fatalf("ListSpotCandidates error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "desc" {
		t.Fatalf("expected only desc spot, got %+v", got)
	}
}

func TestListSpotCandidatesExcludesShopOwner(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.db.Create(&model.Shop{ID: "shop-a", OwnerID: "owner-a"}).Error; err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	spots := []model.SpotRequest{
		{ID: "own", UserID: "owner-a", Title: "nikon body", Status: model.ListingStatusActive},
		{ID: "theirs", UserID: "u2", Title: "nikon lens", Status: model.ListingStatusActive},
	}
	if err := store.db.Create(&spots).Error; err != nil {
		t.Fatalf("seed spots: %v", err)
	}

	filter := matching.SpotFilter(matching.Criteria{Brand: "Nikon"})
	got, err := store.ListSpotCandidates(ctx, "shop-a", filter)
	if err != nil {
		t.Fatalf("ListSpotCandidates error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "theirs" {
		t.Fatalf("expected owner's own spot to be excluded, got %+v", got)
	}

	got, err = store.ListSpotCandidates(ctx, "unknown-shop", filter)
	if err != nil {
		t.Fatalf("ListSpotCandidates error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both spots for a shop without owner record, got %d", len(got))
	}
}

func TestApplyPredicatesRejectsUnknownField(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	_, err := store.ListSpotCandidates(context.Background(), "", []matching.Predicate{{Field: "price", Op: matching.OpLte, Value: decimal.NewFromInt(1)}})
	if err == nil {
		t.Fatalf("expected error for price filter on spot requests")
	}
}

func TestUpsertDailyAnalyticsOverwrites(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	if err := store.UpsertDailyAnalytics(ctx, "shop-a", "2024-06-10", 3); err != nil {
		t.Fatalf("UpsertDailyAnalytics error: %v", err)
	}
	if err := store.UpsertDailyAnalytics(ctx, "shop-a", "2024-06-10", 1); err != nil {
		t.Fatalf("UpsertDailyAnalytics second run error: %v", err)
	}

	row, err := store.GetDailyAnalytics(ctx, "shop-a", "2024-06-10")
	if err != nil {
		t.Fatalf("GetDailyAnalytics error: %v", err)
	}
	if row.MatchesFound != 1 {
		t.Fatalf("expected same-day count overwritten to 1, got %d", row.MatchesFound)
	}

	var count int64
	store.db.Model(&model.DailyShopAnalytics{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one analytics row, got %d", count)
	}

	if _, err := store.GetDailyAnalytics(ctx, "shop-a", "2024-06-11"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing day, got %v", err)
	}
}

func TestGetShopOwnerContact(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	store.db.Create(&model.User{ID: "u1", Email: "owner@example.com"})
	store.db.Create(&model.Shop{ID: "shop-a", OwnerID: "u1"})
	store.db.Create(&model.Shop{ID: "shop-orphan", OwnerID: "ghost"})

	ownerID, email, err := store.GetShopOwnerContact(ctx, "shop-a")
	if err != nil {
		t.Fatalf("GetShopOwnerContact error: %v", err)
	}
	if ownerID != "u1" || email != "owner@example.com" {
		t.Fatalf("unexpected contact %s %s", ownerID, email)
	}

	if _, _, err := store.GetShopOwnerContact(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing shop, got %v", err)
	}
	ownerID, _, err = store.GetShopOwnerContact(ctx, "shop-orphan")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing owner, got %v", err)
	}
	if ownerID != "ghost" {
		t.Fatalf("expected owner id returned with error, got %q", ownerID)
	}
}

func TestSearchLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	active := &model.Search{ShopID: "shop-a", Title: "camera", Priority: 1}
	if err := store.CreateSearch(ctx, active); err != nil {
		t.Fatalf("CreateSearch error: %v", err)
	}
	urgent := &model.Search{ShopID: "shop-a", Title: "lens", Priority: 5}
	if err := store.CreateSearch(ctx, urgent); err != nil {
		t.Fatalf("CreateSearch error: %v", err)
	}
	paused := &model.Search{ShopID: "shop-b", Title: "tripod", Status: model.SearchStatusPaused}
	if err := store.CreateSearch(ctx, paused); err != nil {
		t.Fatalf("CreateSearch error: %v", err)
	}

	fetched, err := store.GetSearch(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetSearch error: %v", err)
	}
	if fetched.Status != model.SearchStatusActive {
		t.Fatalf("expected default active status, got %s", fetched.Status)
	}
	if !fetched.NotifyEnabled() {
		t.Fatalf("expected auto notify to default to true")
	}

	searches, err := store.ListActiveSearches(ctx, "shop-a")
	if err != nil {
		t.Fatalf("ListActiveSearches error: %v", err)
	}
	if len(searches) != 2 || searches[0].ID != urgent.ID {
		t.Fatalf("expected 2 active searches with priority first, got %+v", searches)
	}

	shops, err := store.ListShopsWithActiveSearches(ctx)
	if err != nil {
		t.Fatalf("ListShopsWithActiveSearches error: %v", err)
	}
	if len(shops) != 1 || shops[0] != "shop-a" {
		t.Fatalf("expected only shop-a, got %v", shops)
	}

	if err := store.UpdateSearchStatus(ctx, active.ID, model.SearchStatusClosed); err != nil {
		t.Fatalf("UpdateSearchStatus error: %v", err)
	}
	searches, _ = store.ListActiveSearches(ctx, "shop-a")
	if len(searches) != 1 {
		t.Fatalf("expected closed search excluded, got %d", len(searches))
	}
	if err := store.UpdateSearchStatus(ctx, "missing", model.SearchStatusPaused); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetSearch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNotifications(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	n := &model.Notification{UserID: "u1", Type: model.NotificationTypeMatchFound, Title: "match", Payload: datatypes.JSONMap{"score": 90}}
	if err := store.CreateNotification(ctx, n); err != nil {
		t.Fatalf("CreateNotification error: %v", err)
	}
	if n.ID == "" {
		t.Fatalf("expected id assigned")
	}
	list, err := store.ListNotifications(ctx, "u1")
	if err != nil {
		t.Fatalf("ListNotifications error: %v", err)
	}
	if len(list) != 1 || list[0].Title != "match" {
		t.Fatalf("unexpected notifications %+v", list)
	}
}
