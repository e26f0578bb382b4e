package notifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"

	"wanted-radar/internal/matching"
	"wanted-radar/internal/model"
)

func testMatch() (model.Search, model.Match, matching.Candidate) {
	search := model.Search{ID: "s1", ShopID: "shop-a", Title: "Nikon F2"}
	match := model.Match{ID: "m1", SearchID: "s1", InventoryItemID: "i1", Score: 90, Reasons: datatypes.JSONSlice[string]{"category", "brand"}}
	cand := matching.Candidate{Kind: matching.KindInventory, ID: "i1", Title: "Nikon F2 body"}
	return search, match, cand
}

func TestDispatcherSendsEmailAndInApp(t *testing.T) {
	t.Parallel()

	store := &stubStore{ownerID: "u1", email: "owner@example.com"}
	sender := &stubTemplateSender{}
	d := NewDispatcher(store, sender, Config{BaseURL: "https://market.example.com/"}, nil)

	search, match, cand := testMatch()
	d.NotifyMatch(context.Background(), search, match, cand)

	if sender.calls != 1 || sender.to != "owner@example.com" || sender.templateID != TemplateMatchFound {
		t.Fatalf("unexpected email send: %+v", sender)
	}
	if sender.data["reasons"] != "Category match, Brand match" {
		t.Fatalf("expected joined reason labels, got %v", sender.data["reasons"])
	}
	link, _ := sender.data["link"].(string)
	if link != "https://market.example.com/searches/s1/matches/m1" {
		t.Fatalf("unexpected deep link %q", link)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected 1 in-app notification, got %d", len(store.created))
	}
	n := store.created[0]
	if n.UserID != "u1" || n.SearchID != "s1" || n.InventoryItemID != "i1" || n.Type != model.NotificationTypeMatchFound {
		t.Fatalf("unexpected notification %+v", n)
	}
	if !strings.Contains(n.Message, "90") {
		t.Fatalf("expected score in message, got %q", n.Message)
	}
}

func TestDispatcherFallsBackToAdminEmail(t *testing.T) {
	t.Parallel()

	store := &stubStore{lookupErr: errors.New("shop missing")}
	sender := &stubTemplateSender{}
	core, logs := observer.New(zapcore.WarnLevel)
	d := NewDispatcher(store, sender, Config{AdminEmail: "ops@example.com"}, zap.New(core))

	search, match, cand := testMatch()
	d.NotifyMatch(context.Background(), search, match, cand)

	if sender.to != "ops@example.com" {
		t.Fatalf("expected admin fallback recipient, got %q", sender.to)
	}
	if len(store.created) != 0 {
		t.Fatalf("expected no in-app notification without owner, got %d", len(store.created))
	}
	if logs.FilterMessage("owner lookup failed").Len() != 1 {
		t.Fatalf("expected lookup failure to be logged")
	}
}

func TestDispatcherSkipsEmailWithoutRecipient(t *testing.T) {
	t.Parallel()

	store := &stubStore{ownerID: "u1"}
	sender := &stubTemplateSender{}
	d := NewDispatcher(store, sender, Config{}, nil)

	search, match, cand := testMatch()
	d.NotifyMatch(context.Background(), search, match, cand)

	if sender.calls != 0 {
		t.Fatalf("expected no email without recipient, got %d", sender.calls)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected in-app notification still created, got %d", len(store.created))
	}
}

func TestDispatcherFailuresAreIndependent(t *testing.T) {
	t.Parallel()

	store := &stubStore{ownerID: "u1", email: "owner@example.com", createErr: errors.New("insert failed")}
	sender := &stubTemplateSender{err: errors.New("smtp down")}
	core, logs := observer.New(zapcore.ErrorLevel)
	d := NewDispatcher(store, sender, Config{}, zap.New(core))

	search, match, cand := testMatch()
	d.NotifyMatch(context.Background(), search, match, cand)

	if sender.calls != 1 {
		t.Fatalf("expected email attempted, got %d", sender.calls)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected in-app insert attempted after email failure, got %d", store.createCalls)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected both failures logged, got %d entries", logs.Len())
	}
}

// --- stubs ---

type stubStore struct {
	ownerID     string
	email       string
	lookupErr   error
	createErr   error
	createCalls int
	created     []model.Notification
}

func (s *stubStore) GetShopOwnerContact(ctx context.Context, shopID string) (string, string, error) {
	return s.ownerID, s.email, s.lookupErr
}

func (s *stubStore) CreateNotification(ctx context.Context, n *model.Notification) error {
	s.createCalls++
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, *n)
	return nil
}

type stubTemplateSender struct {
	calls      int
	to         string
	templateID string
	data       map[string]any
	err        error
}

func (s *stubTemplateSender) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	s.calls++
	s.to = to
	s.templateID = templateID
	s.data = data
	return s.err
}
