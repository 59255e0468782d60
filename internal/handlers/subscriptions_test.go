package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/streamtube/backend/internal/models"
)

func subscriptionRequest(t *testing.T, viewer models.User, method, username string) *http.Request {
	t.Helper()
	req := authenticatedRequest(t, viewer, method, "/api/v1/subscriptions/"+username, nil)
	req.SetPathValue("username", username)
	return req
}

func TestSubscriptionHandlerSubscribe(t *testing.T) {
	users := newInMemoryUserStore()
	users.add(models.User{ID: "channel-1", Username: "alice"})
	subs := newFakeSubscriptionStore()
	handler := SubscriptionHandler{Users: users, Subscriptions: subs}

	req := subscriptionRequest(t, models.User{ID: "viewer-1"}, http.MethodPost, "alice")
	rec := httptest.NewRecorder()

	handler.Subscribe(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	if _, ok := subs.edges[edgeKey("viewer-1", "channel-1")]; !ok {
		t.Fatal("expected subscription edge to be stored")
	}
}

func TestSubscriptionHandlerSubscribeTwice(t *testing.T) {
	users := newInMemoryUserStore()
	users.add(models.User{ID: "channel-1", Username: "alice"})
	subs := newFakeSubscriptionStore()
	subs.edges[edgeKey("viewer-1", "channel-1")] = struct{}{}
	handler := SubscriptionHandler{Users: users, Subscriptions: subs}

	req := subscriptionRequest(t, models.User{ID: "viewer-1"}, http.MethodPost, "alice")
	rec := httptest.NewRecorder()

	handler.Subscribe(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d got %d", http.StatusConflict, rec.Code)
	}
}

func TestSubscriptionHandlerSubscribeSelf(t *testing.T) {
	users := newInMemoryUserStore()
	users.add(models.User{ID: "user-1", Username: "alice"})
	handler := SubscriptionHandler{Users: users, Subscriptions: newFakeSubscriptionStore()}

	req := subscriptionRequest(t, models.User{ID: "user-1", Username: "alice"}, http.MethodPost, "alice")
	rec := httptest.NewRecorder()

	handler.Subscribe(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestSubscriptionHandlerSubscribeUnknownChannel(t *testing.T) {
	handler := SubscriptionHandler{Users: newInMemoryUserStore(), Subscriptions: newFakeSubscriptionStore()}

	req := subscriptionRequest(t, models.User{ID: "viewer-1"}, http.MethodPost, "ghost")
	rec := httptest.NewRecorder()

	handler.Subscribe(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSubscriptionHandlerUnsubscribe(t *testing.T) {
	users := newInMemoryUserStore()
	users.add(models.User{ID: "channel-1", Username: "alice"})
	subs := newFakeSubscriptionStore()
	subs.edges[edgeKey("viewer-1", "channel-1")] = struct{}{}
	handler := SubscriptionHandler{Users: users, Subscriptions: subs}

	req := subscriptionRequest(t, models.User{ID: "viewer-1"}, http.MethodDelete, "alice")
	rec := httptest.NewRecorder()

	handler.Unsubscribe(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d got %d", http.StatusNoContent, rec.Code)
	}
	if len(subs.edges) != 0 {
		t.Fatal("expected subscription edge to be removed")
	}
}

func TestSubscriptionHandlerUnsubscribeMissingEdge(t *testing.T) {
	users := newInMemoryUserStore()
	users.add(models.User{ID: "channel-1", Username: "alice"})
	handler := SubscriptionHandler{Users: users, Subscriptions: newFakeSubscriptionStore()}

	req := subscriptionRequest(t, models.User{ID: "viewer-1"}, http.MethodDelete, "alice")
	rec := httptest.NewRecorder()

	handler.Unsubscribe(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d got %d", http.StatusNotFound, rec.Code)
	}
}
