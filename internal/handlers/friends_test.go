package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glassychat/backend/internal/friends"
	"github.com/glassychat/backend/internal/models"
)

func TestFriendRequest_Recorded(t *testing.T) {
	engine := &fakeFriends{}
	handler := FriendHandler{Friends: engine, Sessions: &fakeSessions{authUID: "alice"}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/request", strings.NewReader(`{"toUid":"bob"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Request(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(engine.sent) != 1 || engine.sent[0] != [2]string{"alice", "bob"} {
		t.Fatalf("unexpected send calls: %+v", engine.sent)
	}
}

func TestFriendRequest_Unauthorized(t *testing.T) {
	handler := FriendHandler{Friends: &fakeFriends{}, Sessions: &fakeSessions{}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/request", strings.NewReader(`{"toUid":"bob"}`))
	rec := httptest.NewRecorder()

	handler.Request(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestFriendRequest_SelfTarget(t *testing.T) {
	handler := FriendHandler{
		Friends:  &fakeFriends{sendErr: friends.ErrSelfRequest},
		Sessions: &fakeSessions{authUID: "alice"},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/request", strings.NewReader(`{"toUid":"alice"}`))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Request(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFriendRequest_MissingRecipient(t *testing.T) {
	handler := FriendHandler{Friends: &fakeFriends{}, Sessions: &fakeSessions{authUID: "alice"}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/request", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Request(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFriendRespond_Accept(t *testing.T) {
	engine := &fakeFriends{request: models.FriendRequest{ID: "r1", FromUID: "alice", ToUID: "bob"}}
	handler := FriendHandler{Friends: engine, Sessions: &fakeSessions{authUID: "bob"}}

	body := `{"requestId":"r1","action":"accept"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/respond", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Respond(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(engine.accepted) != 1 || engine.accepted[0] != "r1" {
		t.Fatalf("accept not invoked: %+v", engine.accepted)
	}
}

func TestFriendRespond_Reject(t *testing.T) {
	engine := &fakeFriends{request: models.FriendRequest{ID: "r1", FromUID: "alice", ToUID: "bob"}}
	handler := FriendHandler{Friends: engine, Sessions: &fakeSessions{authUID: "bob"}}

	body := `{"requestId":"r1","action":"reject"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/respond", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Respond(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(engine.rejected) != 1 {
		t.Fatalf("reject not invoked: %+v", engine.rejected)
	}
}

func TestFriendRespond_OnlyRecipientMayRespond(t *testing.T) {
	engine := &fakeFriends{request: models.FriendRequest{ID: "r1", FromUID: "alice", ToUID: "bob"}}
	handler := FriendHandler{Friends: engine, Sessions: &fakeSessions{authUID: "alice"}}

	body := `{"requestId":"r1","action":"accept"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/respond", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Respond(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if len(engine.accepted) != 0 {
		t.Fatalf("accept must not run for non-recipient")
	}
}

func TestFriendRespond_UnknownRequest(t *testing.T) {
	handler := FriendHandler{
		Friends:  &fakeFriends{requestErr: friends.ErrRequestNotFound},
		Sessions: &fakeSessions{authUID: "bob"},
	}

	body := `{"requestId":"ghost","action":"accept"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/respond", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Respond(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFriendRespond_InvalidAction(t *testing.T) {
	engine := &fakeFriends{request: models.FriendRequest{ID: "r1", FromUID: "alice", ToUID: "bob"}}
	handler := FriendHandler{Friends: engine, Sessions: &fakeSessions{authUID: "bob"}}

	body := `{"requestId":"r1","action":"maybe"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/friends/respond", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer good-token")
	rec := httptest.NewRecorder()

	handler.Respond(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
