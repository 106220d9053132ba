package handlers

import (
	"net/http"
	"strings"
	"testing"
)

func TestInviteHandler_SendsJoinLink(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")
	env.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/join", "player-1", nil)
	env.do(t, http.MethodPut, "/api/sessions/"+session.ID+"/name", "player-1", renameRequest{Name: "Ada"})

	rec := env.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/invites", "player-1", inviteRequest{Email: "friend@example.com"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(env.sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(env.sender.sent))
	}
	sent := env.sender.sent[0]
	if sent.to != "friend@example.com" || !strings.Contains(sent.subject, "Ada") {
		t.Fatalf("unexpected email %+v", sent)
	}
	if !strings.Contains(sent.text, "https://bingo.example/play/"+session.ID) {
		t.Fatalf("expected join link in %q", sent.text)
	}
}

func TestInviteHandler_AnonymousInviter(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")

	rec := env.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/invites", "not-joined", inviteRequest{Email: "friend@example.com"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if !strings.HasPrefix(env.sender.sent[0].subject, "Someone") {
		t.Fatalf("unexpected subject %q", env.sender.sent[0].subject)
	}
}

func TestInviteHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	session := env.createSession(t, "creator-1")

	expectError(t, env.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/invites", "player-1", inviteRequest{Email: "nope"}), http.StatusBadRequest, codeValidation)
	expectError(t, env.do(t, http.MethodPost, "/api/sessions/abc123/invites", "player-1", inviteRequest{Email: "friend@example.com"}), http.StatusNotFound, codeNotFound)
	if len(env.sender.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(env.sender.sent))
	}
}
