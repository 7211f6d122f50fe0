package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
)

type conversationStoreFake struct {
	mu        sync.Mutex
	sessions  map[string]bool
	messages  []domain.ConversationMessage
	turns     map[string]int
	appendErr error
}

func newConversationStoreFake() *conversationStoreFake {
	return &conversationStoreFake{sessions: map[string]bool{}, turns: map[string]int{}}
}

func (f *conversationStoreFake) EnsureSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = true
	return nil
}

func (f *conversationStoreFake) NextTurn(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[id]++
	return f.turns[id], nil
}

func (f *conversationStoreFake) AppendMessage(_ context.Context, msg domain.ConversationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *conversationStoreFake) ListRecentMessages(_ context.Context, id string, limit int) ([]domain.ConversationMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ConversationMessage, 0, len(f.messages))
	for _, msg := range f.messages {
		if msg.SessionID == id {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func newTestSessionManager(store ports.ConversationStore, cfg SessionConfig) (*SessionManager, *int) {
	built := 0
	factory := func() ports.QueryService {
		built++
		retriever := &retrieverFake{nodes: []domain.ContentNode{
			slideNode("n1", "Revenue", "https://blob.example/p1.png", "1"),
		}}
		return NewQueryEngine(retriever, &completerFake{answer: "Revenue grew."}, EngineConfig{})
	}
	return NewSessionManager(factory, NewResponseFormatter(FormatOptions{}), store, cfg), &built
}

func TestSessionStartReturnsGreeting(t *testing.T) {
	manager, built := newTestSessionManager(nil, SessionConfig{})

	session, err := manager.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if session.ID == "" || session.Greeting != DefaultGreeting {
		t.Fatalf("unexpected session %+v", session)
	}
	if *built != 1 || manager.ActiveSessions() != 1 {
		t.Fatalf("expected one engine per session, built=%d active=%d", *built, manager.ActiveSessions())
	}
}

func TestSessionSendFormatsAnswer(t *testing.T) {
	store := newConversationStoreFake()
	manager, _ := newTestSessionManager(store, SessionConfig{Greeting: "hi"})
	session, err := manager.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	payload, err := manager.Send(context.Background(), session.ID, "How did revenue change?")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if payload.Answer != "Revenue grew." || len(payload.Sources) != 1 || len(payload.Images) != 1 {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.Images[0].Label != "Image from page 1" {
		t.Fatalf("unexpected image label %q", payload.Images[0].Label)
	}

	history, _ := store.ListRecentMessages(context.Background(), session.ID, 10)
	if len(history) != 2 {
		t.Fatalf("expected user and assistant messages, got %d", len(history))
	}
	if history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected roles %s/%s", history[0].Role, history[1].Role)
	}
	if history[0].Turn != 1 || history[1].Turn != 1 {
		t.Fatalf("expected both messages on turn 1, got %d/%d", history[0].Turn, history[1].Turn)
	}
}

func TestSessionSendIgnoresHistoryFailures(t *testing.T) {
	store := newConversationStoreFake()
	store.appendErr = errors.New("disk full")
	manager, _ := newTestSessionManager(store, SessionConfig{})
	session, _ := manager.Start(context.Background())

	if _, err := manager.Send(context.Background(), session.ID, "q"); err != nil {
		t.Fatalf("history failure must not fail the answer: %v", err)
	}
}

func TestSessionSendValidation(t *testing.T) {
	manager, _ := newTestSessionManager(nil, SessionConfig{})
	session, _ := manager.Start(context.Background())

	if _, err := manager.Send(context.Background(), session.ID, "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty message, got %v", err)
	}
	if _, err := manager.Send(context.Background(), "missing", "q"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown session, got %v", err)
	}
}

func TestSessionEndRemovesSession(t *testing.T) {
	manager, _ := newTestSessionManager(nil, SessionConfig{})
	session, _ := manager.Start(context.Background())

	if err := manager.End(context.Background(), session.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := manager.End(context.Background(), session.ID); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second end, got %v", err)
	}
	if _, err := manager.Send(context.Background(), session.ID, "q"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ended session to reject messages, got %v", err)
	}
}

func TestSessionEvictIdle(t *testing.T) {
	manager, _ := newTestSessionManager(nil, SessionConfig{IdleTTL: time.Minute})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	stale, _ := manager.Start(context.Background())
	now = now.Add(45 * time.Second)
	fresh, _ := manager.Start(context.Background())
	now = now.Add(30 * time.Second)

	if n := manager.EvictIdle(); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, err := manager.Send(context.Background(), stale.ID, "q"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected stale session evicted, got %v", err)
	}
	if _, err := manager.Send(context.Background(), fresh.ID, "q"); err != nil {
		t.Fatalf("fresh session should survive: %v", err)
	}
}
