package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
)

const DefaultGreeting = "Hello! I'm ready to answer questions about the indexed slide deck, using both the parsed slide text and the slide images. What would you like to know?"

// EngineFactory builds the query engine bound to a new session.
type EngineFactory func() ports.QueryService

type SessionConfig struct {
	Greeting string
	IdleTTL  time.Duration
}

type sessionEntry struct {
	engine   ports.QueryService
	lastSeen time.Time
}

// SessionManager keeps one query engine per chat session and routes messages to it.
type SessionManager struct {
	newEngine EngineFactory
	formatter ResponseFormatter
	store     ports.ConversationStore
	cfg       SessionConfig
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionManager creates a manager; store may be nil to disable message history.
func NewSessionManager(
	newEngine EngineFactory,
	formatter ResponseFormatter,
	store ports.ConversationStore,
	cfg SessionConfig,
) *SessionManager {
	if strings.TrimSpace(cfg.Greeting) == "" {
		cfg.Greeting = DefaultGreeting
	}
	return &SessionManager{
		newEngine: newEngine,
		formatter: formatter,
		store:     store,
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[string]*sessionEntry),
	}
}

func (m *SessionManager) Start(ctx context.Context) (*domain.Session, error) {
	id := uuid.NewString()
	if m.store != nil {
		if err := m.store.EnsureSession(ctx, id); err != nil {
			return nil, fmt.Errorf("ensure session: %w", err)
		}
	}

	now := m.now().UTC()
	m.mu.Lock()
	m.sessions[id] = &sessionEntry{engine: m.newEngine(), lastSeen: now}
	m.mu.Unlock()

	return &domain.Session{ID: id, Greeting: m.cfg.Greeting, CreatedAt: now}, nil
}

func (m *SessionManager) Send(ctx context.Context, sessionID, message string) (*domain.DisplayPayload, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send", errors.New("message is required"))
	}
	engine, err := m.touch(sessionID)
	if err != nil {
		return nil, err
	}

	turn := m.recordMessage(ctx, sessionID, domain.RoleUser, message, 0)

	result, err := engine.Answer(ctx, message)
	if err != nil {
		return nil, err
	}
	payload := m.formatter.Format(result)

	m.recordMessage(ctx, sessionID, domain.RoleAssistant, result.Answer, turn)
	return &payload, nil
}

func (m *SessionManager) End(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return domain.WrapError(domain.ErrNotFound, "end session", fmt.Errorf("id=%s", sessionID))
	}
	delete(m.sessions, sessionID)
	return nil
}

// EvictIdle drops sessions idle for longer than the configured TTL.
func (m *SessionManager) EvictIdle() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-m.cfg.IdleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, entry := range m.sessions {
		if entry.lastSeen.Before(cutoff) {
			delete(m.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor evicts idle sessions until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if m.cfg.IdleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.EvictIdle(); n > 0 {
				slog.Info("sessions_evicted", "count", n)
			}
		}
	}
}

func (m *SessionManager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) touch(sessionID string) (ports.QueryService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "session", fmt.Errorf("id=%s", sessionID))
	}
	entry.lastSeen = m.now().UTC()
	return entry.engine, nil
}

// recordMessage persists best-effort; history failures never fail the answer.
func (m *SessionManager) recordMessage(ctx context.Context, sessionID string, role domain.MessageRole, content string, turn int) int {
	if m.store == nil {
		return turn
	}
	if turn == 0 {
		next, err := m.store.NextTurn(ctx, sessionID)
		if err != nil {
			slog.WarnContext(ctx, "session_history_error", "session_id", sessionID, "op", "next_turn", "error", err)
			return 0
		}
		turn = next
	}
	err := m.store.AppendMessage(ctx, domain.ConversationMessage{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Turn:      turn,
		CreatedAt: m.now().UTC(),
	})
	if err != nil {
		slog.WarnContext(ctx, "session_history_error", "session_id", sessionID, "op", "append_message", "error", err)
	}
	return turn
}
