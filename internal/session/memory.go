package session

import (
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docuchat/docuchat/internal/observability"
)

const (
	defaultMaxSessions = 1000
	defaultMaxMessages = 100
)

type memorySession struct {
	mu        sync.Mutex
	id        string
	createdAt string
	updatedAt string
	messages  []Message
	index     map[string]int // message id -> position in messages
}

// MemoryStore keeps sessions in an LRU cache. The least recently used
// session is evicted wholesale once the cache is full; within a session
// the oldest messages are dropped past the per-session cap.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    *lru.Cache[string, *memorySession]
	maxMessages int
	logger      observability.Logger
}

// NewMemoryStore creates an in-memory store holding at most maxSessions
// sessions of maxMessages messages each.
func NewMemoryStore(maxSessions, maxMessages int, logger observability.Logger) (*MemoryStore, error) {
	if maxSessions <= 0 {
		maxSessions = defaultMaxSessions
	}
	if maxMessages <= 0 {
		maxMessages = defaultMaxMessages
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	store := &MemoryStore{maxMessages: maxMessages, logger: logger}
	cache, err := lru.NewWithEvict(maxSessions, func(id string, _ *memorySession) {
		logger.Debug("Session evicted", map[string]interface{}{
			"session_id": id,
		})
	})
	if err != nil {
		return nil, err
	}
	store.sessions = cache
	return store, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, sessionID string) error {
	s.getOrCreate(sessionID)
	return nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg Message) error {
	if msg.Timestamp == "" {
		msg.Timestamp = Now()
	}
	sess := s.getOrCreate(msg.SessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if pos, ok := sess.index[msg.MessageID]; ok {
		sess.messages[pos] = msg
	} else {
		sess.messages = append(sess.messages, msg)
		sess.index[msg.MessageID] = len(sess.messages) - 1
		if len(sess.messages) > s.maxMessages {
			dropped := sess.messages[0]
			sess.messages = sess.messages[1:]
			delete(sess.index, dropped.MessageID)
			for id, pos := range sess.index {
				sess.index[id] = pos - 1
			}
		}
	}
	sess.updatedAt = msg.Timestamp
	return nil
}

func (s *MemoryStore) GetMessages(_ context.Context, sessionID string) ([]Message, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return []Message{}, nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

func (s *MemoryStore) GetHistory(ctx context.Context, sessionID string) ([]Message, error) {
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := make([]Message, 0, len(messages))
	for _, msg := range messages {
		history = append(history, Message{Role: msg.Role, Content: msg.Content})
	}
	return history, nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) (bool, error) {
	return s.sessions.Remove(sessionID), nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]Info, error) {
	keys := s.sessions.Keys()
	infos := make([]Info, 0, len(keys))
	for _, key := range keys {
		sess, ok := s.sessions.Peek(key)
		if !ok {
			continue
		}
		sess.mu.Lock()
		info := Info{
			SessionID:    sess.id,
			CreatedAt:    sess.createdAt,
			UpdatedAt:    sess.updatedAt,
			MessageCount: len(sess.messages),
		}
		for _, msg := range sess.messages {
			if msg.Role == "user" {
				info.FirstMessage = msg.Content
				break
			}
		}
		sess.mu.Unlock()
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].UpdatedAt > infos[j].UpdatedAt
	})
	return infos, nil
}

func (s *MemoryStore) getOrCreate(sessionID string) *memorySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions.Get(sessionID); ok {
		return sess
	}
	now := Now()
	sess := &memorySession{
		id:        sessionID,
		createdAt: now,
		updatedAt: now,
		index:     make(map[string]int),
	}
	s.sessions.Add(sessionID, sess)
	return sess
}
