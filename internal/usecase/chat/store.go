package chat

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"health-assistant/internal/domain"
)

const conversationKeyPrefix = "chat:conversation:"

// Store выдаёт диалоги по ключу и сохраняет их снимки в кэш.
// Диалог, не использованный дольше ttl, вытесняется из памяти; генерирующийся ответ не вытесняется.
type Store struct {
	mu        sync.Mutex
	convs     map[string]*storeEntry
	cache     domain.Cache
	ttl       time.Duration
	log       zerolog.Logger
	now       func() time.Time
	lastSweep time.Time
}

type storeEntry struct {
	conv     *Conversation
	lastUsed time.Time
}

// NewStore создаёт реестр диалогов. cache может быть nil, ttl <= 0 хранит диалоги без срока.
func NewStore(cache domain.Cache, ttl time.Duration, logger zerolog.Logger) *Store {
	return &Store{convs: make(map[string]*storeEntry), cache: cache, ttl: ttl, log: logger, now: time.Now}
}

// Get возвращает диалог по ключу, восстанавливая его из кэша при необходимости.
func (s *Store) Get(key string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	if e, ok := s.convs[key]; ok && !s.expired(e, now) {
		e.lastUsed = now
		return e.conv
	}
	conv := s.load(key)
	s.convs[key] = &storeEntry{conv: conv, lastUsed: now}
	return conv
}

func (s *Store) expired(e *storeEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastUsed) >= s.ttl && !e.conv.Loading()
}

// sweep проходит по всем диалогам не чаще раза в ttl.
func (s *Store) sweep(now time.Time) {
	if s.ttl <= 0 || now.Sub(s.lastSweep) < s.ttl {
		return
	}
	s.lastSweep = now
	for key, e := range s.convs {
		if s.expired(e, now) {
			delete(s.convs, key)
		}
	}
}

// Save сохраняет снимок диалога.
func (s *Store) Save(key string, conv *Conversation) {
	s.mu.Lock()
	if e, ok := s.convs[key]; ok && e.conv == conv {
		e.lastUsed = s.now()
	}
	s.mu.Unlock()
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(conv.Messages())
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("chat: сериализация диалога")
		return
	}
	if err := s.cache.Set(conversationKeyPrefix+key, payload, s.ttl); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("chat: не удалось сохранить диалог")
	}
}

// Reset начинает диалог заново.
func (s *Store) Reset(key string) *Conversation {
	conv := NewConversation()
	s.mu.Lock()
	s.convs[key] = &storeEntry{conv: conv, lastUsed: s.now()}
	s.mu.Unlock()
	s.Save(key, conv)
	return conv
}

func (s *Store) load(key string) *Conversation {
	if s.cache == nil {
		return NewConversation()
	}
	raw, err := s.cache.Get(conversationKeyPrefix + key)
	if err != nil {
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("key", key).Msg("chat: чтение диалога из кэша")
		}
		return NewConversation()
	}
	var messages []domain.ChatMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("chat: повреждённый снимок диалога")
		return NewConversation()
	}
	return RestoreConversation(messages)
}
