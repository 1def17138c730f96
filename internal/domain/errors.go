package domain

import "errors"

var (
	// ErrRateLimited провайдер ответил 429.
	ErrRateLimited = errors.New("chat: rate limit exceeded")
	// ErrUsageLimit провайдер ответил 402, исчерпан лимит использования.
	ErrUsageLimit = errors.New("chat: usage limit reached")
	// ErrInvalidMessages история диалога пуста или содержит недопустимые роли.
	ErrInvalidMessages = errors.New("chat: invalid messages")
	// ErrCacheMiss ключ отсутствует в кэше.
	ErrCacheMiss = errors.New("cache: miss")
)
