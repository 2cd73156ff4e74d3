// Package idempotency records which replayable inputs have already been
// handled. Entries live in a shared store (postgres or redis) so every
// instance of the service sees the same history.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Kind string

const (
	// KindInitReplay caches the gateway session handed out for a pay page
	// so a double-click returns the same checkout instead of a second one.
	KindInitReplay Kind = "init_replay"
	// KindWebhookDedup marks gateway event ids that were already applied.
	KindWebhookDedup Kind = "webhook_dedup"
)

const DefaultTTL = 600 * time.Second

var (
	ErrInvalidKind = errors.New("invalid_idempotency_kind")
	ErrInvalidKey  = errors.New("invalid_idempotency_key")
)

func (k Kind) Valid() bool {
	switch k {
	case KindInitReplay, KindWebhookDedup:
		return true
	default:
		return false
	}
}

type Store interface {
	// MarkSeen atomically records key. duplicate is true when key was
	// already present and not yet expired.
	MarkSeen(ctx context.Context, kind Kind, key string) (duplicate bool, err error)
	// Remember stores payload under key, replacing any earlier value.
	Remember(ctx context.Context, kind Kind, key string, payload []byte) error
	// Recall returns the payload stored under key if it has not expired.
	Recall(ctx context.Context, kind Kind, key string) ([]byte, bool, error)
	// Forget removes key so a failed attempt can be replayed.
	Forget(ctx context.Context, kind Kind, key string) error
}

func validate(kind Kind, key string) (string, error) {
	if !kind.Valid() {
		return "", ErrInvalidKind
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", ErrInvalidKey
	}
	return key, nil
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
