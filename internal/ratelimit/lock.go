package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	generationKeyFormat = "schoolpay:lock:invoicegen:%d:%d"
	generationLockTTL   = 10 * time.Minute
)

// KEYS[1] is the generation key, ARGV[1] the run token stored by Acquire.
const releaseGenerationScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var (
	ErrGenerationInProgress = errors.New("invoice_generation_in_progress")
	ErrInvalidGenerationKey = errors.New("invoice_generation_key_invalid")
)

// GenerationLocks keeps one redis key per (school, term) while an invoice
// generation run is in progress. The key expires on its own if the run dies.
type GenerationLocks struct {
	client  *redis.Client
	release *redis.Script
	ttl     time.Duration
}

// Lease is a held generation lock. Only the run that acquired it can release
// it.
type Lease struct {
	SchoolID snowflake.ID
	TermID   snowflake.ID

	key   string
	token string
}

func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

func NewGenerationLocks(client *redis.Client) *GenerationLocks {
	if client == nil {
		return nil
	}
	return &GenerationLocks{
		client:  client,
		release: redis.NewScript(releaseGenerationScript),
		ttl:     generationLockTTL,
	}
}

func generationKey(schoolID, termID snowflake.ID) string {
	return fmt.Sprintf(generationKeyFormat, schoolID.Int64(), termID.Int64())
}

// Acquire returns ErrGenerationInProgress while another run holds the lease
// for the same school and term.
func (g *GenerationLocks) Acquire(ctx context.Context, schoolID, termID snowflake.ID) (*Lease, error) {
	if g == nil || g.client == nil {
		return nil, ErrNotConfigured
	}
	if schoolID == 0 || termID == 0 {
		return nil, ErrInvalidGenerationKey
	}

	lease := &Lease{
		SchoolID: schoolID,
		TermID:   termID,
		key:      generationKey(schoolID, termID),
		token:    uuid.NewString(),
	}
	ok, err := g.client.SetNX(ctx, lease.key, lease.token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGenerationInProgress
	}
	return lease, nil
}

// Release is a no-op once the lease has expired or moved to another run.
func (g *GenerationLocks) Release(ctx context.Context, lease *Lease) error {
	if g == nil || g.client == nil || lease == nil || lease.token == "" {
		return nil
	}
	return g.release.Run(ctx, g.client, []string{lease.key}, lease.token).Err()
}
