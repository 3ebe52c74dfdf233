package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// RevocationList records credentials that must no longer be accepted even though
// their signature and expiry are still valid (logout, deleted accounts).
type RevocationList interface {
	Revoke(ctx context.Context, token, subject string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// defaultRevocationTTL bounds entries for tokens that carry no exp claim.
const defaultRevocationTTL = 30 * 24 * time.Hour

// RedisRevocationList stores token fingerprints, never raw tokens. Entries expire
// together with the token they revoke.
type RedisRevocationList struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

func NewRedisRevocationList(rdb redis.Cmdable, prefix string) *RedisRevocationList {
	if prefix == "" {
		prefix = "revoked"
	}
	return &RedisRevocationList{rdb: rdb, prefix: prefix, now: time.Now}
}

func (l *RedisRevocationList) Revoke(ctx context.Context, token, subject string, expiresAt time.Time) error {
	ttl := defaultRevocationTTL
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(l.now())
		if ttl <= 0 {
			// already unusable; nothing to remember
			return nil
		}
	}
	return l.rdb.Set(ctx, l.key(token), subject, ttl).Err()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, token string) (bool, error) {
	err := l.rdb.Get(ctx, l.key(token)).Err()
	if err == nil {
		return true, nil
	}
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	return false, err
}

func (l *RedisRevocationList) key(token string) string {
	return l.prefix + ":" + Fingerprint(token)
}

// Fingerprint is the BLAKE2b-256 hex digest of a raw token.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
