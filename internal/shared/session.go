package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// TokenManager issues and resolves opaque bearer tokens backed by Redis.
// Tokens carry the employee identity the handlers need for audit
// attribution.
type TokenManager struct {
	client *redis.Client
	ttl    time.Duration
	secret []byte
}

type tokenPayload struct {
	ActorID   int64  `json:"actor_id"`
	ActorName string `json:"actor_name"`
	Role      string `json:"role"`
}

// ErrTokenNotFound indicates an unknown or expired token.
var ErrTokenNotFound = errors.New("session token not found")

// NewTokenManager constructs a TokenManager.
func NewTokenManager(client *redis.Client, secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{client: client, ttl: ttl, secret: []byte(secret)}
}

// Issue stores a new token for the actor and returns it.
func (tm *TokenManager) Issue(ctx context.Context, actor Actor) (string, error) {
	token := tm.generateToken()
	payload, err := json.Marshal(tokenPayload{ActorID: actor.ID, ActorName: actor.Name, Role: actor.Role})
	if err != nil {
		return "", err
	}
	if err := tm.client.Set(ctx, tm.redisKey(token), payload, tm.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve looks up the actor behind a token and refreshes its TTL.
func (tm *TokenManager) Resolve(ctx context.Context, token string) (Actor, error) {
	if token == "" {
		return Actor{}, ErrTokenNotFound
	}
	data, err := tm.client.Get(ctx, tm.redisKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Actor{}, ErrTokenNotFound
		}
		return Actor{}, err
	}
	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Actor{}, err
	}
	_ = tm.client.Expire(ctx, tm.redisKey(token), tm.ttl).Err()
	return Actor{ID: payload.ActorID, Name: payload.ActorName, Role: payload.Role}, nil
}

// Revoke deletes a token, ending the session.
func (tm *TokenManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := tm.client.Del(ctx, tm.redisKey(token)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

// TTL exposes the configured token lifetime.
func (tm *TokenManager) TTL() time.Duration {
	return tm.ttl
}

func (tm *TokenManager) redisKey(token string) string {
	return "session:" + token
}

func (tm *TokenManager) generateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return base64.RawURLEncoding.EncodeToString([]byte(time.Now().Format(time.RFC3339Nano)))
	}
	if len(tm.secret) > 0 {
		for i := range b {
			b[i] ^= tm.secret[i%len(tm.secret)]
		}
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
