package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// PresenceStore keeps the ephemeral per-session index in Redis so that every
// server process sees the same membership:
//
//	SADD/SREM/SISMEMBER/SCARD {joinCode}:users  — connected participant emails
//	SET/GET                   {joinCode}:owner_conn — the owner's connection handle
//
// Each operation is a single Redis command, so concurrent handlers across
// processes never read-modify-write shared state. Redis is an index only; the
// durable store stays the source of truth for anything that survives a restart.
type PresenceStore struct {
	client *redis.Client
}

func NewPresenceStore(client *redis.Client) *PresenceStore {
	return &PresenceStore{client: client}
}

func (p *PresenceStore) Join(ctx context.Context, joinCode, email string) error {
	return p.client.SAdd(ctx, usersKey(joinCode), email).Err()
}

func (p *PresenceStore) Leave(ctx context.Context, joinCode, email string) error {
	return p.client.SRem(ctx, usersKey(joinCode), email).Err()
}

func (p *PresenceStore) IsPresent(ctx context.Context, joinCode, email string) (bool, error) {
	return p.client.SIsMember(ctx, usersKey(joinCode), email).Result()
}

func (p *PresenceStore) Count(ctx context.Context, joinCode string) (int64, error) {
	return p.client.SCard(ctx, usersKey(joinCode)).Result()
}

func (p *PresenceStore) SetOwnerConn(ctx context.Context, joinCode, connID string) error {
	return p.client.Set(ctx, ownerKey(joinCode), connID, 0).Err()
}

func (p *PresenceStore) OwnerConn(ctx context.Context, joinCode string) (string, error) {
	conn, err := p.client.Get(ctx, ownerKey(joinCode)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return conn, err
}

// Clear drops the whole index for a session, called when its room closes.
func (p *PresenceStore) Clear(ctx context.Context, joinCode string) error {
	return p.client.Del(ctx, usersKey(joinCode), ownerKey(joinCode)).Err()
}

func usersKey(joinCode string) string { return joinCode + ":users" }

func ownerKey(joinCode string) string { return joinCode + ":owner_conn" }
