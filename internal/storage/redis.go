package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yndnr/sessiond/internal/core/domain"
	"github.com/yndnr/sessiond/internal/core/service"
)

// scanBatch is the COUNT hint for SCAN during unindexed finds.
const scanBatch = 200

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Prefix string

	// TTL expires stored records. Zero keeps them until removed.
	TTL time.Duration
}

// RedisStore is a service.SessionStorage backed by redis. Each session is a
// string key; a set per (context, user) indexes session IDs for Find.
type RedisStore struct {
	client redis.UniversalClient
	codec  *Codec
	cfg    RedisConfig
	logger *slog.Logger
}

var _ service.SessionStorage = (*RedisStore)(nil)

// NewRedisStore wraps client. The store owns the client and closes it on
// Close.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig, codec *Codec, logger *slog.Logger) *RedisStore {
	if codec == nil {
		codec = NewCodec(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, codec: codec, cfg: cfg, logger: logger}
}

// DialOptions locates a redis server.
type DialOptions struct {
	Addr     string
	Password string
	DB       int

	// TLS enables TLS when non-nil.
	TLS *tls.Config
}

// DialRedis connects and verifies the connection with PING.
func DialRedis(ctx context.Context, opts DialOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:      opts.Addr,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLS,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, storageErr("redis ping", err)
	}
	return client, nil
}

func (s *RedisStore) key(id string) string {
	return s.cfg.Prefix + "session:" + id
}

func (s *RedisStore) userKey(userID, contextID int) string {
	return s.cfg.Prefix + "user:" + strconv.Itoa(contextID) + ":" + strconv.Itoa(userID)
}

// Persist stores the session and indexes it under its user.
func (s *RedisStore) Persist(ctx context.Context, session *domain.Session) error {
	data, err := s.codec.Encode(session)
	if err != nil {
		return err
	}
	userKey := s.userKey(session.UserID, session.ContextID)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(session.ID), data, s.cfg.TTL)
		pipe.SAdd(ctx, userKey, session.ID)
		if s.cfg.TTL > 0 {
			pipe.Expire(ctx, userKey, s.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return storageErr("redis persist", err)
	}
	return nil
}

// Remove deletes the session and its index entry.
func (s *RedisStore) Remove(ctx context.Context, id string) error {
	session, err := s.Lookup(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		if domain.IsDomainError(err, domain.ErrStorageError.Code) {
			return err
		}
		// Undecodable record: drop it without touching the index.
		s.logger.Warn("removing undecodable session record", "session_id", id, "error", err)
		if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
			return storageErr("redis remove", err)
		}
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(id))
		pipe.SRem(ctx, s.userKey(session.UserID, session.ContextID), id)
		return nil
	})
	if err != nil {
		return storageErr("redis remove", err)
	}
	return nil
}

// Lookup loads a session by ID.
func (s *RedisStore) Lookup(ctx context.Context, id string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, storageErr("redis lookup", err)
	}
	return s.codec.Decode(id, data)
}

// Find returns stored sessions matching filter. Filters naming both a user
// and a context read the user index; anything else scans all records.
func (s *RedisStore) Find(ctx context.Context, filter *service.SessionFilter) ([]*domain.Session, error) {
	if filter != nil && filter.UserID != 0 && filter.ContextID != 0 {
		userKey := s.userKey(filter.UserID, filter.ContextID)
		ids, err := s.client.SMembers(ctx, userKey).Result()
		if err != nil {
			return nil, storageErr("redis find", err)
		}
		sessions, stale, err := s.getMany(ctx, ids, filter)
		if err != nil {
			return nil, err
		}
		if len(stale) > 0 {
			if err := s.client.SRem(ctx, userKey, stale...).Err(); err != nil {
				s.logger.Warn("failed to prune user index", "key", userKey, "error", err)
			}
		}
		return sessions, nil
	}

	var out []*domain.Session
	prefix := s.key("")
	iter := s.client.Scan(ctx, 0, prefix+"*", scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		sessions, _, err := s.getMany(ctx, batch, filter)
		if err != nil {
			return err
		}
		out = append(out, sessions...)
		batch = batch[:0]
		return nil
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val()[len(prefix):])
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("redis scan", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// getMany fetches ids in one pipeline. IDs whose record is gone are returned
// as stale.
func (s *RedisStore) getMany(ctx context.Context, ids []string, filter *service.SessionFilter) ([]*domain.Session, []any, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, nil, storageErr("redis get", err)
	}

	var (
		sessions []*domain.Session
		stale    []any
	)
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, ids[i])
			continue
		}
		if err != nil {
			return nil, nil, storageErr("redis get", err)
		}
		session, err := s.codec.Decode(ids[i], data)
		if err != nil {
			s.logger.Warn("skipping undecodable session record", "session_id", ids[i], "error", err)
			continue
		}
		if filter.Matches(session) {
			sessions = append(sessions, session)
		}
	}
	return sessions, stale, nil
}

// Close closes the redis client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return storageErr("redis close", err)
	}
	return nil
}
