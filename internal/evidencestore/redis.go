// Package evidencestore keeps evidence payloads in Redis, as an alternative to
// the postgres evidence_objects table.
package evidencestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/domain"
	coreerrors "github.com/KaijieWen/Feedback-Forensics-Lab/internal/core/errors"
)

// Connection settings.
const (
	poolSize     = 10
	minIdleConns = 2
	maxRetries   = 3
	dialTimeout  = 5 * time.Second
	ioTimeout    = 3 * time.Second
	pingTimeout  = 5 * time.Second

	keyPrefix = "ffl:"
)

// commander is the subset of *redis.Client the store uses.
type commander interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Redis is an evidence store backed by Redis strings. Keys never expire.
type Redis struct {
	client commander
	closer func() error
	logger *zerolog.Logger
}

// NewRedis connects to redisURL and checks the connection.
func NewRedis(ctx context.Context, redisURL string, logger *zerolog.Logger) (*Redis, error) {
	if logger == nil {
		nopLogger := zerolog.Nop()
		logger = &nopLogger
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	opts.PoolSize = poolSize
	opts.MinIdleConns = minIdleConns
	opts.MaxRetries = maxRetries
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = ioTimeout
	opts.WriteTimeout = ioTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("redis evidence store connected")

	return &Redis{client: client, closer: client.Close, logger: logger}, nil
}

func newWithCommander(c commander) *Redis {
	nopLogger := zerolog.Nop()

	return &Redis{client: c, closer: func() error { return nil }, logger: &nopLogger}
}

// PutEvidence stores the payload under key unless the key already exists.
func (r *Redis) PutEvidence(ctx context.Context, key string, evidence domain.Evidence) error {
	payload, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}

	created, err := r.client.SetNX(ctx, keyPrefix+key, payload, 0).Result()
	if err != nil {
		return fmt.Errorf("put evidence: %w", err)
	}

	if !created {
		r.logger.Debug().Str("key", key).Msg("evidence already stored")
	}

	return nil
}

// GetEvidence loads the payload stored under key.
func (r *Redis) GetEvidence(ctx context.Context, key string) (domain.Evidence, error) {
	payload, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Evidence{}, fmt.Errorf("%w: %s", coreerrors.ErrEvidenceNotFound, key)
		}

		return domain.Evidence{}, fmt.Errorf("get evidence: %w", err)
	}

	var evidence domain.Evidence
	if err := json.Unmarshal(payload, &evidence); err != nil {
		return domain.Evidence{}, fmt.Errorf("%w: %w", coreerrors.ErrEvidenceCorrupt, err)
	}

	return evidence, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error {
	return r.closer()
}
