package redis

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zlnvch/collabdocs/models"
	"github.com/zlnvch/collabdocs/store"
)

// RedisCache serves pub/sub between server processes and keeps
// password-reset tokens under key TTLs.
type RedisCache struct {
	client redis.UniversalClient
	logger *zap.Logger
}

func NewRedisCache(ctx context.Context, devMode bool, redisEndpoint string, logger *zap.Logger) (*RedisCache, error) {
	var client redis.UniversalClient
	if devMode {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr: redisEndpoint,
			// AWS elasticache endpoints require TLS
			TLSConfig: &tls.Config{},
		})
	}

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}

	return NewRedisCacheWithClient(client, logger), nil
}

func NewRedisCacheWithClient(client redis.UniversalClient, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, logger: logger}
}

func (redisCache *RedisCache) Ping(ctx context.Context) error {
	return redisCache.client.Ping(ctx).Err()
}

func (redisCache *RedisCache) Close() error {
	return redisCache.client.Close()
}

func (redisCache *RedisCache) Publish(ctx context.Context, channel string, message []byte) error {
	if err := redisCache.client.Publish(ctx, channel, message).Err(); err != nil {
		return err
	}
	return nil
}

// Subscribe returns once the subscription is established. handler runs on
// a dedicated goroutine until ctx is cancelled.
func (redisCache *RedisCache) Subscribe(ctx context.Context, channel string, handler func(message []byte)) error {
	pubsub := redisCache.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					redisCache.logger.Warn("pubsub channel closed", zap.String("channel", channel))
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func buildResetKey(token string) string {
	return "reset:{" + token + "}"
}

func buildResetEmailKey(email string) string {
	return "reset-email:{" + strings.ToLower(email) + "}"
}

func (redisCache *RedisCache) CreateResetToken(ctx context.Context, token models.ResetToken) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return errors.New("reset token already expired")
	}

	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	emailKey := buildResetEmailKey(token.Email)

	pipe := redisCache.client.TxPipeline()
	pipe.Set(ctx, buildResetKey(token.Token), data, ttl)
	pipe.SAdd(ctx, emailKey, token.Token)
	pipe.Expire(ctx, emailKey, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// FindValidResetToken returns store.ErrItemNotFound for unknown, used and
// expired tokens alike.
func (redisCache *RedisCache) FindValidResetToken(ctx context.Context, token string, now time.Time) (models.ResetToken, error) {
	data, err := redisCache.client.Get(ctx, buildResetKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.ResetToken{}, store.ErrItemNotFound
		}
		return models.ResetToken{}, err
	}

	var resetToken models.ResetToken
	if err := json.Unmarshal(data, &resetToken); err != nil {
		return models.ResetToken{}, fmt.Errorf("failed to decode reset token: %w", err)
	}

	if resetToken.Used || !now.Before(resetToken.ExpiresAt) {
		return models.ResetToken{}, store.ErrItemNotFound
	}

	return resetToken, nil
}

// SaveResetToken overwrites an existing token and keeps its remaining TTL.
func (redisCache *RedisCache) SaveResetToken(ctx context.Context, token models.ResetToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}

	err = redisCache.client.SetArgs(ctx, buildResetKey(token.Token), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return store.ErrItemNotFound
	}
	return err
}

func (redisCache *RedisCache) DeleteResetToken(ctx context.Context, token string) error {
	key := buildResetKey(token)

	data, err := redisCache.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var resetToken models.ResetToken
	if err := json.Unmarshal(data, &resetToken); err != nil {
		return redisCache.client.Del(ctx, key).Err()
	}

	pipe := redisCache.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, buildResetEmailKey(resetToken.Email), token)
	_, err = pipe.Exec(ctx)
	return err
}

func (redisCache *RedisCache) DeleteResetTokens(ctx context.Context, email string) error {
	emailKey := buildResetEmailKey(email)

	tokens, err := redisCache.client.SMembers(ctx, emailKey).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, buildResetKey(token))
	}
	keys = append(keys, emailKey)

	return redisCache.client.Del(ctx, keys...).Err()
}
