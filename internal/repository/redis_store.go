package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cloud-wave-best-zizon/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "cart:"

type RedisStore struct {
	client  *redis.Client
	baseTTL time.Duration
	logger  *zap.Logger
}

func NewRedisStore(client *redis.Client, baseTTL time.Duration, logger *zap.Logger) *RedisStore {
	return &RedisStore{
		client:  client,
		baseTTL: baseTTL,
		logger:  logger,
	}
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) *domain.Cart {
	rec, err := s.read(ctx, sessionID)
	if err != nil {
		s.logger.Warn("Failed to read cart, starting empty",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return domain.NewCart(sessionID, "")
	}

	cart, err := decodeCart(sessionID, rec)
	if err != nil {
		s.logger.Warn("Discarding malformed cart",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return domain.NewCart(sessionID, "")
	}
	return cart
}

func (s *RedisStore) read(ctx context.Context, sessionID string) (*cartRecord, error) {
	var (
		items    *redis.StringCmd
		coupon   *redis.StringCmd
		fields   *redis.MapStringStringCmd
		currency *redis.StringCmd
	)
	// one MULTI so the four keys are read from the same write
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.Get(ctx, itemsKey(sessionID))
		coupon = pipe.Get(ctx, couponKey(sessionID))
		fields = pipe.HGetAll(ctx, fieldsKey(sessionID))
		currency = pipe.Get(ctx, currencyKey(sessionID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis read failed: %w", err)
	}

	rec := &cartRecord{Fields: map[string]domain.CustomerField{}}

	if raw, err := items.Bytes(); err == nil {
		rec.Items = raw
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	if raw, err := coupon.Bytes(); err == nil {
		var c domain.Coupon
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: coupon: %v", ErrMalformedState, err)
		}
		rec.Coupon = &c
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	if err := fields.Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for productID, raw := range fields.Val() {
		var f domain.CustomerField
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrMalformedState, productID, err)
		}
		rec.Fields[productID] = f
	}

	if code, err := currency.Result(); err == nil {
		rec.Currency = domain.Currency(code)
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	return rec, nil
}

// Save replaces every key of the session inside one MULTI/EXEC.
func (s *RedisStore) Save(ctx context.Context, sessionID string, cart *domain.Cart) error {
	rec, err := encodeCart(cart)
	if err != nil {
		return err
	}

	fieldValues := make(map[string]interface{}, len(rec.Fields))
	for productID, f := range rec.Fields {
		raw, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshal field failed: %w", err)
		}
		fieldValues[productID] = string(raw)
	}

	var couponRaw []byte
	if rec.Coupon != nil {
		if couponRaw, err = json.Marshal(rec.Coupon); err != nil {
			return fmt.Errorf("marshal coupon failed: %w", err)
		}
	}

	ttl := s.ttl()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, itemsKey(sessionID), rec.Items, ttl)
		pipe.Set(ctx, currencyKey(sessionID), string(rec.Currency), ttl)

		if couponRaw != nil {
			pipe.Set(ctx, couponKey(sessionID), couponRaw, ttl)
		} else {
			pipe.Del(ctx, couponKey(sessionID))
		}

		pipe.Del(ctx, fieldsKey(sessionID))
		if len(fieldValues) > 0 {
			pipe.HSet(ctx, fieldsKey(sessionID), fieldValues)
			pipe.Expire(ctx, fieldsKey(sessionID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	err := s.client.Del(ctx,
		itemsKey(sessionID),
		couponKey(sessionID),
		fieldsKey(sessionID),
		currencyKey(sessionID),
	).Err()
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Sessions(ctx context.Context) ([]string, error) {
	var sessions []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*:items", 100).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimSuffix(strings.TrimPrefix(iter.Val(), keyPrefix), ":items")
		sessions = append(sessions, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}
	return sessions, nil
}

func (s *RedisStore) ttl() time.Duration {
	if s.baseTTL <= 0 {
		return 0
	}
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return s.baseTTL + jitter
}

func itemsKey(sessionID string) string {
	return fmt.Sprintf("%s%s:items", keyPrefix, sessionID)
}

func couponKey(sessionID string) string {
	return fmt.Sprintf("%s%s:coupon", keyPrefix, sessionID)
}

func fieldsKey(sessionID string) string {
	return fmt.Sprintf("%s%s:fields", keyPrefix, sessionID)
}

func currencyKey(sessionID string) string {
	return fmt.Sprintf("%s%s:currency", keyPrefix, sessionID)
}
