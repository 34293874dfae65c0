package cache

import (
	"context"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

// incrementIfPresent and verifyIfPresent keep HINCRBY/HSET from resurrecting a key that expired or was deleted.
var incrementIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

var verifyIfPresent = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'verified', '1')
return 1
`)

var takeIfHash = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'hash') ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// RedisOtpStore keeps each session as a hash. The key outlives ExpiresAt by grace so
// an expired session is still observed, and purged, by the verifier.
type RedisOtpStore struct {
	client *redis.Client
	grace  time.Duration
}

func NewRedisOtpStore(addr string, password string, db int) *RedisOtpStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisOtpStoreWithClient(client)
}

func NewRedisOtpStoreWithClient(client *redis.Client) *RedisOtpStore {
	return &RedisOtpStore{client: client, grace: time.Minute}
}

func (c *RedisOtpStore) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisOtpStore) Close() error {
	return c.client.Close()
}

func (c *RedisOtpStore) Put(ctx context.Context, session domain.OtpSession) error {
	key := otpKey(session.PhoneNumber, session.Purpose)
	ttl := time.Until(session.ExpiresAt) + c.grace
	if ttl <= 0 {
		ttl = c.grace
	}
	verified := "0"
	if session.IsVerified {
		verified = "1"
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"hash", session.OtpHash,
			"expires_at", strconv.FormatInt(session.ExpiresAt.UnixMilli(), 10),
			"created_at", strconv.FormatInt(session.CreatedAt.UnixMilli(), 10),
			"attempts", strconv.Itoa(session.Attempts),
			"verified", verified,
		)
		pipe.PExpire(ctx, key, ttl)
		return nil
	})
	return unavailable(err)
}

func (c *RedisOtpStore) Get(ctx context.Context, phone string, purpose domain.OtpPurpose) (*domain.OtpSession, bool, error) {
	fields, err := c.client.HGetAll(ctx, otpKey(phone, purpose)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	expiresAt, _ := strconv.ParseInt(fields["expires_at"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	attempts, _ := strconv.Atoi(fields["attempts"])
	return &domain.OtpSession{
		PhoneNumber: phone,
		Purpose:     purpose,
		OtpHash:     fields["hash"],
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
		CreatedAt:   time.UnixMilli(createdAt).UTC(),
		Attempts:    attempts,
		IsVerified:  fields["verified"] == "1",
	}, true, nil
}

func (c *RedisOtpStore) IncrementAttempts(ctx context.Context, phone string, purpose domain.OtpPurpose) (int, error) {
	n, err := incrementIfPresent.Run(ctx, c.client, []string{otpKey(phone, purpose)}).Int()
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 0 {
		return 0, apperr.ErrOtpNotFound
	}
	return n, nil
}

func (c *RedisOtpStore) MarkVerified(ctx context.Context, phone string, purpose domain.OtpPurpose) error {
	n, err := verifyIfPresent.Run(ctx, c.client, []string{otpKey(phone, purpose)}).Int()
	if err != nil {
		return unavailable(err)
	}
	if n < 0 {
		return apperr.ErrOtpNotFound
	}
	return nil
}

func (c *RedisOtpStore) Take(ctx context.Context, phone string, purpose domain.OtpPurpose, otpHash string) (bool, error) {
	n, err := takeIfHash.Run(ctx, c.client, []string{otpKey(phone, purpose)}, otpHash).Int()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (c *RedisOtpStore) Delete(ctx context.Context, phone string, purpose domain.OtpPurpose) error {
	return unavailable(c.client.Del(ctx, otpKey(phone, purpose)).Err())
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Transient(err)
}
