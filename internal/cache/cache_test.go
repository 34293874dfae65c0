package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopledger/backend/internal/apperr"
	"shopledger/backend/internal/domain"
)

func newRedisStore(t *testing.T) (*RedisOtpStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisOtpStoreWithClient(client), mr
}

func stores(t *testing.T) map[string]OtpStore {
	redisStore, _ := newRedisStore(t)
	return map[string]OtpStore{
		"memory": NewMemoryOtpStore(),
		"redis":  redisStore,
	}
}

func sampleSession(phone string) domain.OtpSession {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return domain.OtpSession{
		PhoneNumber: phone,
		Purpose:     domain.OtpPurposeLogin,
		OtpHash:     "hash-1",
		ExpiresAt:   now.Add(10 * time.Minute),
		CreatedAt:   now,
	}
}

func TestOtpStoreLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session := sampleSession("9990000001")
			require.NoError(t, s.Put(ctx, session))

			got, ok, err := s.Get(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "hash-1", got.OtpHash)
			assert.True(t, got.ExpiresAt.Equal(session.ExpiresAt))
			assert.Zero(t, got.Attempts)

			n, err := s.IncrementAttempts(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
			n, err = s.IncrementAttempts(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			require.NoError(t, s.MarkVerified(ctx, session.PhoneNumber, session.Purpose))
			got, _, err = s.Get(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.True(t, got.IsVerified)
			assert.Equal(t, 2, got.Attempts)

			// a fresh Put replaces the old session, attempts included
			require.NoError(t, s.Put(ctx, sampleSession(session.PhoneNumber)))
			got, _, err = s.Get(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.Zero(t, got.Attempts)
			assert.False(t, got.IsVerified)

			require.NoError(t, s.Delete(ctx, session.PhoneNumber, session.Purpose))
			_, ok, err = s.Get(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestOtpStorePurposesAreSeparate(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			login := sampleSession("9990000002")
			register := login
			register.Purpose = domain.OtpPurposeRegister
			register.OtpHash = "hash-2"
			require.NoError(t, s.Put(ctx, login))
			require.NoError(t, s.Put(ctx, register))

			got, ok, err := s.Get(ctx, login.PhoneNumber, domain.OtpPurposeRegister)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "hash-2", got.OtpHash)
		})
	}
}

func TestOtpStoreMissingSession(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.IncrementAttempts(ctx, "9990000003", domain.OtpPurposeLogin)
			assert.True(t, errors.Is(err, apperr.ErrOtpNotFound))
			err = s.MarkVerified(ctx, "9990000003", domain.OtpPurposeLogin)
			assert.True(t, errors.Is(err, apperr.ErrOtpNotFound))
		})
	}
}

func TestRedisOtpStoreKeyOutlivesExpiryByGrace(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	session := sampleSession("9990000004")
	require.NoError(t, s.Put(ctx, session))

	ttl := mr.TTL(otpKey(session.PhoneNumber, session.Purpose))
	assert.Greater(t, ttl, 10*time.Minute)
	assert.LessOrEqual(t, ttl, 11*time.Minute)

	mr.FastForward(12 * time.Minute)
	_, ok, err := s.Get(ctx, session.PhoneNumber, session.Purpose)
	require.NoError(t, err)
	assert.False(t, ok)

	// increment after expiry must not recreate a partial hash
	_, err = s.IncrementAttempts(ctx, session.PhoneNumber, session.Purpose)
	assert.True(t, errors.Is(err, apperr.ErrOtpNotFound))
	assert.False(t, mr.Exists(otpKey(session.PhoneNumber, session.Purpose)))
}

func TestRedisOtpStoreUnavailableIsTransient(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()

	err := s.Put(context.Background(), sampleSession("9990000005"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindTransient, apperr.KindOf(err))
}

func TestOtpStoreTakeSucceedsOnce(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			session := sampleSession("9990000004")
			require.NoError(t, s.Put(ctx, session))

			taken, err := s.Take(ctx, session.PhoneNumber, session.Purpose, "hash-other")
			require.NoError(t, err)
			assert.False(t, taken, "a replaced session is never taken")

			taken, err = s.Take(ctx, session.PhoneNumber, session.Purpose, session.OtpHash)
			require.NoError(t, err)
			assert.True(t, taken)

			taken, err = s.Take(ctx, session.PhoneNumber, session.Purpose, session.OtpHash)
			require.NoError(t, err)
			assert.False(t, taken)
			_, ok, err := s.Get(ctx, session.PhoneNumber, session.Purpose)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}
