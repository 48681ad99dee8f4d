package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type credential struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

func newTestRedis(t *testing.T, opts ...RedisOption) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedis(rdb, opts...), mr
}

func TestStorageBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) Storage{
		"in-memory": func(*testing.T) Storage { return NewInMemory() },
		"redis": func(t *testing.T) Storage {
			s, _ := newTestRedis(t)
			return s
		},
	}

	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("given absent key, then read reports not found", func(t *testing.T) {
				s := newStore(t)

				v, ok, err := s.Read(ctx, "missing")
				require.NoError(t, err)
				assert.False(t, ok)
				assert.Nil(t, v)
			})

			t.Run("given write, then read returns value", func(t *testing.T) {
				s := newStore(t)

				require.NoError(t, s.Write(ctx, "k", []byte("v1")))
				require.NoError(t, s.Write(ctx, "k", []byte("v2")))

				v, ok, err := s.Read(ctx, "k")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, []byte("v2"), v)
			})

			t.Run("given delete, then key is gone and double delete is fine", func(t *testing.T) {
				s := newStore(t)

				require.NoError(t, s.Write(ctx, "k", []byte("v")))
				require.NoError(t, s.Delete(ctx, "k"))
				require.NoError(t, s.Delete(ctx, "k"))

				_, ok, err := s.Read(ctx, "k")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("given clear, then every key is gone", func(t *testing.T) {
				s := newStore(t)

				require.NoError(t, s.Write(ctx, "a", []byte("1")))
				require.NoError(t, s.Write(ctx, "b", []byte("2")))
				require.NoError(t, s.Clear(ctx))

				for _, k := range []string{"a", "b"} {
					_, ok, err := s.Read(ctx, k)
					require.NoError(t, err)
					assert.False(t, ok, k)
				}
			})

			t.Run("given typed value, then json helpers round trip it", func(t *testing.T) {
				s := newStore(t)
				want := credential{ID: "device", Token: "secret"}

				require.NoError(t, WriteJSON(ctx, s, "cred", want))

				var got credential
				ok, err := ReadJSON(ctx, s, "cred", &got)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, want, got)
			})

			t.Run("given corrupt value, then read json fails with read kind", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Write(ctx, "cred", []byte("{not json")))

				var got credential
				ok, err := ReadJSON(ctx, s, "cred", &got)
				assert.False(t, ok)
				assert.True(t, IsKind(err, KindReadValueFailed))
			})
		})
	}
}

func TestInMemory_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemory()

	in := []byte("abc")
	require.NoError(t, s.Write(ctx, "k", in))
	in[0] = 'x'

	out, _, err := s.Read(ctx, "k")
	require.NoError(t, err)
	out[1] = 'y'

	again, _, err := s.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
	assert.Equal(t, 1, s.Len())
}

func TestRedis_PrefixAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t, WithRedisPrefix("app:"), WithRedisTTL(time.Minute))

	require.NoError(t, mr.Set("other:key", "untouched"))
	require.NoError(t, s.Write(ctx, "token", []byte("v")))

	assert.True(t, mr.Exists("app:token"))
	assert.Equal(t, time.Minute, mr.TTL("app:token"))

	require.NoError(t, s.Clear(ctx))
	assert.False(t, mr.Exists("app:token"))
	assert.True(t, mr.Exists("other:key"))
}

func TestRedis_ServerFailure(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedis(t)
	mr.Close()

	tests := []struct {
		name string
		op   func() error
		want ErrorKind
	}{
		{
			name: "given unreachable server, then write fails with write kind",
			op:   func() error { return s.Write(ctx, "k", []byte("v")) },
			want: KindWriteFailed,
		},
		{
			name: "given unreachable server, then read fails with read kind",
			op: func() error {
				_, _, err := s.Read(ctx, "k")
				return err
			},
			want: KindReadValueFailed,
		},
		{
			name: "given unreachable server, then delete fails with delete kind",
			op:   func() error { return s.Delete(ctx, "k") },
			want: KindDeleteFailed,
		},
		{
			name: "given unreachable server, then clear fails with clear kind",
			op:   func() error { return s.Clear(ctx) },
			want: KindClearFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.want))
			assert.True(t, errors.Is(err, &Error{Kind: tt.want}))
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewError(KindWriteFailed, cause)

	assert.Equal(t, "storage: write failed: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Source, "storage_test.go")
	assert.Equal(t, "storage: unknown", NewError(KindUnknown, nil).Error())
	assert.Equal(t, "ErrorKind(42)", ErrorKind(42).String())
}
