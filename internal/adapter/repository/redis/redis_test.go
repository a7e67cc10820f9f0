package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

type serverError string

func (e serverError) Error() string { return string(e) }

func (serverError) RedisError() {}

func TestClassify(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want error
	}{
		{"loading", serverError("LOADING Redis is loading the dataset in memory"), entity.ErrUnavailable},
		{"busy script", serverError("BUSY Redis is busy running a script"), entity.ErrUnavailable},
		{"read only replica", serverError("READONLY You can't write against a read only replica."), entity.ErrUnavailable},
		{"out of memory", serverError("OOM command not allowed when used memory > 'maxmemory'."), entity.ErrThrottled},
		{"pool timeout", errors.New("redis: connection pool timeout"), entity.ErrThrottled},
		{"closed client", redis.ErrClosed, entity.ErrUnavailable},
		{"connection reset", io.EOF, entity.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, entity.ErrUnavailable},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, entity.ErrUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(tc.err)

			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	t.Run("wrong type is not transient", func(t *testing.T) {
		err := classify(serverError("WRONGTYPE Operation against a key holding the wrong kind of value"))

		assert.False(t, entity.IsTransient(err))
	})
}

func TestLinkHash_ToEntity(t *testing.T) {
	createdAt := time.Date(2025, 8, 24, 10, 30, 0, 0, time.UTC)

	t.Run("without expiry", func(t *testing.T) {
		h := linkHash{
			OriginalURL: "https://example.com",
			CreatedAt:   createdAt.UnixMilli(),
			ClickCount:  3,
		}

		link := h.toEntity("abc123")

		assert.Equal(t, "abc123", link.ShortCode)
		assert.Equal(t, "https://example.com", link.OriginalURL)
		assert.True(t, link.CreatedAt.Equal(createdAt))
		assert.Equal(t, uint64(3), link.ClickCount)
		assert.Nil(t, link.ExpiresAt)
		assert.False(t, link.CustomCode)
	})

	t.Run("with expiry", func(t *testing.T) {
		expiresAt := createdAt.Add(time.Hour)
		h := linkHash{
			OriginalURL: "https://example.com",
			CreatedAt:   createdAt.UnixMilli(),
			ExpiresAt:   expiresAt.UnixMilli(),
			CustomCode:  true,
		}

		link := h.toEntity("foo")

		if assert.NotNil(t, link.ExpiresAt) {
			assert.True(t, link.ExpiresAt.Equal(expiresAt))
		}
		assert.True(t, link.CustomCode)
	})
}

func TestLinkRepository_Keys(t *testing.T) {
	repo := NewLinkRepository(nil, WithKeyPrefix("test:"))

	assert.Equal(t, "test:link:abc123", repo.linkKey("abc123"))

	idx := repo.indexKey("https://example.com")
	assert.True(t, strings.HasPrefix(idx, "test:url:"))
	assert.Len(t, strings.TrimPrefix(idx, "test:url:"), 64)
	assert.Equal(t, idx, repo.indexKey("https://example.com"))
	assert.NotEqual(t, idx, repo.indexKey("https://example.org"))
}
