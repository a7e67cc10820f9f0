// Package redis stores links as Redis hashes.
//
// Each link lives under <prefix>link:<code>. Links created for the same URL are indexed in the
// sorted set <prefix>url:<sha256(url)>, scored by creation time in milliseconds. Conditional
// creation and click increments run as Lua scripts, so each is a single atomic step on the server.
// Expiring links get a native TTL of expires_at plus a retention window, during which they are
// still reported as expired rather than missing. Scripts touch two keys and therefore require a
// single-node deployment or a cluster-aware key layout.
package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	defaultKeyPrefix = "shortlink:"
	defaultRetention = 7 * 24 * time.Hour

	indexPageSize = 16
)

// KEYS[1] link hash, KEYS[2] url index.
// ARGV: original_url, created_at ms, expires_at ms or "", custom_code, short code, delete_at ms or "".
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local fresh = redis.call('EXISTS', KEYS[2]) == 0
redis.call('HSET', KEYS[1],
	'original_url', ARGV[1],
	'created_at', ARGV[2],
	'click_count', 0,
	'custom_code', ARGV[4])
if ARGV[3] ~= '' then
	redis.call('HSET', KEYS[1], 'expires_at', ARGV[3])
	redis.call('PEXPIREAT', KEYS[1], ARGV[6])
end
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[5])
if ARGV[3] == '' then
	redis.call('PERSIST', KEYS[2])
elseif fresh then
	redis.call('PEXPIREAT', KEYS[2], ARGV[6])
else
	redis.call('PEXPIREAT', KEYS[2], ARGV[6], 'GT')
end
return 1
`)

// KEYS[1] link hash. Returns -1 when the link does not exist.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
return redis.call('HINCRBY', KEYS[1], 'click_count', 1)
`)

var (
	unavailablePrefixes = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY"}
	throttledPrefixes   = []string{"OOM"}
)

// classify maps client and server failures onto the transient store errors, keeping the cause in the chain.
func classify(err error) error {
	var rErr redis.Error
	if errors.As(err, &rErr) {
		msg := rErr.Error()
		for _, p := range unavailablePrefixes {
			if strings.HasPrefix(msg, p) {
				return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
			}
		}
		for _, p := range throttledPrefixes {
			if strings.HasPrefix(msg, p) {
				return fmt.Errorf("%w: %w", entity.ErrThrottled, err)
			}
		}
		return err
	}

	if strings.Contains(err.Error(), "connection pool timeout") {
		return fmt.Errorf("%w: %w", entity.ErrThrottled, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
	}

	return err
}

type linkHash struct {
	OriginalURL string `redis:"original_url"`
	CreatedAt   int64  `redis:"created_at"`
	ExpiresAt   int64  `redis:"expires_at"`
	ClickCount  uint64 `redis:"click_count"`
	CustomCode  bool   `redis:"custom_code"`
}

func (h *linkHash) toEntity(shortCode string) *entity.Link {
	link := &entity.Link{
		ShortCode:   shortCode,
		OriginalURL: h.OriginalURL,
		CreatedAt:   time.UnixMilli(h.CreatedAt).UTC(),
		ClickCount:  h.ClickCount,
		CustomCode:  h.CustomCode,
	}

	if h.ExpiresAt != 0 {
		expiresAt := time.UnixMilli(h.ExpiresAt).UTC()
		link.ExpiresAt = &expiresAt
	}

	return link
}

type LinkRepository struct {
	client    redis.UniversalClient
	keyPrefix string
	retention time.Duration
}

type Option func(*LinkRepository)

func WithKeyPrefix(prefix string) Option {
	return func(r *LinkRepository) {
		r.keyPrefix = prefix
	}
}

// WithRetention sets how long an expired link is kept before Redis deletes it.
func WithRetention(d time.Duration) Option {
	return func(r *LinkRepository) {
		if d >= 0 {
			r.retention = d
		}
	}
}

func NewLinkRepository(client redis.UniversalClient, opts ...Option) *LinkRepository {
	r := &LinkRepository{
		client:    client,
		keyPrefix: defaultKeyPrefix,
		retention: defaultRetention,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *LinkRepository) linkKey(shortCode string) string {
	return r.keyPrefix + "link:" + shortCode
}

func (r *LinkRepository) indexKey(originalURL string) string {
	sum := sha256.Sum256([]byte(originalURL))
	return r.keyPrefix + "url:" + hex.EncodeToString(sum[:])
}

func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error) {
	const op = "adapter.repository.redis.LinkRepository.GetByShortCode"

	link, err := r.get(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

func (r *LinkRepository) get(ctx context.Context, shortCode string) (*entity.Link, error) {
	res := r.client.HGetAll(ctx, r.linkKey(shortCode))
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("failed to get link hash: %w", classify(err))
	}

	if len(res.Val()) == 0 {
		return nil, entity.ErrLinkNotFound
	}

	var h linkHash
	if err := res.Scan(&h); err != nil {
		return nil, fmt.Errorf("failed to decode link hash: %w", err)
	}

	return h.toEntity(shortCode), nil
}

// FindActiveByURL walks the URL index from the newest entry and returns the first link that
// still exists and has not expired at now. Index entries whose hash is gone are pruned on the way.
func (r *LinkRepository) FindActiveByURL(ctx context.Context, originalURL string, now time.Time) (*entity.Link, error) {
	const op = "adapter.repository.redis.LinkRepository.FindActiveByURL"

	idx := r.indexKey(originalURL)

	for start := int64(0); ; start += indexPageSize {
		codes, err := r.client.ZRevRange(ctx, idx, start, start+indexPageSize-1).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read url index: %w", op, classify(err))
		}

		var stale []any
		for _, code := range codes {
			link, err := r.get(ctx, code)
			switch {
			case errors.Is(err, entity.ErrLinkNotFound):
				stale = append(stale, code)
			case err != nil:
				return nil, fmt.Errorf("%s: %w", op, err)
			case link.OriginalURL == originalURL && !link.IsExpired(now):
				return link, nil
			}
		}

		if len(stale) > 0 {
			if err := r.client.ZRem(ctx, idx, stale...).Err(); err != nil {
				return nil, fmt.Errorf("%s: failed to prune url index: %w", op, classify(err))
			}
			start -= int64(len(stale))
		}

		if len(codes) < indexPageSize {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}
	}
}

func (r *LinkRepository) CreateIfAbsent(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.redis.LinkRepository.CreateIfAbsent"

	createdAt := link.CreatedAt.UTC().Truncate(time.Millisecond)

	var expiresAt, deleteAt string
	if link.ExpiresAt != nil {
		expiresAt = strconv.FormatInt(link.ExpiresAt.UnixMilli(), 10)
		deleteAt = strconv.FormatInt(link.ExpiresAt.Add(r.retention).UnixMilli(), 10)
	}

	custom := "0"
	if link.CustomCode {
		custom = "1"
	}

	created, err := createScript.Run(ctx, r.client,
		[]string{r.linkKey(link.ShortCode), r.indexKey(link.OriginalURL)},
		link.OriginalURL,
		createdAt.UnixMilli(),
		expiresAt,
		custom,
		link.ShortCode,
		deleteAt,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to run create script: %w", op, classify(err))
	}

	if created == 0 {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	stored := *link
	stored.CreatedAt = createdAt
	stored.ClickCount = 0
	if link.ExpiresAt != nil {
		e := link.ExpiresAt.UTC().Truncate(time.Millisecond)
		stored.ExpiresAt = &e
	}

	return &stored, nil
}

func (r *LinkRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.redis.LinkRepository.IncrementClicks"

	n, err := incrementScript.Run(ctx, r.client, []string{r.linkKey(shortCode)}).Int64()
	if err != nil {
		return fmt.Errorf("%s: failed to run increment script: %w", op, classify(err))
	}

	if n < 0 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}
