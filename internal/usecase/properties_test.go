package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadimbarashkov/shortlink/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/shortcode"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newMemoryUseCase(t *testing.T, gen *shortcode.Generator, opts ...Option) (*LinkUseCase, *memory.LinkRepository, *clock) {
	t.Helper()

	repo := memory.NewLinkRepository()
	clk := &clock{now: time.Date(2025, 8, 24, 10, 30, 0, 0, time.UTC)}

	opts = append([]Option{
		WithClock(clk.Now),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	}, opts...)

	return New(repo, gen, opts...), repo, clk
}

func TestCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	first, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com/a"})
	require.NoError(t, err)

	second, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com/a"})
	require.NoError(t, err)

	assert.Equal(t, first.ShortCode, second.ShortCode)
	assert.Len(t, first.ShortCode, shortcode.DefaultLength)
}

func TestCreate_DistinctURLsGetDistinctCodes(t *testing.T) {
	ctx := context.Background()
	// 2^4 = 16 possible codes: collisions are guaranteed, exhaustion is not.
	gen := shortcode.NewGenerator(4, shortcode.WithAlphabet("ab"))
	uc, _, _ := newMemoryUseCase(t, gen, WithMaxAttempts(10_000))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]string)
	)

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			url := fmt.Sprintf("https://example.com/%d", i)
			link, err := uc.Create(ctx, CreateParams{OriginalURL: url})
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			codes[link.ShortCode] = url
		}(i)
	}
	wg.Wait()

	assert.Len(t, codes, 16)

	_, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com/overflow"})
	assert.ErrorIs(t, err, entity.ErrGenerationExhausted)
}

func TestResolve_ConcurrentClicksAreCounted(t *testing.T) {
	ctx := context.Background()
	uc, _, _ := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	link, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)

	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			url, err := uc.Resolve(ctx, link.ShortCode)
			assert.NoError(t, err)
			assert.Equal(t, "https://example.com", url)
		}()
	}
	wg.Wait()
	uc.Wait()

	stats, err := uc.Stats(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(n), stats.ClickCount)
}

func TestResolve_ExpiryBoundary(t *testing.T) {
	ctx := context.Background()
	uc, _, clk := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	link, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com", TTLHours: 1})
	require.NoError(t, err)

	clk.Advance(time.Hour - time.Second)
	_, err = uc.Resolve(ctx, link.ShortCode)
	require.NoError(t, err)

	clk.Advance(time.Second)
	_, err = uc.Resolve(ctx, link.ShortCode)
	assert.ErrorIs(t, err, entity.ErrLinkExpired)

	uc.Wait()

	stats, err := uc.Stats(ctx, link.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.ClickCount)
	require.NotNil(t, stats.ExpiresAt)
	assert.Equal(t, link.CreatedAt.Add(time.Hour), *stats.ExpiresAt)
}

func TestCreate_ExpiredLinkIsNotReused(t *testing.T) {
	ctx := context.Background()
	uc, _, clk := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	first, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com", TTLHours: 1})
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)

	second, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ShortCode, second.ShortCode)

	url, err := uc.Resolve(ctx, second.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
}

func TestCreate_CustomCodeConflict(t *testing.T) {
	ctx := context.Background()
	uc, repo, _ := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	_, err := uc.Create(ctx, CreateParams{OriginalURL: "https://example.com/x", CustomCode: "foo"})
	require.NoError(t, err)

	_, err = uc.Create(ctx, CreateParams{OriginalURL: "https://example.com/y", CustomCode: "foo"})
	assert.ErrorIs(t, err, entity.ErrCodeTaken)

	stored, err := repo.GetByShortCode(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", stored.OriginalURL)
	assert.True(t, stored.CustomCode)
}

func TestCreate_InvalidInputWritesNothing(t *testing.T) {
	ctx := context.Background()
	uc, repo, clk := newMemoryUseCase(t, shortcode.NewGenerator(shortcode.DefaultLength))

	_, err := uc.Create(ctx, CreateParams{OriginalURL: "ftp://example.com", CustomCode: "valid"})
	assert.ErrorIs(t, err, entity.ErrInvalidURL)

	_, err = uc.Create(ctx, CreateParams{OriginalURL: "https://example.com", CustomCode: "no spaces"})
	assert.ErrorIs(t, err, entity.ErrInvalidCode)

	_, err = repo.GetByShortCode(ctx, "valid")
	assert.ErrorIs(t, err, entity.ErrLinkNotFound)

	_, err = uc.Create(ctx, CreateParams{OriginalURL: "https://example.com", TTLHours: 3_000_000})
	assert.ErrorIs(t, err, entity.ErrInvalidTTL)

	_, err = repo.FindActiveByURL(ctx, "https://example.com", clk.Now())
	assert.ErrorIs(t, err, entity.ErrLinkNotFound)
}
