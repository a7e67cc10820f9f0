// Package usecase implements the short link resolution core: creating deduplicated links
// through a compare-and-set retry loop and resolving codes with best-effort click tracking.
package usecase

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	defaultMaxAttempts  = 5
	defaultClickTimeout = 2 * time.Second
)

// linkRepository is the link store contract. CreateIfAbsent and IncrementClicks must be
// atomic on the store side; the use case holds no locks of its own.
type linkRepository interface {
	GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error)
	FindActiveByURL(ctx context.Context, originalURL string, now time.Time) (*entity.Link, error)
	CreateIfAbsent(ctx context.Context, link *entity.Link) (*entity.Link, error)
	IncrementClicks(ctx context.Context, shortCode string) error
}

type codeGenerator interface {
	Generate() (string, error)
}

type LinkUseCase struct {
	linkRepo     linkRepository
	codeGen      codeGenerator
	logger       *slog.Logger
	now          func() time.Time
	newBackOff   func() backoff.BackOff
	maxAttempts  int
	clickTimeout time.Duration
	reserved     map[string]struct{}
	clicks       sync.WaitGroup
}

type Option func(*LinkUseCase)

// WithMaxAttempts bounds the conditional-write loop, counting both collisions and transient store errors.
func WithMaxAttempts(n int) Option {
	return func(uc *LinkUseCase) {
		if n > 0 {
			uc.maxAttempts = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(uc *LinkUseCase) {
		uc.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *LinkUseCase) {
		uc.now = now
	}
}

// WithBackOff sets the delay policy between retries of transient store errors.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(uc *LinkUseCase) {
		uc.newBackOff = newBackOff
	}
}

// WithClickTimeout bounds the best-effort click increment issued by Resolve.
func WithClickTimeout(d time.Duration) Option {
	return func(uc *LinkUseCase) {
		if d > 0 {
			uc.clickTimeout = d
		}
	}
}

// WithReservedCodes lists codes that collide with fixed routes and must never be handed out.
func WithReservedCodes(codes ...string) Option {
	return func(uc *LinkUseCase) {
		for _, c := range codes {
			uc.reserved[c] = struct{}{}
		}
	}
}

func New(linkRepo linkRepository, codeGen codeGenerator, opts ...Option) *LinkUseCase {
	uc := &LinkUseCase{
		linkRepo:     linkRepo,
		codeGen:      codeGen,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:          time.Now,
		newBackOff:   defaultBackOff,
		maxAttempts:  defaultMaxAttempts,
		clickTimeout: defaultClickTimeout,
		reserved:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 0
	return b
}

func (uc *LinkUseCase) isReserved(code string) bool {
	_, ok := uc.reserved[code]
	return ok
}
