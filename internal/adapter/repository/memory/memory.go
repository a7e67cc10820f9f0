// Package memory provides an in-process link store for local development and tests.
// All state is lost on restart and expired links are never physically removed.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/entity"
)

type LinkRepository struct {
	mu    sync.RWMutex
	links map[string]*entity.Link
	byURL map[string][]string
}

func NewLinkRepository() *LinkRepository {
	return &LinkRepository{
		links: make(map[string]*entity.Link),
		byURL: make(map[string][]string),
	}
}

func (r *LinkRepository) GetByShortCode(_ context.Context, shortCode string) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.GetByShortCode"

	r.mu.RLock()
	defer r.mu.RUnlock()

	link, ok := r.links[shortCode]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return clone(link), nil
}

func (r *LinkRepository) FindActiveByURL(_ context.Context, originalURL string, now time.Time) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.FindActiveByURL"

	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *entity.Link
	for _, code := range r.byURL[originalURL] {
		link := r.links[code]
		if link.IsExpired(now) {
			continue
		}
		// Ties go to the later insert.
		if latest == nil || !link.CreatedAt.Before(latest.CreatedAt) {
			latest = link
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return clone(latest), nil
}

func (r *LinkRepository) CreateIfAbsent(_ context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.memory.LinkRepository.CreateIfAbsent"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[link.ShortCode]; ok {
		return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
	}

	stored := clone(link)
	stored.ClickCount = 0
	r.links[stored.ShortCode] = stored
	r.byURL[stored.OriginalURL] = append(r.byURL[stored.OriginalURL], stored.ShortCode)

	return clone(stored), nil
}

func (r *LinkRepository) IncrementClicks(_ context.Context, shortCode string) error {
	const op = "adapter.repository.memory.LinkRepository.IncrementClicks"

	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[shortCode]
	if !ok {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	link.ClickCount++
	return nil
}

// clone keeps callers from mutating stored links outside IncrementClicks.
func clone(link *entity.Link) *entity.Link {
	c := *link
	if link.ExpiresAt != nil {
		expiresAt := *link.ExpiresAt
		c.ExpiresAt = &expiresAt
	}
	return &c
}
