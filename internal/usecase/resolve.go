package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/shortcode"
)

// Lookup returns the active link for the short code without counting a click.
func (uc *LinkUseCase) Lookup(ctx context.Context, shortCode string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.Lookup"

	link, err := uc.active(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// Resolve returns the original URL for the short code and counts a click in the background.
// Click tracking is best effort: its failure is logged and never fails the redirect.
func (uc *LinkUseCase) Resolve(ctx context.Context, shortCode string) (string, error) {
	const op = "usecase.LinkUseCase.Resolve"

	link, err := uc.active(ctx, shortCode)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	uc.trackClick(ctx, shortCode)

	return link.OriginalURL, nil
}

// Stats returns the stored link with its current click count, expired or not.
func (uc *LinkUseCase) Stats(ctx context.Context, shortCode string) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.Stats"

	link, err := uc.stored(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// Wait blocks until all in-flight click increments have finished.
func (uc *LinkUseCase) Wait() {
	uc.clicks.Wait()
}

func (uc *LinkUseCase) stored(ctx context.Context, shortCode string) (*entity.Link, error) {
	// Nothing outside the code alphabet was ever stored.
	if shortcode.ValidateCustom(shortCode) != nil {
		return nil, entity.ErrLinkNotFound
	}

	link, err := uc.linkRepo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

func (uc *LinkUseCase) active(ctx context.Context, shortCode string) (*entity.Link, error) {
	link, err := uc.stored(ctx, shortCode)
	if err != nil {
		return nil, err
	}

	if link.IsExpired(uc.now()) {
		return nil, entity.ErrLinkExpired
	}

	return link, nil
}

// trackClick increments the counter on a context detached from the request,
// so neither a slow store nor a client disconnect affects the redirect.
func (uc *LinkUseCase) trackClick(ctx context.Context, shortCode string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.clickTimeout)

	uc.clicks.Add(1)
	go func() {
		defer uc.clicks.Done()
		defer cancel()

		if err := uc.linkRepo.IncrementClicks(ctx, shortCode); err != nil {
			uc.logger.WarnContext(ctx, "failed to track click",
				slog.String("short_code", shortCode),
				slog.Any("err", err),
			)
		}
	}()
}
