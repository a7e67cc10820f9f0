package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/vadimbarashkov/shortlink/internal/entity"
	"github.com/vadimbarashkov/shortlink/pkg/shortcode"
)

const (
	// MaxURLLength is the longest original URL accepted for shortening, in characters.
	MaxURLLength = 2048
	// MaxTTLHours caps the link lifetime at ten years.
	MaxTTLHours = 87600
)

// CreateParams describes a shortening request. Zero TTLHours means the link never expires.
type CreateParams struct {
	OriginalURL string
	CustomCode  string
	TTLHours    int
}

// Create returns the active link for the URL if one exists, otherwise stores a new one
// under the custom code or a freshly generated code.
func (uc *LinkUseCase) Create(ctx context.Context, p CreateParams) (*entity.Link, error) {
	const op = "usecase.LinkUseCase.Create"

	if err := validateURL(p.OriginalURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if p.CustomCode != "" {
		if err := shortcode.ValidateCustom(p.CustomCode); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", op, entity.ErrInvalidCode, err)
		}
		if uc.isReserved(p.CustomCode) {
			return nil, fmt.Errorf("%s: %w: %q is reserved", op, entity.ErrInvalidCode, p.CustomCode)
		}
	}

	if p.TTLHours < 0 || p.TTLHours > MaxTTLHours {
		return nil, fmt.Errorf("%s: %w: %d hours", op, entity.ErrInvalidTTL, p.TTLHours)
	}

	existing, err := uc.linkRepo.FindActiveByURL(ctx, p.OriginalURL, uc.now())
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, entity.ErrLinkNotFound) {
		return nil, fmt.Errorf("%s: failed to look up active link: %w", op, err)
	}

	link, err := uc.insert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return link, nil
}

// insert runs the compare-and-set loop. A collision redraws the code; a transient store
// error backs off and retries the same code. Both consume the same attempt budget.
func (uc *LinkUseCase) insert(ctx context.Context, p CreateParams) (*entity.Link, error) {
	custom := p.CustomCode != ""
	b := uc.newBackOff()

	var (
		code    string
		lastErr error
	)

	for attempt := 0; attempt < uc.maxAttempts; attempt++ {
		retrying := entity.IsTransient(lastErr)
		if retrying {
			if err := uc.wait(ctx, b, lastErr); err != nil {
				return nil, err
			}
		}

		switch {
		case custom:
			code = p.CustomCode
		case !retrying:
			generated, err := uc.codeGen.Generate()
			if err != nil {
				return nil, fmt.Errorf("failed to generate short code: %w", err)
			}
			if uc.isReserved(generated) {
				lastErr = entity.ErrShortCodeExists
				continue
			}
			code = generated
		}

		link, err := uc.linkRepo.CreateIfAbsent(ctx, uc.newLink(code, p))
		switch {
		case err == nil:
			return link, nil
		case errors.Is(err, entity.ErrShortCodeExists):
			// The write that failed transiently may have landed after all.
			if retrying {
				if own, ok := uc.ownedBy(ctx, code, p.OriginalURL); ok {
					return own, nil
				}
			}
			if custom {
				return nil, fmt.Errorf("%w: %q", entity.ErrCodeTaken, code)
			}
			lastErr = err
		case entity.IsTransient(err):
			lastErr = err
		default:
			return nil, fmt.Errorf("failed to create link: %w", err)
		}
	}

	if entity.IsTransient(lastErr) {
		return nil, lastErr
	}

	return nil, fmt.Errorf("%w after %d attempts", entity.ErrGenerationExhausted, uc.maxAttempts)
}

func (uc *LinkUseCase) newLink(code string, p CreateParams) *entity.Link {
	now := uc.now().UTC()

	link := &entity.Link{
		ShortCode:   code,
		OriginalURL: p.OriginalURL,
		CreatedAt:   now,
		CustomCode:  p.CustomCode != "",
	}

	if p.TTLHours > 0 {
		expiresAt := now.Add(time.Duration(p.TTLHours) * time.Hour)
		link.ExpiresAt = &expiresAt
	}

	return link
}

func (uc *LinkUseCase) ownedBy(ctx context.Context, code, originalURL string) (*entity.Link, bool) {
	link, err := uc.linkRepo.GetByShortCode(ctx, code)
	if err != nil || link.OriginalURL != originalURL {
		return nil, false
	}
	return link, true
}

func (uc *LinkUseCase) wait(ctx context.Context, b backoff.BackOff, cause error) error {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return cause
	}
	if errors.Is(cause, entity.ErrThrottled) {
		d *= 2
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", entity.ErrUnavailable, ctx.Err())
	case <-t.C:
		return nil
	}
}

func validateURL(raw string) error {
	if utf8.RuneCountInString(raw) > MaxURLLength {
		return fmt.Errorf("%w: longer than %d characters", entity.ErrInvalidURL, MaxURLLength)
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute url", entity.ErrInvalidURL, raw)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", entity.ErrInvalidURL, u.Scheme)
	}
}
