package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/shortlink/internal/entity"
)

const (
	connectionExceptionClass  = "08"
	adminShutdownErrCode      = "57P01"
	cannotConnectNowErrCode   = "57P03"
	tooManyConnectionsErrCode = "53300"
	outOfMemoryErrCode        = "53200"
	serializationErrCode      = "40001"
	deadlockErrCode           = "40P01"
	lockNotAvailableErrCode   = "55P03"
)

// classify maps driver failures onto the transient store errors, keeping the cause in the chain.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, connectionExceptionClass), pgErr.Code == adminShutdownErrCode, pgErr.Code == cannotConnectNowErrCode:
			return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
		case pgErr.Code == tooManyConnectionsErrCode,
			pgErr.Code == outOfMemoryErrCode,
			pgErr.Code == serializationErrCode,
			pgErr.Code == deadlockErrCode,
			pgErr.Code == lockNotAvailableErrCode:
			return fmt.Errorf("%w: %w", entity.ErrThrottled, err)
		}
		return err
	}

	var netErr net.Error
	if pgconn.Timeout(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", entity.ErrUnavailable, err)
	}

	return err
}

type linkDB struct {
	ShortCode   string       `db:"short_code"`
	OriginalURL string       `db:"original_url"`
	CreatedAt   time.Time    `db:"created_at"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
	ClickCount  int64        `db:"click_count"`
	CustomCode  bool         `db:"custom_code"`
}

func (l *linkDB) toEntity() *entity.Link {
	link := &entity.Link{
		ShortCode:   l.ShortCode,
		OriginalURL: l.OriginalURL,
		CreatedAt:   l.CreatedAt.UTC(),
		ClickCount:  uint64(l.ClickCount),
		CustomCode:  l.CustomCode,
	}

	if l.ExpiresAt.Valid {
		expiresAt := l.ExpiresAt.Time.UTC()
		link.ExpiresAt = &expiresAt
	}

	return link
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.GetByShortCode"
	const query = `SELECT short_code, original_url, created_at, expires_at, click_count, custom_code
		FROM links WHERE short_code = $1`

	var link linkDB

	if err := r.db.GetContext(ctx, &link, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from links table: %w", op, classify(err))
	}

	return link.toEntity(), nil
}

// FindActiveByURL returns the most recently created link for the URL that has not expired at now.
func (r *LinkRepository) FindActiveByURL(ctx context.Context, originalURL string, now time.Time) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.FindActiveByURL"
	const query = `SELECT short_code, original_url, created_at, expires_at, click_count, custom_code
		FROM links
		WHERE original_url = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY created_at DESC
		LIMIT 1`

	var link linkDB

	if err := r.db.GetContext(ctx, &link, query, originalURL, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get row from links table: %w", op, classify(err))
	}

	return link.toEntity(), nil
}

// CreateIfAbsent inserts the link unless its short code is already taken.
// The primary key makes the check and the write a single atomic statement.
func (r *LinkRepository) CreateIfAbsent(ctx context.Context, link *entity.Link) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.CreateIfAbsent"
	const query = `INSERT INTO links(short_code, original_url, created_at, expires_at, custom_code)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (short_code) DO NOTHING
		RETURNING short_code, original_url, created_at, expires_at, click_count, custom_code`

	var created linkDB

	err := r.db.GetContext(ctx, &created, query,
		link.ShortCode,
		link.OriginalURL,
		link.CreatedAt,
		nullTime(link.ExpiresAt),
		link.CustomCode,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to insert into links table: %w", op, classify(err))
	}

	return created.toEntity(), nil
}

func (r *LinkRepository) IncrementClicks(ctx context.Context, shortCode string) error {
	const op = "adapter.repository.postgres.LinkRepository.IncrementClicks"
	const query = `UPDATE links SET click_count = click_count + 1 WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to update links table row: %w", op, classify(err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected != 1 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}
