package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore keeps attachments in the attachment table as bytea.
type PGStore struct {
	pool   *pgxpool.Pool
	limits Limits
}

func NewPGStore(pool *pgxpool.Pool, limits Limits) *PGStore {
	return &PGStore{pool: pool, limits: limits}
}

const blobMetaCols = `id, owner, filename, content_type, size, checksum, created_at`

func scanMeta(row pgx.Row, extra ...any) (*BlobMetadata, error) {
	var m BlobMetadata
	dest := append([]any{&m.ID, &m.Owner, &m.FileName, &m.ContentType, &m.Size, &m.Checksum, &m.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *PGStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := s.limits.prepare(meta, content)
	if err != nil {
		return nil, err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO attachment (`+blobMetaCols+`, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		meta.ID, meta.Owner, meta.FileName, meta.ContentType, meta.Size, meta.Checksum, meta.CreatedAt, data)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return &meta, nil
}

func (s *PGStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var data []byte
	m, err := scanMeta(s.pool.QueryRow(ctx,
		`SELECT `+blobMetaCols+`, data FROM attachment WHERE id = $1`, id), &data)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), m, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM attachment WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *PGStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	return scanMeta(s.pool.QueryRow(ctx, `SELECT `+blobMetaCols+` FROM attachment WHERE id = $1`, id))
}

func (s *PGStore) ListByOwner(ctx context.Context, owner string, limit, offset int) ([]*BlobMetadata, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM attachment WHERE owner = $1`, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count attachments: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+blobMetaCols+` FROM attachment WHERE owner = $1
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`, owner, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var items []*BlobMetadata
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
