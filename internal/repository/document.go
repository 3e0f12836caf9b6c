package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/saunafleet/fleet-server/internal/database"
	"github.com/saunafleet/fleet-server/internal/model"
)

type documentRepo struct {
	db database.DBTX
}

func NewDocumentRepository(db database.DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Get(ctx context.Context, kind model.DocumentKind) (model.Document, error) {
	var body string
	err := r.db.GetContext(ctx, &body, r.db.Rebind(`
		SELECT body FROM documents WHERE kind = ?
	`), string(kind))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := model.DecodeDocument([]byte(body))
	if err != nil {
		return nil, fmt.Errorf("%s document: %w", kind, err)
	}
	return doc, nil
}

func (r *documentRepo) Put(ctx context.Context, kind model.DocumentKind, doc model.Document, at time.Time) error {
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode %s document: %w", kind, err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO documents (kind, version, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind) DO UPDATE SET
			version = excluded.version,
			body = excluded.body,
			updated_at = excluded.updated_at
	`), string(kind), doc.Version(), string(data), at.UTC())
	return err
}
