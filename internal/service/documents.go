package service

import (
	"context"
	"fmt"
	"time"

	"github.com/saunafleet/fleet-server/internal/audit"
	apperrors "github.com/saunafleet/fleet-server/internal/errors"
	"github.com/saunafleet/fleet-server/internal/model"
	"github.com/saunafleet/fleet-server/internal/repository"
)

// DocumentService reads and replaces the global settings and schedule
// documents the editors produce.
type DocumentService struct {
	store repository.Store
	now   func() time.Time
}

func NewDocumentService(store repository.Store) *DocumentService {
	return &DocumentService{store: store, now: time.Now}
}

func (s *DocumentService) ReadSettings(ctx context.Context) (model.Document, error) {
	return s.read(ctx, model.DocumentSettings)
}

func (s *DocumentService) WriteSettings(ctx context.Context, doc model.Document) (int64, error) {
	return s.write(ctx, model.DocumentSettings, doc)
}

func (s *DocumentService) ReadSchedule(ctx context.Context) (model.Document, error) {
	return s.read(ctx, model.DocumentSchedule)
}

func (s *DocumentService) WriteSchedule(ctx context.Context, doc model.Document) (int64, error) {
	return s.write(ctx, model.DocumentSchedule, doc)
}

func (s *DocumentService) Read(ctx context.Context, kind model.DocumentKind) (model.Document, error) {
	if kind != model.DocumentSettings && kind != model.DocumentSchedule {
		return nil, apperrors.NotFound(fmt.Sprintf("document %q", kind))
	}
	return s.read(ctx, kind)
}

func (s *DocumentService) Write(ctx context.Context, kind model.DocumentKind, doc model.Document) (int64, error) {
	if kind != model.DocumentSettings && kind != model.DocumentSchedule {
		return 0, apperrors.NotFound(fmt.Sprintf("document %q", kind))
	}
	return s.write(ctx, kind, doc)
}

func (s *DocumentService) read(ctx context.Context, kind model.DocumentKind) (model.Document, error) {
	var doc model.Document
	err := s.store.View(ctx, func(r repository.Reader) error {
		var err error
		doc, err = r.Documents().Get(ctx, kind)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}
	return doc, nil
}

// write replaces the whole document. The stored version becomes the prior
// version + 1 whatever the caller sent.
func (s *DocumentService) write(ctx context.Context, kind model.DocumentKind, doc model.Document) (int64, error) {
	if doc == nil {
		return 0, apperrors.MissingRequired("document")
	}

	var version int64
	err := s.store.WithLock(ctx, func(tx repository.Tx) error {
		prior, err := tx.Documents().Get(ctx, kind)
		if err != nil {
			return err
		}
		version = prior.Version() + 1
		return tx.Documents().Put(ctx, kind, doc.WithVersion(version), s.now())
	})
	if err != nil {
		return 0, storeError(err)
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventDocumentWrite,
		Details: map[string]interface{}{"kind": string(kind), "version": version},
	})
	return version, nil
}
