package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

type DocumentFilter struct {
	FolderID string
	Signed   *bool
	Limit    int
	Offset   int
}

func pageBlobKey(docID string, i int) string {
	return fmt.Sprintf("doc:%s:page:%04d", docID, i)
}

func docSignatureKey(docID string) string {
	return "sig:doc:" + docID
}

// CreateDocument stores the page bytes in badger and the document with its
// page metadata in one transaction. doc.ID and timestamps are filled in.
func (s *Store) CreateDocument(ctx context.Context, doc *domain.Document) error {
	if len(doc.Pages) == 0 {
		return apperrors.ErrEmptyPageSet
	}
	if doc.ID == "" {
		doc.ID = generateID("doc")
	}
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	row := documentRow(doc)
	keys := make([]string, 0, len(doc.Pages))
	wb := s.badger.NewWriteBatch()
	defer wb.Cancel()
	for i, p := range doc.Pages {
		key := pageBlobKey(doc.ID, i)
		if err := wb.Set([]byte(key), p.Data); err != nil {
			return err
		}
		keys = append(keys, key)
		row.Pages = append(row.Pages, Page{
			DocumentID:    doc.ID,
			Position:      i,
			Format:        string(p.Format),
			Width:         p.Width,
			Height:        p.Height,
			DPI:           p.DPI,
			AspectWarning: p.AspectWarning,
			SizeBytes:     int64(len(p.Data)),
			BlobKey:       key,
		})
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to store pages: %w", err)
	}
	if err := s.putSignature(row, doc); err != nil {
		_ = s.deleteBlobs(keys...)
		return err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		_ = s.deleteBlobs(append(keys, row.SignatureKey)...)
		return err
	}
	return nil
}

// UpdateDocument saves the stamp, artifact and sign fields. Pages are
// immutable once created.
func (s *Store) UpdateDocument(ctx context.Context, doc *domain.Document) error {
	row := documentRow(doc)
	if err := s.putSignature(row, doc); err != nil {
		return err
	}
	row.UpdatedAt = time.Now()
	doc.UpdatedAt = row.UpdatedAt

	res := s.db.WithContext(ctx).Model(&Document{ID: doc.ID}).
		Select("Name", "FolderID", "Signed", "Stamped", "SealNumber", "CarrierName",
			"CarrierCompany", "SignatureKey", "ArtifactKey", "ArtifactDigest", "SignedAt", "UpdatedAt").
		Updates(row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.Withf("document %s", doc.ID)
	}
	return nil
}

// GetDocument loads a document with its page bytes and stamp signature.
func (s *Store) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	var row Document
	err := s.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "document "+id)
	}

	doc := row.toDomain()
	for i, p := range row.Pages {
		data, err := s.getBlob(p.BlobKey)
		if err != nil {
			return nil, fmt.Errorf("page %d of %s: %w", i, id, err)
		}
		doc.Pages[i].Data = data
	}
	if doc.Stamp != nil && row.SignatureKey != "" {
		sig, err := s.getBlob(row.SignatureKey)
		if err != nil {
			return nil, err
		}
		doc.Stamp.Signature = sig
	}
	return doc, nil
}

// ListDocuments returns document metadata, newest first. Page bytes are
// not loaded.
func (s *Store) ListDocuments(ctx context.Context, f DocumentFilter) ([]*domain.Document, error) {
	q := s.db.WithContext(ctx).
		Preload("Pages", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("created_at DESC")
	if f.FolderID != "" {
		q = q.Where("folder_id = ?", f.FolderID)
	}
	if f.Signed != nil {
		q = q.Where("signed = ?", *f.Signed)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var rows []Document
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Document, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// CountDocuments returns the total and signed document counts of a folder.
func (s *Store) CountDocuments(ctx context.Context, folderID string) (total, signed int64, err error) {
	db := s.db.WithContext(ctx).Model(&Document{}).Where("folder_id = ?", folderID)
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, err
	}
	err = s.db.WithContext(ctx).Model(&Document{}).
		Where("folder_id = ? AND signed = ?", folderID, true).
		Count(&signed).Error
	return total, signed, err
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	var row Document
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return notFound(err, "document "+id)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&Page{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Document{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}

	if err := s.deletePrefix("doc:" + id + ":"); err != nil {
		return err
	}
	keys := []string{row.SignatureKey}
	if row.ArtifactKey != "" {
		keys = append(keys, artifactBlobKey(row.ArtifactKey))
	}
	return s.deleteBlobs(keys...)
}

func documentRow(doc *domain.Document) *Document {
	row := &Document{
		ID:             doc.ID,
		FolderID:       doc.FolderID,
		Name:           doc.Name,
		PageCount:      len(doc.Pages),
		Signed:         doc.Signed,
		ArtifactKey:    doc.ArtifactKey,
		ArtifactDigest: doc.ArtifactDigest,
		SignedAt:       doc.SignedAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
	if doc.Stamp != nil {
		row.Stamped = true
		row.SealNumber = doc.Stamp.SealNumber
		row.CarrierName = doc.Stamp.CarrierName
		row.CarrierCompany = doc.Stamp.CarrierCompany
	}
	return row
}

func (s *Store) putSignature(row *Document, doc *domain.Document) error {
	if doc.Stamp == nil || !doc.Stamp.HasSignature() {
		return nil
	}
	row.SignatureKey = docSignatureKey(doc.ID)
	return s.setBlob(row.SignatureKey, doc.Stamp.Signature, 0)
}
