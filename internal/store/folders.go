package store

import (
	"context"
	"time"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
)

type FolderFilter struct {
	Subcontractor string
	Status        domain.FolderStatus
}

func (s *Store) CreateFolder(ctx context.Context, f *domain.Folder) error {
	row := folderFromDomain(f)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	*f = *row.toDomain()
	return nil
}

func (s *Store) GetFolder(ctx context.Context, id string) (*domain.Folder, error) {
	var row Folder
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "folder "+id)
	}
	return row.toDomain(), nil
}

// ListFolders returns folders ordered by date, newest first.
func (s *Store) ListFolders(ctx context.Context, f FolderFilter) ([]*domain.Folder, error) {
	q := s.db.WithContext(ctx).Order("date DESC, created_at DESC")
	if f.Subcontractor != "" {
		q = q.Where("subcontractor = ?", f.Subcontractor)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}

	var rows []Folder
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Folder, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) UpdateFolderStatus(ctx context.Context, id string, status domain.FolderStatus) error {
	res := s.db.WithContext(ctx).Model(&Folder{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.Withf("folder %s", id)
	}
	return nil
}

// DeleteFolder removes an empty folder.
func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	total, _, err := s.CountDocuments(ctx, id)
	if err != nil {
		return err
	}
	if total > 0 {
		return apperrors.ErrInvalidState.Withf("folder %s still holds %d documents", id, total)
	}
	res := s.db.WithContext(ctx).Delete(&Folder{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrNotFound.Withf("folder %s", id)
	}
	return nil
}
