package store

import (
	"context"

	"github.com/gmsas95/ddtscan/internal/domain"
)

func carrierSignatureKey(id string) string {
	return "sig:carrier:" + id
}

func (s *Store) CreateCarrier(ctx context.Context, c *domain.Carrier) error {
	row := &Carrier{ID: c.ID, Name: c.Name, Company: c.Company}
	if row.ID == "" {
		row.ID = generateID("car")
	}
	if len(c.Signature) > 0 {
		row.SignatureKey = carrierSignatureKey(row.ID)
		if err := s.setBlob(row.SignatureKey, c.Signature, 0); err != nil {
			return err
		}
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		_ = s.deleteBlobs(row.SignatureKey)
		return err
	}
	c.ID = row.ID
	c.CreatedAt = row.CreatedAt
	return nil
}

// GetCarrier loads a carrier with its stored signature.
func (s *Store) GetCarrier(ctx context.Context, id string) (*domain.Carrier, error) {
	var row Carrier
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "carrier "+id)
	}
	c := row.toDomain()
	if row.SignatureKey != "" {
		sig, err := s.getBlob(row.SignatureKey)
		if err != nil {
			return nil, err
		}
		c.Signature = sig
	}
	return c, nil
}

// ListCarriers returns carriers by name without their signatures.
func (s *Store) ListCarriers(ctx context.Context, company string) ([]*domain.Carrier, error) {
	q := s.db.WithContext(ctx).Order("name ASC")
	if company != "" {
		q = q.Where("company = ?", company)
	}
	var rows []Carrier
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.Carrier, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

func (s *Store) DeleteCarrier(ctx context.Context, id string) error {
	var row Carrier
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return notFound(err, "carrier "+id)
	}
	if err := s.db.WithContext(ctx).Delete(&Carrier{}, "id = ?", id).Error; err != nil {
		return err
	}
	return s.deleteBlobs(row.SignatureKey)
}
