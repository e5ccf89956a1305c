package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gmsas95/ddtscan/internal/domain"
)

// Folder groups the documents of one delivery round
type Folder struct {
	ID            string    `gorm:"primaryKey" json:"id"`
	Name          string    `json:"name"`
	Subcontractor string    `gorm:"index" json:"subcontractor"`
	Date          time.Time `json:"date"`
	Status        string    `gorm:"index" json:"status"` // pending, signed
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Document is a finalized capture session
type Document struct {
	ID             string     `gorm:"primaryKey" json:"id"`
	FolderID       string     `gorm:"index" json:"folder_id"`
	Name           string     `json:"name"`
	PageCount      int        `json:"page_count"`
	Signed         bool       `gorm:"index" json:"signed"`
	Stamped        bool       `json:"stamped"`
	SealNumber     string     `json:"seal_number"`
	CarrierName    string     `json:"carrier_name"`
	CarrierCompany string     `json:"carrier_company"`
	SignatureKey   string     `json:"-"`
	ArtifactKey    string     `json:"artifact_key"`
	ArtifactDigest string     `json:"artifact_digest"`
	SignedAt       *time.Time `json:"signed_at"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relationships
	Pages []Page `json:"pages,omitempty" gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

// Page is the metadata of one unstamped page; the bytes live in badger
type Page struct {
	ID            string  `gorm:"primaryKey" json:"id"`
	DocumentID    string  `gorm:"index:idx_doc_page" json:"document_id"`
	Position      int     `gorm:"index:idx_doc_page" json:"position"`
	Format        string  `json:"format"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	DPI           float64 `json:"dpi"`
	AspectWarning bool    `json:"aspect_warning"`
	SizeBytes     int64   `json:"size_bytes"`
	BlobKey       string  `json:"-"`
}

// Carrier is a transporter whose stored signature can fill sign requests
type Carrier struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Name         string    `json:"name"`
	Company      string    `gorm:"index" json:"company"`
	SignatureKey string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BeforeCreate hook for Folder
func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = generateID("fld")
	}
	if f.Status == "" {
		f.Status = string(domain.FolderPending)
	}
	return nil
}

// BeforeCreate hook for Document
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = generateID("doc")
	}
	return nil
}

// BeforeCreate hook for Page
func (p *Page) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateID("pg")
	}
	return nil
}

// BeforeCreate hook for Carrier
func (c *Carrier) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateID("car")
	}
	return nil
}

func generateID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func folderFromDomain(f *domain.Folder) *Folder {
	return &Folder{
		ID:            f.ID,
		Name:          f.Name,
		Subcontractor: f.Subcontractor,
		Date:          f.Date,
		Status:        string(f.Status),
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

func (f *Folder) toDomain() *domain.Folder {
	return &domain.Folder{
		ID:            f.ID,
		Name:          f.Name,
		Subcontractor: f.Subcontractor,
		Date:          f.Date,
		Status:        domain.FolderStatus(f.Status),
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
}

// toDomain converts the row; page bytes and the signature are filled in
// by the store.
func (d *Document) toDomain() *domain.Document {
	doc := &domain.Document{
		ID:             d.ID,
		FolderID:       d.FolderID,
		Name:           d.Name,
		Signed:         d.Signed,
		ArtifactKey:    d.ArtifactKey,
		ArtifactDigest: d.ArtifactDigest,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		SignedAt:       d.SignedAt,
	}
	if d.Stamped {
		doc.Stamp = &domain.StampSpec{
			SealNumber:     d.SealNumber,
			CarrierName:    d.CarrierName,
			CarrierCompany: d.CarrierCompany,
		}
	}
	doc.Pages = make(domain.PageSet, len(d.Pages))
	for i, p := range d.Pages {
		doc.Pages[i] = domain.Page{
			Format:        domain.PageFormat(p.Format),
			Width:         p.Width,
			Height:        p.Height,
			DPI:           p.DPI,
			AspectWarning: p.AspectWarning,
		}
	}
	return doc
}

func (c *Carrier) toDomain() *domain.Carrier {
	return &domain.Carrier{
		ID:        c.ID,
		Name:      c.Name,
		Company:   c.Company,
		CreatedAt: c.CreatedAt,
	}
}
