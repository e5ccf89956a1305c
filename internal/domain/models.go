// Package domain holds the records shared by the scan, stamp and sign stages.
package domain

import (
	"bytes"
	"encoding/base64"
	"math"
	"strings"
	"time"
)

// Physical page the artifact is laid out on.
const (
	PageWidthMm  = 210.0
	PageHeightMm = 297.0
	MmPerInch    = 25.4

	// AspectTolerance is how far height/width may drift from 297:210 before
	// a page is flagged.
	AspectTolerance = 0.2
)

type SourceKind string

const (
	SourceCamera SourceKind = "camera"
	SourceFile   SourceKind = "file"
)

// RawCapture is an uncorrected photo as delivered by the acquisition side.
type RawCapture struct {
	Data       []byte     `json:"-"`
	CapturedAt time.Time  `json:"captured_at"`
	Source     SourceKind `json:"source"`
	// Display size of the surface the operator clicked on, zero when the
	// corners are already in native pixels.
	DisplayWidth  int `json:"display_width,omitempty"`
	DisplayHeight int `json:"display_height,omitempty"`
}

type PageFormat string

const (
	FormatPNG  PageFormat = "png"
	FormatJPEG PageFormat = "jpeg"
)

func (f PageFormat) ContentType() string {
	if f == FormatJPEG {
		return "image/jpeg"
	}
	return "image/png"
}

// Page is a corrected, filtered page image.
type Page struct {
	Data          []byte     `json:"-"`
	Format        PageFormat `json:"format"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	DPI           float64    `json:"dpi"`
	AspectWarning bool       `json:"aspect_warning"`
}

// NewPage fills in the derived DPI and aspect flag.
func NewPage(data []byte, format PageFormat, width, height int) Page {
	return Page{
		Data:          data,
		Format:        format,
		Width:         width,
		Height:        height,
		DPI:           AssumedDPI(width),
		AspectWarning: AspectDiverges(width, height),
	}
}

// AssumedDPI infers density from the pixel width of an A4 page.
func AssumedDPI(widthPx int) float64 {
	return float64(widthPx) / (PageWidthMm / MmPerInch)
}

// AspectDiverges reports a height/width ratio at least AspectTolerance away
// from A4.
func AspectDiverges(width, height int) bool {
	if width <= 0 || height <= 0 {
		return true
	}
	ratio := float64(height) / float64(width)
	return math.Abs(ratio-PageHeightMm/PageWidthMm) >= AspectTolerance
}

// PageSet is the ordered page list of one document. Index 0 is the only
// page that gets stamped.
type PageSet []Page

func (ps PageSet) Size() int64 {
	var n int64
	for _, p := range ps {
		n += int64(len(p.Data))
	}
	return n
}

type Workflow string

const (
	WorkflowSign    Workflow = "sign"
	WorkflowRestamp Workflow = "restamp"
)

// StampSpec is what gets stamped on the first page. Every field is optional
// except Signature in the sign workflow.
type StampSpec struct {
	Signature      []byte `json:"-"`
	SealNumber     string `json:"seal_number,omitempty"`
	CarrierName    string `json:"carrier_name,omitempty"`
	CarrierCompany string `json:"carrier_company,omitempty"`
}

func (s StampSpec) HasSignature() bool {
	return len(s.Signature) > 0
}

func (s StampSpec) HasText() bool {
	return strings.TrimSpace(s.SealNumber) != "" || strings.TrimSpace(s.CarrierName) != ""
}

// IsEmpty reports a spec that would leave the page untouched.
func (s StampSpec) IsEmpty() bool {
	return !s.HasSignature() && !s.HasText()
}

// DecodeSignature accepts raw image bytes or a data URL and returns the
// image bytes. Undecodable base64 is returned as-is so the image decoder
// reports the failure.
func DecodeSignature(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "data:") {
		if _, payload, ok := strings.Cut(raw, ","); ok {
			raw = payload
		}
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return []byte(raw)
	}
	return data
}

// EncodeSignature renders signature bytes as a data URL.
func EncodeSignature(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	mime := "image/png"
	if bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

type FolderStatus string

const (
	FolderPending FolderStatus = "pending"
	FolderSigned  FolderStatus = "signed"
)

type Folder struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Subcontractor string       `json:"subcontractor"`
	Date          time.Time    `json:"date"`
	Status        FolderStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

type Carrier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Company   string    `json:"company"`
	Signature []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is a finalized capture session. Pages always hold the unstamped
// originals; the stamped result lives only in the artifact.
type Document struct {
	ID             string     `json:"id"`
	FolderID       string     `json:"folder_id"`
	Name           string     `json:"name"`
	Pages          PageSet    `json:"pages"`
	Signed         bool       `json:"signed"`
	Stamp          *StampSpec `json:"stamp,omitempty"`
	ArtifactKey    string     `json:"artifact_key,omitempty"`
	ArtifactDigest string     `json:"artifact_digest,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	SignedAt       *time.Time `json:"signed_at,omitempty"`
}
