// Package workflow turns finalized capture sessions into documents and
// signs them: stamp the first page, assemble the PDF, store and export it.
package workflow

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/gmsas95/ddtscan/internal/archive"
	"github.com/gmsas95/ddtscan/internal/assemble"
	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/metrics"
	"github.com/gmsas95/ddtscan/internal/preview"
	"github.com/gmsas95/ddtscan/internal/session"
	"github.com/gmsas95/ddtscan/internal/stamp"
)

// Persistence is what the workflow needs from storage.
type Persistence interface {
	CreateDocument(ctx context.Context, doc *domain.Document) error
	UpdateDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	CountDocuments(ctx context.Context, folderID string) (total, signed int64, err error)
	UpdateFolderStatus(ctx context.Context, id string, status domain.FolderStatus) error
	GetCarrier(ctx context.Context, id string) (*domain.Carrier, error)
	PutArtifact(ctx context.Context, key string, data []byte) error
	GetArtifact(ctx context.Context, key string) ([]byte, error)
}

type Service struct {
	store     Persistence
	stamper   *stamp.Engine
	previewer *preview.Renderer
	assembler *assemble.Assembler
	exporter  archive.Exporter
	logger    *zap.Logger
	now       func() time.Time
}

// New wires the workflow. exporter may be nil when archiving is off.
func New(store Persistence, stamper *stamp.Engine, exporter archive.Exporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		stamper:   stamper,
		previewer: preview.NewRenderer(stamper, logger),
		assembler: assemble.New(logger),
		exporter:  exporter,
		logger:    logger,
		now:       time.Now,
	}
}

// Finalize persists the pages of a finalized session as a new document.
func (s *Service) Finalize(ctx context.Context, acc *session.Accumulator, name string) (*domain.Document, error) {
	if st := acc.State(); st != session.StateFinalizing {
		return nil, apperrors.ErrInvalidState.Withf("session is %s, not finalizing", st)
	}
	pages, err := acc.Pages(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "DDT " + s.now().Format("2006-01-02 15:04")
	}

	doc := &domain.Document{
		FolderID: acc.FolderID(),
		Name:     name,
		Pages:    pages,
	}
	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}
	metrics.RecordDocumentFinalized()
	s.logger.Info("Document finalized",
		zap.String("document_id", doc.ID),
		zap.String("session_id", acc.ID()),
		zap.Int("pages", len(pages)))

	if doc.FolderID != "" {
		if err := s.RefreshFolder(ctx, doc.FolderID); err != nil {
			s.logger.Warn("Failed to refresh folder status", zap.String("folder_id", doc.FolderID), zap.Error(err))
		}
	}
	return doc, nil
}

// SignRequest asks for page 0 of a document to be stamped. A CarrierID
// fills the signature and carrier fields the spec leaves empty.
type SignRequest struct {
	Spec      domain.StampSpec
	CarrierID string
	Workflow  domain.Workflow
}

type SignResult struct {
	Document *domain.Document
	Size     int
	Digest   string
	Report   *stamp.Report
	Warnings []error
}

// Preview renders the confirmation view for a document's first page.
func (s *Service) Preview(ctx context.Context, docID string, req SignRequest) (*preview.Result, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	spec, err := s.resolveSpec(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.previewer.Render(ctx, doc.Pages[0], spec, workflowOf(req))
}

// Sign stamps the stored original, assembles the artifact and records it.
// Repeating a request renders from the same original and never stacks
// stamps.
func (s *Service) Sign(ctx context.Context, docID string, req SignRequest) (*SignResult, error) {
	start := s.now()
	wf := workflowOf(req)

	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	spec, err := s.resolveSpec(ctx, req)
	if err != nil {
		return nil, err
	}

	stamped, report, err := s.stamper.Stamp(ctx, doc.Pages, spec, wf)
	if err != nil {
		return nil, err
	}

	pdf, err := s.assembler.Assemble(ctx, stamped, assemble.Meta{
		Title:     doc.Name,
		Subject:   "DDT " + doc.ID,
		Author:    spec.CarrierName,
		CreatedAt: doc.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(pdf)
	digest := hex.EncodeToString(sum[:])
	key := ArtifactKey(doc.ID)
	if err := s.store.PutArtifact(ctx, key, pdf); err != nil {
		return nil, fmt.Errorf("failed to store artifact: %w", err)
	}

	res := &SignResult{Size: len(pdf), Digest: digest, Report: report}
	res.Warnings = append(res.Warnings, report.Warnings...)
	if s.exporter != nil {
		if err := s.exporter.Export(ctx, key, pdf); err != nil {
			s.logger.Warn("Artifact export failed", zap.String("document_id", doc.ID), zap.Error(err))
			res.Warnings = append(res.Warnings, err)
		}
	}

	now := s.now()
	stored := spec
	doc.Stamp = &stored
	doc.Signed = report.SignatureApplied
	doc.SignedAt = nil
	if report.SignatureApplied {
		doc.SignedAt = &now
	}
	doc.ArtifactKey = key
	doc.ArtifactDigest = digest
	if err := s.store.UpdateDocument(ctx, doc); err != nil {
		return nil, err
	}
	res.Document = doc

	metrics.RecordDocumentSigned(now.Sub(start))
	s.logger.Info("Document stamped",
		zap.String("document_id", doc.ID),
		zap.String("workflow", string(wf)),
		zap.Bool("signed", doc.Signed),
		zap.String("digest", digest),
		zap.Int("warnings", len(res.Warnings)))

	if doc.FolderID != "" {
		if err := s.RefreshFolder(ctx, doc.FolderID); err != nil {
			s.logger.Warn("Failed to refresh folder status", zap.String("folder_id", doc.FolderID), zap.Error(err))
		}
	}
	return res, nil
}

// Artifact returns the last assembled PDF of a document.
func (s *Service) Artifact(ctx context.Context, docID string) ([]byte, *domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	if doc.ArtifactKey == "" {
		return nil, doc, apperrors.ErrNotFound.Withf("document %s has no artifact yet", docID)
	}
	data, err := s.store.GetArtifact(ctx, doc.ArtifactKey)
	if err != nil {
		return nil, doc, err
	}
	return data, doc, nil
}

// RefreshFolder marks a folder signed once all its documents are signed.
func (s *Service) RefreshFolder(ctx context.Context, folderID string) error {
	total, signed, err := s.store.CountDocuments(ctx, folderID)
	if err != nil {
		return err
	}
	status := domain.FolderPending
	if total > 0 && signed == total {
		status = domain.FolderSigned
	}
	return s.store.UpdateFolderStatus(ctx, folderID, status)
}

func (s *Service) resolveSpec(ctx context.Context, req SignRequest) (domain.StampSpec, error) {
	spec := req.Spec
	if req.CarrierID == "" {
		return spec, nil
	}
	c, err := s.store.GetCarrier(ctx, req.CarrierID)
	if err != nil {
		return spec, err
	}
	if !spec.HasSignature() {
		spec.Signature = c.Signature
	}
	if spec.CarrierName == "" {
		spec.CarrierName = c.Name
	}
	if spec.CarrierCompany == "" {
		spec.CarrierCompany = c.Company
	}
	return spec, nil
}

func workflowOf(req SignRequest) domain.Workflow {
	if req.Workflow == "" {
		return domain.WorkflowSign
	}
	return req.Workflow
}

func ArtifactKey(docID string) string {
	return "documents/" + docID + ".pdf"
}
