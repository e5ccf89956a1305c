package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/store"
)

// ==================== Documents ====================

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	f := store.DocumentFilter{
		FolderID: c.Query("folder_id"),
		Limit:    c.QueryInt("limit", 50),
		Offset:   c.QueryInt("offset", 0),
	}
	if v := c.Query("signed"); v != "" {
		signed, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.ErrBadRequest.Withf("invalid signed filter %q", v)
		}
		f.Signed = &signed
	}

	docs, err := s.store.ListDocuments(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(docs)
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	doc, err := s.store.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	ctx := c.UserContext()
	doc, err := s.store.GetDocument(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		return err
	}
	if doc.FolderID != "" {
		if err := s.workflow.RefreshFolder(ctx, doc.FolderID); err != nil {
			return err
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDocumentPage(c *fiber.Ctx) error {
	n, err := c.ParamsInt("n")
	if err != nil {
		return apperrors.ErrBadRequest.Withf("invalid page index")
	}
	doc, err := s.store.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	if n < 0 || n >= len(doc.Pages) {
		return apperrors.ErrNotFound.Withf("page %d of document %s", n, doc.ID)
	}
	return sendPage(c, doc.Pages[n])
}

// handlePreview answers with the confirmation PNG. Layout problems travel
// in headers so the body stays an image.
func (s *Server) handlePreview(c *fiber.Ctx) error {
	var req stampRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid stamp request")
	}
	sr, err := req.signRequest()
	if err != nil {
		return err
	}

	res, err := s.workflow.Preview(c.UserContext(), c.Params("id"), sr)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set("X-Aspect-Warning", strconv.FormatBool(res.AspectWarning))
	if w := messages(res.Warnings); len(w) > 0 {
		c.Set("X-Stamp-Warnings", strings.Join(w, "; "))
	}
	return c.Send(res.PNG)
}

func (s *Server) handleSign(c *fiber.Ctx) error {
	var req stampRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid stamp request")
	}
	sr, err := req.signRequest()
	if err != nil {
		return err
	}

	res, err := s.workflow.Sign(c.UserContext(), c.Params("id"), sr)
	if err != nil {
		return err
	}
	return c.JSON(signResponse{
		Document:         res.Document,
		Size:             res.Size,
		Digest:           res.Digest,
		SignatureApplied: res.Report.SignatureApplied,
		TextApplied:      res.Report.TextApplied,
		Warnings:         messages(res.Warnings),
	})
}

func (s *Server) handleArtifact(c *fiber.Ctx) error {
	data, doc, err := s.workflow.Artifact(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="`+doc.ID+`.pdf"`)
	c.Set("X-Artifact-Digest", doc.ArtifactDigest)
	return c.Send(data)
}

func (s *Server) handleBatchSign(c *fiber.Ctx) error {
	var req batchSignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid batch request")
	}
	sr, err := req.signRequest()
	if err != nil {
		return err
	}

	result, err := s.batch.Sign(c.UserContext(), req.DocumentIDs, sr)
	if err != nil && result == nil {
		return err
	}
	return c.JSON(result)
}

// ==================== Folders ====================

func (s *Server) handleListFolders(c *fiber.Ctx) error {
	folders, err := s.store.ListFolders(c.UserContext(), store.FolderFilter{
		Subcontractor: c.Query("subcontractor"),
		Status:        domain.FolderStatus(c.Query("status")),
	})
	if err != nil {
		return err
	}
	return c.JSON(folders)
}

func (s *Server) handleCreateFolder(c *fiber.Ctx) error {
	var req folderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid request")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.ErrBadRequest.Withf("name is required")
	}
	if err := validateTexts("name", req.Name, "subcontractor", req.Subcontractor); err != nil {
		return err
	}

	date := time.Now().Truncate(24 * time.Hour)
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			return apperrors.ErrBadRequest.Withf("date must be YYYY-MM-DD")
		}
		date = d
	}

	f := &domain.Folder{
		Name:          req.Name,
		Subcontractor: req.Subcontractor,
		Date:          date,
		Status:        domain.FolderPending,
	}
	if err := s.store.CreateFolder(c.UserContext(), f); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(f)
}

func (s *Server) handleGetFolder(c *fiber.Ctx) error {
	f, err := s.store.GetFolder(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(f)
}

func (s *Server) handleDeleteFolder(c *fiber.Ctx) error {
	if err := s.store.DeleteFolder(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleFolderDocuments(c *fiber.Ctx) error {
	ctx := c.UserContext()
	f, err := s.store.GetFolder(ctx, c.Params("id"))
	if err != nil {
		return err
	}
	docs, err := s.store.ListDocuments(ctx, store.DocumentFilter{FolderID: f.ID})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"folder": f, "documents": docs})
}

// ==================== Carriers ====================

func (s *Server) handleListCarriers(c *fiber.Ctx) error {
	carriers, err := s.store.ListCarriers(c.UserContext(), c.Query("company"))
	if err != nil {
		return err
	}
	out := make([]carrierResponse, len(carriers))
	for i, cr := range carriers {
		out[i] = carrierResponse{Carrier: cr}
	}
	return c.JSON(out)
}

func (s *Server) handleCreateCarrier(c *fiber.Ctx) error {
	var req carrierRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.ErrBadRequest.Withf("invalid request")
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.ErrBadRequest.Withf("name is required")
	}
	if err := validateTexts("name", req.Name, "company", req.Company); err != nil {
		return err
	}

	cr := &domain.Carrier{
		Name:      req.Name,
		Company:   req.Company,
		Signature: domain.DecodeSignature(req.Signature),
	}
	if err := s.store.CreateCarrier(c.UserContext(), cr); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(carrierResponse{Carrier: cr, HasSignature: len(cr.Signature) > 0})
}

func (s *Server) handleGetCarrier(c *fiber.Ctx) error {
	cr, err := s.store.GetCarrier(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(carrierResponse{
		Carrier:      cr,
		HasSignature: len(cr.Signature) > 0,
		Signature:    domain.EncodeSignature(cr.Signature),
	})
}

func (s *Server) handleDeleteCarrier(c *fiber.Ctx) error {
	if err := s.store.DeleteCarrier(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
