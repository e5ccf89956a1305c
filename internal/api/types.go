package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gmsas95/ddtscan/internal/batch"
	"github.com/gmsas95/ddtscan/internal/config"
	"github.com/gmsas95/ddtscan/internal/domain"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/geometry"
	"github.com/gmsas95/ddtscan/internal/metrics"
	"github.com/gmsas95/ddtscan/internal/security"
	"github.com/gmsas95/ddtscan/internal/session"
	"github.com/gmsas95/ddtscan/internal/store"
	"github.com/gmsas95/ddtscan/internal/workflow"
)

type Server struct {
	app      *fiber.App
	config   *config.Config
	store    *store.Store
	sessions *session.Manager
	workflow *workflow.Service
	batch    *batch.Processor
	detector geometry.Detector
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Deps are the services the API serves. Detector and Metrics default to the
// automatic contour detector and the process-wide registry.
type Deps struct {
	Store    *store.Store
	Sessions *session.Manager
	Workflow *workflow.Service
	Batch    *batch.Processor
	Detector geometry.Detector
	Metrics  *metrics.Metrics
}

func New(cfg *config.Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Detector == nil {
		deps.Detector = geometry.NewAutoDetector()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Default()
	}

	bodyLimit := cfg.Server.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 32
	}

	s := &Server{
		config:   cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		workflow: deps.Workflow,
		batch:    deps.Batch,
		detector: deps.Detector,
		metrics:  deps.Metrics,
		logger:   logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "ddtscan",
		ReadTimeout:           seconds(cfg.Server.ReadTimeout, 30),
		WriteTimeout:          seconds(cfg.Server.WriteTimeout, 60),
		IdleTimeout:           120 * time.Second,
		BodyLimit:             bodyLimit * 1024 * 1024,
		ErrorHandler:          s.errorHandler,
		DisableStartupMessage: true,
	})

	s.setupRoutes()
	return s
}

// App exposes the fiber app for in-process requests.
func (s *Server) App() *fiber.App {
	return s.app
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type stampRequest struct {
	Signature      string `json:"signature"`
	SealNumber     string `json:"seal_number"`
	CarrierName    string `json:"carrier_name"`
	CarrierCompany string `json:"carrier_company"`
	CarrierID      string `json:"carrier_id"`
	Workflow       string `json:"workflow"`
}

func (r stampRequest) signRequest() (workflow.SignRequest, error) {
	wf := domain.Workflow(r.Workflow)
	switch wf {
	case "", domain.WorkflowSign, domain.WorkflowRestamp:
	default:
		return workflow.SignRequest{}, apperrors.ErrBadRequest.Withf("unknown workflow %q", r.Workflow)
	}
	spec := domain.StampSpec{
		Signature:      domain.DecodeSignature(r.Signature),
		SealNumber:     r.SealNumber,
		CarrierName:    r.CarrierName,
		CarrierCompany: r.CarrierCompany,
	}
	if err := security.ValidateStampSpec(spec); err != nil {
		return workflow.SignRequest{}, err
	}
	return workflow.SignRequest{
		Spec:      spec,
		CarrierID: r.CarrierID,
		Workflow:  wf,
	}, nil
}

// validateTexts takes field name and value pairs.
func validateTexts(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := security.ValidateText(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

type batchSignRequest struct {
	stampRequest
	DocumentIDs []string `json:"document_ids"`
}

type signResponse struct {
	Document         *domain.Document `json:"document"`
	Size             int              `json:"size"`
	Digest           string           `json:"digest"`
	SignatureApplied bool             `json:"signature_applied"`
	TextApplied      bool             `json:"text_applied"`
	Warnings         []string         `json:"warnings,omitempty"`
}

type processResponse struct {
	Status     session.Status `json:"status"`
	Rung       string         `json:"rung"`
	Warnings   []string       `json:"warnings,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

type folderRequest struct {
	Name          string `json:"name"`
	Subcontractor string `json:"subcontractor"`
	Date          string `json:"date"`
}

type carrierRequest struct {
	Name      string `json:"name"`
	Company   string `json:"company"`
	Signature string `json:"signature"`
}

type carrierResponse struct {
	*domain.Carrier
	HasSignature bool   `json:"has_signature"`
	Signature    string `json:"signature,omitempty"`
}

func messages(errs []error) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}
