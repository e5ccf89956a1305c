// Package batch signs many documents with one stamp request, throttled and
// with a bounded number of workers.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/gmsas95/ddtscan/internal/config"
	apperrors "github.com/gmsas95/ddtscan/internal/errors"
	"github.com/gmsas95/ddtscan/internal/metrics"
	"github.com/gmsas95/ddtscan/internal/workflow"
)

// Signer is the single-document operation a batch fans out.
type Signer interface {
	Sign(ctx context.Context, docID string, req workflow.SignRequest) (*workflow.SignResult, error)
}

type Processor struct {
	signer  Signer
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

type Config struct {
	MaxConcurrency int
	RatePerSecond  float64
	Burst          int
	Timeout        time.Duration
	RetryCount     int
	RetryDelay     time.Duration
}

type OutputItem struct {
	DocumentID   string        `json:"document_id"`
	Success      bool          `json:"success"`
	Digest       string        `json:"digest,omitempty"`
	Error        string        `json:"error,omitempty"`
	Code         string        `json:"code,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	Attempts     int           `json:"attempts"`
	ResponseTime time.Duration `json:"response_time"`
	Timestamp    time.Time     `json:"timestamp"`
}

type Result struct {
	Total     int           `json:"total"`
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	Items     []OutputItem  `json:"items"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		RatePerSecond:  5,
		Burst:          3,
		Timeout:        60 * time.Second,
		RetryCount:     1,
		RetryDelay:     500 * time.Millisecond,
	}
}

func ConfigFrom(cfg config.BatchConfig) Config {
	c := DefaultConfig()
	if cfg.Concurrency > 0 {
		c.MaxConcurrency = cfg.Concurrency
	}
	if cfg.RatePerSecond > 0 {
		c.RatePerSecond = cfg.RatePerSecond
	}
	if cfg.Burst > 0 {
		c.Burst = cfg.Burst
	}
	if cfg.TimeoutSeconds > 0 {
		c.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.RetryCount >= 0 {
		c.RetryCount = cfg.RetryCount
	}
	return c
}

func NewProcessor(signer Signer, cfg Config, logger *zap.Logger) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{signer: signer, config: cfg, logger: logger}
	if cfg.RatePerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.Burst, 1))
	}
	return p
}

// Sign applies req to every document. Duplicate and blank IDs are skipped;
// results keep the order of docIDs.
func (p *Processor) Sign(ctx context.Context, docIDs []string, req workflow.SignRequest) (*Result, error) {
	if len(docIDs) == 0 {
		return nil, apperrors.ErrBadRequest.Withf("no documents to sign")
	}

	startTime := time.Now()
	result := &Result{
		Total:     len(docIDs),
		StartTime: startTime,
		Items:     make([]OutputItem, len(docIDs)),
	}

	type job struct {
		index int
		id    string
	}
	jobs := make(chan job, len(docIDs))
	seen := make(map[string]bool, len(docIDs))
	for i, id := range docIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			result.Items[i] = OutputItem{DocumentID: id, Error: "skipped", Timestamp: time.Now()}
			continue
		}
		seen[id] = true
		jobs <- job{index: i, id: id}
	}
	close(jobs)

	concurrency := min(p.config.MaxConcurrency, len(seen))
	p.logger.Info("Starting batch signing",
		zap.Int("total_items", len(docIDs)),
		zap.Int("concurrency", concurrency),
		zap.Float64("rate_per_second", p.config.RatePerSecond))

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				result.Items[j.index] = p.processItem(ctx, j.id, req)
			}
		}()
	}
	wg.Wait()

	for _, item := range result.Items {
		switch {
		case item.Success:
			result.Success++
			metrics.RecordBatchItem("success")
		case item.Error == "skipped":
			result.Skipped++
			metrics.RecordBatchItem("skipped")
		default:
			result.Failed++
			metrics.RecordBatchItem("failed")
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	p.logger.Info("Batch signing finished",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", result.Duration))
	return result, ctx.Err()
}

func (p *Processor) processItem(ctx context.Context, docID string, req workflow.SignRequest) OutputItem {
	output := OutputItem{DocumentID: docID, Timestamp: time.Now()}

	var res *workflow.SignResult
	var err error
	for attempt := 0; attempt <= p.config.RetryCount; attempt++ {
		if p.limiter != nil {
			if err = p.limiter.Wait(ctx); err != nil {
				break
			}
		}

		processCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		start := time.Now()
		res, err = p.signer.Sign(processCtx, docID, req)
		output.ResponseTime = time.Since(start)
		output.Attempts = attempt + 1
		cancel()

		if err == nil || !retryable(err) {
			break
		}
		if attempt < p.config.RetryCount {
			select {
			case <-time.After(p.config.RetryDelay):
			case <-ctx.Done():
			}
		}
	}

	if err != nil {
		output.Error = err.Error()
		output.Code = apperrors.GetCode(err)
		p.logger.Warn("Batch item failed", zap.String("document_id", docID), zap.Error(err))
		return output
	}

	output.Success = true
	output.Digest = res.Digest
	for _, w := range res.Warnings {
		output.Warnings = append(output.Warnings, w.Error())
	}
	return output
}

// retryable reports errors worth another attempt. Input, geometry and
// not-found errors fail the same way every time.
func retryable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindInput, apperrors.KindGeometry, apperrors.KindNotFound, apperrors.KindAuth:
		return false
	}
	return true
}

func (r *Result) Summary() string {
	var sb strings.Builder
	sb.WriteString("=== Batch Signing Summary ===\n")
	sb.WriteString(fmt.Sprintf("Total:     %d\n", r.Total))
	sb.WriteString(fmt.Sprintf("Success:   %d\n", r.Success))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", r.Skipped))
	sb.WriteString(fmt.Sprintf("Duration:  %v\n", r.Duration))
	return sb.String()
}

func (r *Result) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
