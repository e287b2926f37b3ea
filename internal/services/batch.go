package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	applog "CERT-PDF/internal/logger"
	"CERT-PDF/internal/processor"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// BatchInput is everything one generation run needs. Document is parsed from
// Template when nil.
type BatchInput struct {
	Template   []byte
	Document   *processor.Document
	Fields     []processor.Field
	Recipients []processor.Recipient
	Course     *processor.Course
	Teams      map[string]processor.Team // by team name
}

// BatchReport is the final tally of a run.
type BatchReport struct {
	Results   []processor.GenerationResult `json:"results"`
	Total     int                          `json:"total"`
	Succeeded int                          `json:"succeeded"`
	Failed    int                          `json:"failed"`
	Cancelled bool                         `json:"cancelled"`
}

// BatchGenerator renders certificates one recipient at a time, in input order.
type BatchGenerator struct {
	renderer *processor.Renderer
	limiter  *rate.Limiter
	now      func() time.Time
	logger   *zap.Logger
}

// NewBatchGenerator returns a generator that waits interval between
// recipients. Zero means no pacing.
func NewBatchGenerator(renderer *processor.Renderer, interval time.Duration, logger *zap.Logger) *BatchGenerator {
	logger = applog.OrNop(logger)
	g := &BatchGenerator{renderer: renderer, now: time.Now, logger: logger}
	if interval > 0 {
		g.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
	return g
}

// NewFolio returns a fresh certificate serial for the given time.
func NewFolio(t time.Time) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("CONST-%d-%s", t.Year(), strings.ToUpper(id[:8]))
}

// AssignFolios gives every recipient without a folio a new one, in place.
func AssignFolios(recipients []processor.Recipient, now time.Time) {
	for i := range recipients {
		if strings.TrimSpace(recipients[i].Folio) == "" {
			recipients[i].Folio = NewFolio(now)
		}
	}
}

func (in *BatchInput) prepare() error {
	if in.Document != nil {
		return nil
	}
	doc, err := processor.Load(in.Template)
	if err != nil {
		return fmt.Errorf("%w: %w", processor.ErrBatchAborted, err)
	}
	in.Document = doc
	return nil
}

func (in *BatchInput) contextFor(r *processor.Recipient) *processor.Context {
	ctx := &processor.Context{Course: in.Course}
	if team, ok := in.Teams[r.Team]; ok && r.Team != "" {
		ctx.Team = &team
	}
	return ctx
}

// Stream returns the per-recipient results as a sequence. The template is
// loaded up front: if it cannot be, the error matches processor.ErrBatchAborted
// and no recipient is attempted. Cancelling ctx stops the sequence between
// recipients.
func (g *BatchGenerator) Stream(ctx context.Context, in BatchInput) (iter.Seq[processor.GenerationResult], error) {
	if err := in.prepare(); err != nil {
		return nil, err
	}
	return func(yield func(processor.GenerationResult) bool) {
		for i := range in.Recipients {
			if ctx.Err() != nil {
				return
			}
			if g.limiter != nil && i > 0 {
				if err := g.limiter.Wait(ctx); err != nil {
					return
				}
			}
			if !yield(g.generateOne(&in, i)) {
				return
			}
		}
	}, nil
}

// GenerateAll runs the whole batch, calling onResult after each recipient.
func (g *BatchGenerator) GenerateAll(ctx context.Context, in BatchInput, onResult func(processor.GenerationResult)) (*BatchReport, error) {
	seq, err := g.Stream(ctx, in)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Total: len(in.Recipients), Results: make([]processor.GenerationResult, 0, len(in.Recipients))}
	for res := range seq {
		report.Results = append(report.Results, res)
		if res.OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
		if onResult != nil {
			onResult(res)
		}
	}
	report.Cancelled = len(report.Results) < report.Total
	return report, nil
}

// Regenerate re-runs one recipient by position.
func (g *BatchGenerator) Regenerate(ctx context.Context, in BatchInput, index int) (processor.GenerationResult, error) {
	if err := in.prepare(); err != nil {
		return processor.GenerationResult{}, err
	}
	if index < 0 || index >= len(in.Recipients) {
		return processor.GenerationResult{}, fmt.Errorf("recipient index %d out of range [0,%d)", index, len(in.Recipients))
	}
	if err := ctx.Err(); err != nil {
		return processor.GenerationResult{}, err
	}
	return g.generateOne(&in, index), nil
}

func (g *BatchGenerator) generateOne(in *BatchInput, index int) (res processor.GenerationResult) {
	r := in.Recipients[index]
	res = processor.GenerationResult{Index: index, Recipient: r}

	defer func() {
		if p := recover(); p != nil {
			res.Certificate = nil
			res.Err = &processor.RenderError{Op: "draw", Index: index, Err: fmt.Errorf("panic: %v", p)}
		}
		if res.Err != nil {
			g.logger.Warn("Recipient failed",
				zap.Int("index", index),
				zap.String("recipient", r.Name),
				zap.Error(res.Err))
		}
	}()

	if strings.TrimSpace(r.Folio) == "" {
		r.Folio = NewFolio(g.now())
		res.Recipient = r
	}

	out, err := g.renderer.Render(in.Document, in.Fields, &r, in.contextFor(&r))
	if err != nil {
		var re *processor.RenderError
		if errors.As(err, &re) {
			re.Index = index
		}
		res.Err = err
		return res
	}

	res.Certificate = &processor.GeneratedCertificate{
		Index:     index,
		Recipient: r,
		Bytes:     out.Bytes,
		Filename:  processor.CertificateFilename(r.Name),
	}
	return res
}
