package labels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/sequence"
	"backoffice/internal/domain/audit"
	"backoffice/internal/domain/barcode"
	"backoffice/pkg/logger"
)

var tracer = otel.Tracer("backoffice/labels")

// State is a pipeline stage.
type State string

const (
	StateStart            State = "start"
	StateBatchCreated     State = "batch_created"
	StateArtifactProduced State = "artifact_produced"
	StateRolledBack       State = "rolled_back"
)

// Stage names reported in PartialFailure details.
const (
	StageRender  = "render"
	StagePublish = "publish"
)

// Failure reasons reported next to the stage.
const (
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonUnrenderable  = "unrenderable"
	ReasonEmptyArtifact = "empty_artifact"
	ReasonUnavailable   = "unavailable"
	ReasonFailed        = "failed"
)

// ErrEmptyArtifact is returned when the renderer succeeds with no bytes.
var ErrEmptyArtifact = errors.New("renderer produced an empty artifact")

const artifactContentType = "application/pdf"

// Timeouts bounds each phase independently. Zero means no extra bound.
type Timeouts struct {
	Transaction  time.Duration
	Render       time.Duration
	Compensation time.Duration
}

// BatchCreator is the transactional half of the pipeline.
type BatchCreator interface {
	CreateBatch(ctx context.Context, req barcode.BatchRequest) ([]*barcode.Barcode, error)
}

// Pipeline commits a batch, then renders (and optionally publishes) it.
// Any failure after commit deletes the batch again.
type Pipeline struct {
	creator   BatchCreator
	repo      barcode.Repository
	products  barcode.ProductReader
	renderer  Renderer
	publisher Publisher
	audit     audit.Recorder
	timeouts  Timeouts
	now       func() time.Time

	// observe, when set, receives every state transition.
	observe func(State)
}

// PipelineConfig configures Pipeline. Publisher and Audit are optional.
type PipelineConfig struct {
	Creator   BatchCreator
	Repo      barcode.Repository
	Products  barcode.ProductReader
	Renderer  Renderer
	Publisher Publisher
	Audit     audit.Recorder
	Timeouts  Timeouts
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		creator:   cfg.Creator,
		repo:      cfg.Repo,
		products:  cfg.Products,
		renderer:  cfg.Renderer,
		publisher: cfg.Publisher,
		audit:     audit.OrNop(cfg.Audit),
		timeouts:  cfg.Timeouts,
		now:       time.Now,
	}
}

// OnTransition registers a state observer. Intended for tests and tracing.
func (p *Pipeline) OnTransition(fn func(State)) {
	p.observe = fn
}

type run struct {
	state   State
	records []*barcode.Barcode
}

func (p *Pipeline) transition(ctx context.Context, r *run, to State) {
	logger.Debug(ctx, "label pipeline transition", "from", r.state, "to", to)
	r.state = to
	if p.observe != nil {
		p.observe(to)
	}
}

// AllocateAndRender runs Start -> BatchCreated -> ArtifactProduced, or
// BatchCreated -> RolledBack when rendering or publishing fails. In the
// latter case the error is a PartialFailure whose cause is the stage error.
func (p *Pipeline) AllocateAndRender(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "labels.allocate_and_render")
	defer span.End()
	span.SetAttributes(attribute.String("labels.prefix", req.Prefix), attribute.Int("labels.count", req.Count))

	res, err := p.allocateAndRender(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (p *Pipeline) allocateAndRender(ctx context.Context, req Request) (*Result, error) {
	r := &run{state: StateStart}

	batchReq := req.batch()
	if err := batchReq.Validate(); err != nil {
		return nil, err
	}

	// Product is read up front: an unknown product fails before anything is
	// committed, and captions need it anyway.
	product, err := p.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	records, err := p.createBatch(ctx, batchReq)
	if err != nil {
		return nil, err
	}
	r.records = records
	p.transition(ctx, r, StateBatchCreated)

	artifact, err := p.render(ctx, BuildLabels(records, product))
	if err != nil {
		return nil, p.rollBack(ctx, r, StageRender, err)
	}

	key := p.artifactKey(req.Prefix, records)
	if p.publisher != nil {
		if err := p.publisher.WriteFile(ctx, key, artifact, artifactContentType); err != nil {
			return nil, p.rollBack(ctx, r, StagePublish, err)
		}
	}

	p.transition(ctx, r, StateArtifactProduced)
	return &Result{
		ArtifactKey: key,
		Artifact:    artifact,
		ContentType: artifactContentType,
		Records:     records,
	}, nil
}

func (p *Pipeline) createBatch(ctx context.Context, req barcode.BatchRequest) ([]*barcode.Barcode, error) {
	if p.timeouts.Transaction > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Transaction)
		defer cancel()
	}
	return p.creator.CreateBatch(ctx, req)
}

func (p *Pipeline) render(ctx context.Context, labels []Label) ([]byte, error) {
	if p.timeouts.Render > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeouts.Render)
		defer cancel()
	}

	artifact, err := p.renderer.Render(ctx, labels)
	if err != nil {
		return nil, err
	}
	if len(artifact) == 0 {
		return nil, ErrEmptyArtifact
	}
	return artifact, nil
}

// rollBack deletes the committed batch. The returned error always carries
// cause; a failed delete is logged and audited as orphaned records.
func (p *Pipeline) rollBack(ctx context.Context, r *run, stage string, cause error) error {
	ids := barcode.IDs(r.records)
	serials := barcode.Serials(r.records)

	// The caller's ctx may already be cancelled (render timeout); cleanup
	// must still run.
	cctx := context.WithoutCancel(ctx)
	if p.timeouts.Compensation > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, p.timeouts.Compensation)
		defer cancel()
	}

	logger.Warn(ctx, "label pipeline failed after commit, compensating",
		"stage", stage, "count", len(ids), "error", cause)

	deleted, err := p.repo.DeleteByIDs(cctx, ids)
	switch {
	case err != nil:
		logger.Error(ctx, "compensation failed, orphaned records remain",
			"stage", stage, "ids", id.Strings(ids), "serials", serials, "error", err)
		p.record(cctx, audit.ActionCompensationFailed, r.records, map[string]any{
			"stage": stage,
			"cause": cause.Error(),
			"error": err.Error(),
		})
	case deleted != int64(len(ids)):
		logger.Warn(ctx, "compensation deleted fewer records than committed",
			"expected", len(ids), "deleted", deleted, "serials", serials)
		p.record(cctx, audit.ActionBatchCompensated, r.records, map[string]any{
			"stage": stage, "deleted": deleted,
		})
	default:
		p.record(cctx, audit.ActionBatchCompensated, r.records, map[string]any{
			"stage": stage, "deleted": deleted,
		})
	}

	p.transition(ctx, r, StateRolledBack)
	return partialFailure(stage, cause)
}

// partialFailure tells the caller why the stage failed without exposing the
// raw cause text.
func partialFailure(stage string, cause error) *apperror.AppError {
	appErr := apperror.NewPartialFailure(stage, cause)

	var serialErr SerialError
	switch {
	case errors.As(cause, &serialErr):
		return appErr.WithDetail("reason", ReasonUnrenderable).WithDetail("serial", serialErr.FailedSerial())
	case errors.Is(cause, context.DeadlineExceeded):
		return appErr.WithDetail("reason", ReasonTimeout)
	case errors.Is(cause, context.Canceled):
		return appErr.WithDetail("reason", ReasonCanceled)
	case errors.Is(cause, ErrEmptyArtifact):
		return appErr.WithDetail("reason", ReasonEmptyArtifact)
	case apperror.HasCode(cause, apperror.CodeUnavailable):
		return appErr.WithDetail("reason", ReasonUnavailable)
	default:
		return appErr.WithDetail("reason", ReasonFailed)
	}
}

func (p *Pipeline) record(ctx context.Context, action audit.Action, records []*barcode.Barcode, payload map[string]any) {
	payload["ids"] = id.Strings(barcode.IDs(records))
	payload["serials"] = barcode.Serials(records)
	subject := ""
	if len(records) > 0 {
		subject = prefixOf(records[0].Serial)
	}
	if err := p.audit.Record(ctx, action, subject, payload); err != nil {
		logger.Warn(ctx, "audit write failed", "action", action, "error", err)
	}
}

// artifactKey is <prefix>/<yyyy>/<mm>/<dd>/<first>-<last>-<batch>.pdf.
func (p *Pipeline) artifactKey(prefix string, records []*barcode.Barcode) string {
	day := p.now().UTC().Format("2006/01/02")
	first, last := records[0].Serial, records[len(records)-1].Serial
	return fmt.Sprintf("%s/%s/%s-%s-%s.pdf", prefix, day, first, last, records[0].ID.String()[:8])
}

// prefixOf strips the fixed-width barcode digits from serial.
func prefixOf(serial string) string {
	width := sequence.KindBarcode.Width()
	if len(serial) <= width {
		return serial
	}
	return serial[:len(serial)-width]
}
