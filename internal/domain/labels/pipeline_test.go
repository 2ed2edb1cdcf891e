package labels_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/audit"
	"backoffice/internal/domain/barcode"
	"backoffice/internal/domain/labels"
	infraseq "backoffice/internal/infrastructure/sequence"
	"backoffice/internal/testutil"
)

type renderFunc func(ctx context.Context, items []labels.Label) ([]byte, error)

func (f renderFunc) Render(ctx context.Context, items []labels.Label) ([]byte, error) {
	return f(ctx, items)
}

func okRenderer() renderFunc {
	return func(_ context.Context, items []labels.Label) ([]byte, error) {
		return []byte("%PDF-1.3 " + items[0].Serial), nil
	}
}

type memPublisher struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (p *memPublisher) WriteFile(_ context.Context, key string, data []byte, _ string) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.files == nil {
		p.files = make(map[string][]byte)
	}
	p.files[key] = data
	return nil
}

type fixture struct {
	store     *testutil.MemStore
	audit     *testutil.AuditLog
	product   *barcode.Product
	publisher *memPublisher
	allocator *infraseq.CounterBatchAllocator
}

func newFixture() *fixture {
	store := testutil.NewMemStore()
	product := store.AddProduct(barcode.Product{Name: "Nitrile gloves", PackQuantity: decimal.NewFromInt(100)})
	scan := infraseq.NewScanAllocator(store, store, store, 0)
	return &fixture{
		store:     store,
		audit:     &testutil.AuditLog{},
		product:   product,
		publisher: &memPublisher{},
		allocator: infraseq.NewCounterBatchAllocator(store, store, store, scan),
	}
}

func (f *fixture) pipeline(r labels.Renderer, timeouts labels.Timeouts) *labels.Pipeline {
	creator := barcode.NewBatchCreator(barcode.BatchCreatorConfig{
		TxManager: f.store,
		Repo:      f.store,
		Allocator: f.allocator,
		Audit:     f.audit,
	})
	return labels.NewPipeline(labels.PipelineConfig{
		Creator:   creator,
		Repo:      f.store,
		Products:  f.store,
		Renderer:  r,
		Publisher: f.publisher,
		Audit:     f.audit,
		Timeouts:  timeouts,
	})
}

func (f *fixture) req(count int) labels.Request {
	return labels.Request{ProductID: f.product.ID, Prefix: "BX", Count: count}
}

func recordStates(p *labels.Pipeline) *[]labels.State {
	var states []labels.State
	p.OnTransition(func(s labels.State) { states = append(states, s) })
	return &states
}

func TestAllocateAndRender_Success(t *testing.T) {
	f := newFixture()
	p := f.pipeline(okRenderer(), labels.Timeouts{})
	states := recordStates(p)

	res, err := p.AllocateAndRender(context.Background(), f.req(3))
	require.NoError(t, err)

	assert.Equal(t, []string{"BX000001", "BX000002", "BX000003"}, res.Identifiers())
	assert.Equal(t, 3, res.CreatedCount())
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Regexp(t, `^BX/\d{4}/\d{2}/\d{2}/BX000001-BX000003-[0-9a-f]{8}\.pdf$`, res.ArtifactKey)
	assert.Equal(t, res.Artifact, f.publisher.files[res.ArtifactKey])
	assert.Equal(t, []labels.State{labels.StateBatchCreated, labels.StateArtifactProduced}, *states)
	assert.Empty(t, f.audit.ByAction(audit.ActionBatchCompensated))
}

func TestAllocateAndRender_CaptionsCarryProduct(t *testing.T) {
	f := newFixture()
	var seen []labels.Label
	r := renderFunc(func(_ context.Context, items []labels.Label) ([]byte, error) {
		seen = items
		return []byte("%PDF"), nil
	})

	_, err := f.pipeline(r, labels.Timeouts{}).AllocateAndRender(context.Background(), f.req(2))
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "Nitrile gloves", seen[0].ProductName)
	assert.True(t, decimal.NewFromInt(100).Equal(seen[1].PackQuantity))
}

func TestAllocateAndRender_RenderFailureCompensates(t *testing.T) {
	f := newFixture()
	f.store.SeedSerials(f.product.ID, "BX000001", "BX000002", "BX000003")
	renderErr := errors.New("font missing")
	p := f.pipeline(renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, renderErr
	}), labels.Timeouts{})
	states := recordStates(p)

	res, err := p.AllocateAndRender(context.Background(), f.req(5))
	assert.Nil(t, res)
	require.Error(t, err)

	assert.True(t, apperror.HasCode(err, apperror.CodePartialFailure))
	assert.ErrorIs(t, err, renderErr)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, labels.StageRender, appErr.Details["stage"])

	assert.Equal(t, []string{"BX000001", "BX000002", "BX000003"}, f.store.Serials())
	assert.Equal(t, []labels.State{labels.StateBatchCreated, labels.StateRolledBack}, *states)

	compensated := f.audit.ByAction(audit.ActionBatchCompensated)
	require.Len(t, compensated, 1)
	assert.Equal(t, "BX", compensated[0].Subject)
	assert.Equal(t, int64(5), compensated[0].Payload["deleted"])
	assert.Empty(t, f.publisher.files)
}

func TestAllocateAndRender_CounterNeverReusesCompensatedNumbers(t *testing.T) {
	f := newFixture()
	failing := f.pipeline(renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, errors.New("boom")
	}), labels.Timeouts{})

	_, err := failing.AllocateAndRender(context.Background(), f.req(3))
	require.Error(t, err)
	assert.Empty(t, f.store.Serials())

	res, err := f.pipeline(okRenderer(), labels.Timeouts{}).AllocateAndRender(context.Background(), f.req(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"BX000004"}, res.Identifiers())
}

func TestAllocateAndRender_EmptyArtifactIsFailure(t *testing.T) {
	f := newFixture()
	p := f.pipeline(renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, nil
	}), labels.Timeouts{})

	_, err := p.AllocateAndRender(context.Background(), f.req(2))
	assert.True(t, apperror.HasCode(err, apperror.CodePartialFailure))
	assert.Empty(t, f.store.Serials())
}

func TestAllocateAndRender_RenderTimeoutStillCompensates(t *testing.T) {
	f := newFixture()
	p := f.pipeline(renderFunc(func(ctx context.Context, _ []labels.Label) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), labels.Timeouts{Render: 20 * time.Millisecond, Compensation: time.Second})

	_, err := p.AllocateAndRender(context.Background(), f.req(4))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, f.store.Serials())
	assert.Len(t, f.audit.ByAction(audit.ActionBatchCompensated), 1)
}

func TestAllocateAndRender_CallerCancelledDuringRender(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	p := f.pipeline(renderFunc(func(rctx context.Context, _ []labels.Label) ([]byte, error) {
		cancel()
		<-rctx.Done()
		return nil, rctx.Err()
	}), labels.Timeouts{})

	_, err := p.AllocateAndRender(ctx, f.req(2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.Serials())
}

func TestAllocateAndRender_PublishFailureCompensates(t *testing.T) {
	f := newFixture()
	f.publisher.err = apperror.NewUnavailable("object store", errors.New("503"))
	p := f.pipeline(okRenderer(), labels.Timeouts{})

	_, err := p.AllocateAndRender(context.Background(), f.req(2))
	require.Error(t, err)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodePartialFailure, appErr.Code)
	assert.Equal(t, labels.StagePublish, appErr.Details["stage"])
	assert.Empty(t, f.store.Serials())
}

func TestAllocateAndRender_FailedCompensationIsReported(t *testing.T) {
	f := newFixture()
	renderErr := errors.New("renderer crashed")
	f.store.FailDelete = errors.New("connection reset")
	p := f.pipeline(renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, renderErr
	}), labels.Timeouts{})

	_, err := p.AllocateAndRender(context.Background(), f.req(2))

	// The caller sees the render failure, not the cleanup failure.
	assert.ErrorIs(t, err, renderErr)
	assert.Equal(t, []string{"BX000001", "BX000002"}, f.store.Serials())

	failed := f.audit.ByAction(audit.ActionCompensationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, []string{"BX000001", "BX000002"}, failed[0].Payload["serials"])
	assert.Equal(t, "connection reset", failed[0].Payload["error"])
}

func TestAllocateAndRender_NothingCommittedBeforeValidation(t *testing.T) {
	f := newFixture()
	p := f.pipeline(okRenderer(), labels.Timeouts{})
	states := recordStates(p)

	_, err := p.AllocateAndRender(context.Background(), labels.Request{ProductID: f.product.ID, Prefix: "BX", Count: 0})
	assert.True(t, apperror.IsValidation(err))

	_, err = p.AllocateAndRender(context.Background(), labels.Request{ProductID: id.New(), Prefix: "BX", Count: 1})
	assert.True(t, apperror.IsNotFound(err))

	assert.Empty(t, *states)
	commits, _ := f.store.Stats()
	assert.Zero(t, commits)
}

func TestAllocateAndRender_WithoutPublisher(t *testing.T) {
	f := newFixture()
	creator := barcode.NewBatchCreator(barcode.BatchCreatorConfig{TxManager: f.store, Repo: f.store, Allocator: f.allocator})
	p := labels.NewPipeline(labels.PipelineConfig{
		Creator: creator, Repo: f.store, Products: f.store, Renderer: okRenderer(),
	})

	res, err := p.AllocateAndRender(context.Background(), f.req(1))
	require.NoError(t, err)
	assert.NotEmpty(t, res.Artifact)
}

func TestService_PreviewNextSerial(t *testing.T) {
	f := newFixture()
	f.store.SeedSerials(f.product.ID, "BX000009")
	svc := labels.NewService(f.pipeline(okRenderer(), labels.Timeouts{}), f.allocator)
	ctx := context.Background()

	next, err := svc.PreviewNextSerial(ctx, "BX")
	require.NoError(t, err)
	assert.Equal(t, "BX000010", next)

	// Previewing twice changes nothing.
	again, err := svc.PreviewNextSerial(ctx, "BX")
	require.NoError(t, err)
	assert.Equal(t, next, again)

	res, err := svc.GenerateLabels(ctx, f.product.ID, 2, "BX")
	require.NoError(t, err)
	assert.Equal(t, []string{"BX000010", "BX000011"}, res.Identifiers())

	next, err = svc.PreviewNextSerial(ctx, "BX")
	require.NoError(t, err)
	assert.Equal(t, "BX000012", next)

	_, err = svc.PreviewNextSerial(ctx, "bx")
	assert.True(t, apperror.IsValidation(err))
}

func TestAllocateAndRender_ScanStrategyReusesCompensatedNumbers(t *testing.T) {
	f := newFixture()
	scan := infraseq.NewScanAllocator(f.store, f.store, f.store, 0)
	pipeline := func(r labels.Renderer) *labels.Pipeline {
		creator := barcode.NewBatchCreator(barcode.BatchCreatorConfig{TxManager: f.store, Repo: f.store, Allocator: scan})
		return labels.NewPipeline(labels.PipelineConfig{Creator: creator, Repo: f.store, Products: f.store, Renderer: r})
	}

	_, err := pipeline(renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, errors.New("boom")
	})).AllocateAndRender(context.Background(), f.req(3))
	require.Error(t, err)

	// Deleted rows leave the scan window, so the frontier falls back.
	res, err := pipeline(okRenderer()).AllocateAndRender(context.Background(), f.req(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"BX000001"}, res.Identifiers())
}

type rasterFailure struct{ serial string }

func (e rasterFailure) Error() string        { return "rasterize " + e.serial + ": all tiers failed" }
func (e rasterFailure) FailedSerial() string { return e.serial }

func TestAllocateAndRender_PartialFailureReason(t *testing.T) {
	tests := []struct {
		name       string
		render     renderFunc
		publishErr error
		wantReason string
		wantSerial string
	}{
		{
			name: "unrenderable serial",
			render: func(_ context.Context, items []labels.Label) ([]byte, error) {
				return nil, fmt.Errorf("render labels: %w", rasterFailure{serial: items[1].Serial})
			},
			wantReason: labels.ReasonUnrenderable,
			wantSerial: "BX000002",
		},
		{
			name: "render timeout",
			render: func(ctx context.Context, _ []labels.Label) ([]byte, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			wantReason: labels.ReasonTimeout,
		},
		{
			name:       "empty artifact",
			render:     func(context.Context, []labels.Label) ([]byte, error) { return nil, nil },
			wantReason: labels.ReasonEmptyArtifact,
		},
		{
			name:       "object store down",
			render:     okRenderer(),
			publishErr: apperror.NewUnavailable("object store", errors.New("503")),
			wantReason: labels.ReasonUnavailable,
		},
		{
			name: "anything else",
			render: func(context.Context, []labels.Label) ([]byte, error) {
				return nil, errors.New("font missing")
			},
			wantReason: labels.ReasonFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.publisher.err = tt.publishErr
			p := f.pipeline(tt.render, labels.Timeouts{Render: 20 * time.Millisecond, Compensation: time.Second})

			_, err := p.AllocateAndRender(context.Background(), f.req(2))

			appErr, ok := apperror.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, apperror.CodePartialFailure, appErr.Code)
			assert.Equal(t, tt.wantReason, appErr.Details["reason"])
			if tt.wantSerial != "" {
				assert.Equal(t, tt.wantSerial, appErr.Details["serial"])
			} else {
				assert.NotContains(t, appErr.Details, "serial")
			}
		})
	}
}
