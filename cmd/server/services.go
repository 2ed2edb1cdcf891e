package main

import (
	"time"

	"backoffice/internal/config"
	"backoffice/internal/core/sequence"
	"backoffice/internal/domain/barcode"
	"backoffice/internal/domain/employee"
	"backoffice/internal/domain/labels"
	"backoffice/internal/domain/payslip"
	"backoffice/internal/infrastructure/cache"
	"backoffice/internal/infrastructure/objectstore"
	"backoffice/internal/infrastructure/render"
	infraseq "backoffice/internal/infrastructure/sequence"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/internal/infrastructure/storage/postgres/label_repo"
)

type services struct {
	counters  *infraseq.CounterService
	products  *cache.ProductCache
	labels    *labels.Service
	employees *employee.Service
	payslips  *payslip.Service
}

// allocator is what the label pipeline needs from a barcode strategy.
type allocator interface {
	sequence.BatchAllocator
	sequence.Previewer
}

func buildServices(txManager *postgres.TxManager, artifacts objectstore.Store, cfg *config.Config) (*services, error) {
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		return nil, err
	}

	counters := infraseq.NewCounterService(txManager, auditService)
	barcodes := label_repo.NewBarcodeRepo(txManager)
	products := cache.NewProductCache(label_repo.NewProductRepo(txManager))

	scan := infraseq.NewScanAllocator(txManager, txManager, barcodes, cfg.Labels.ScanWindow)
	var alloc allocator = scan
	if cfg.Labels.Strategy == config.StrategyCounter {
		alloc = infraseq.NewCounterBatchAllocator(txManager, counters, counters, scan)
	}

	retry := barcode.DefaultRetryPolicy()
	if cfg.Labels.MaxRetries >= 0 {
		retry.MaxRetries = uint64(cfg.Labels.MaxRetries)
	}
	creator := barcode.NewBatchCreator(barcode.BatchCreatorConfig{
		TxManager: txManager,
		Repo:      barcodes,
		Allocator: alloc,
		Audit:     auditService,
		Retry:     retry,
	})

	renderer := render.NewLabelRenderer(render.Config{
		Geometry: render.A4(cfg.Labels.Columns, cfg.Labels.RowHeightMM, cfg.Labels.MarginMM),
		Workers:  cfg.Labels.RenderWorkers,
	})

	pipeline := labels.NewPipeline(labels.PipelineConfig{
		Creator:   creator,
		Repo:      barcodes,
		Products:  products,
		Renderer:  renderer,
		Publisher: artifacts,
		Audit:     auditService,
		Timeouts: labels.Timeouts{
			Transaction:  cfg.Labels.TxTimeout,
			Render:       cfg.Labels.RenderTimeout,
			Compensation: nonZero(cfg.Labels.CompensationTimeout, 10*time.Second),
		},
	})

	return &services{
		counters:  counters,
		products:  products,
		labels:    labels.NewService(pipeline, alloc),
		employees: employee.NewService(counters, counters),
		payslips:  payslip.NewService(counters),
	}, nil
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
