package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/internal/core/apperror"
	"backoffice/internal/domain/barcode"
	"backoffice/internal/domain/employee"
	"backoffice/internal/domain/labels"
	"backoffice/internal/domain/payslip"
	v1 "backoffice/internal/infrastructure/http/v1"
	"backoffice/internal/infrastructure/objectstore"
	"backoffice/internal/infrastructure/render"
	infraseq "backoffice/internal/infrastructure/sequence"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/internal/testutil"
	"backoffice/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type renderFunc func(ctx context.Context, items []labels.Label) ([]byte, error)

func (f renderFunc) Render(ctx context.Context, items []labels.Label) ([]byte, error) {
	return f(ctx, items)
}

// memIdempotency mirrors the sys_idempotency state machine.
type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyRecord
}

func (m *memIdempotency) AcquireKey(_ context.Context, key, actor, operation, requestHash string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = make(map[string]*postgres.IdempotencyRecord)
	}
	rec, ok := m.entries[key]
	if !ok {
		m.entries[key] = &postgres.IdempotencyRecord{
			Key: key, Actor: actor, Operation: operation, RequestHash: requestHash,
			Status: postgres.IdempotencyStatusPending,
		}
		return nil, nil
	}
	if rec.RequestHash != requestHash || rec.Operation != operation {
		return nil, apperror.NewIdempotencyMismatch(key)
	}
	if rec.Status == postgres.IdempotencyStatusPending {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	return &postgres.IdempotencyReplay{StatusCode: rec.StatusCode, ContentType: rec.ContentType, Body: rec.Response}, nil
}

func (m *memIdempotency) finish(key string, status postgres.IdempotencyStatus, code int, ct string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.entries[key]
	rec.Status, rec.StatusCode, rec.ContentType = status, code, ct
	rec.Response = append([]byte(nil), body...)
	return nil
}

func (m *memIdempotency) CompleteKey(_ context.Context, key string, code int, ct string, body []byte) error {
	return m.finish(key, postgres.IdempotencyStatusSuccess, code, ct, body)
}

func (m *memIdempotency) FailKey(_ context.Context, key string, code int, ct string, body []byte) error {
	return m.finish(key, postgres.IdempotencyStatusFailed, code, ct, body)
}

func (m *memIdempotency) ReleaseKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memIdempotency) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

type server struct {
	t       *testing.T
	store   *testutil.MemStore
	product *barcode.Product
	idem    *memIdempotency
	handler http.Handler
	dbErr   error
}

func newServer(t *testing.T, r labels.Renderer) *server {
	t.Helper()

	store := testutil.NewMemStore()
	product := store.AddProduct(barcode.Product{Name: "Nitrile gloves", PackQuantity: decimal.NewFromInt(100)})
	artifacts, err := objectstore.NewLocal(t.TempDir())
	require.NoError(t, err)

	scan := infraseq.NewScanAllocator(store, store, store, 0)
	allocator := infraseq.NewCounterBatchAllocator(store, store, store, scan)
	creator := barcode.NewBatchCreator(barcode.BatchCreatorConfig{TxManager: store, Repo: store, Allocator: allocator})
	pipeline := labels.NewPipeline(labels.PipelineConfig{
		Creator: creator, Repo: store, Products: store, Renderer: r, Publisher: artifacts,
	})

	s := &server{t: t, store: store, product: product, idem: &memIdempotency{}}
	s.handler = v1.NewRouter(v1.RouterConfig{
		Logger:      logger.Default(),
		DB:          pingFunc(func(context.Context) error { return s.dbErr }),
		Labels:      labels.NewService(pipeline, allocator),
		Employees:   employee.NewService(store, store),
		Payslips:    payslip.NewService(store),
		Sequences:   store,
		Artifacts:   artifacts,
		Idempotency: s.idem,
	})
	return s
}

func okRenderer() renderFunc {
	return func(_ context.Context, items []labels.Label) ([]byte, error) {
		return []byte("%PDF-1.3 " + items[0].Serial), nil
	}
}

func (s *server) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *server) labelsBody(count int) map[string]any {
	return map[string]any{"productId": s.product.ID.String(), "count": count, "prefix": "BX"}
}

func TestLabels_GenerateAndFetchArtifact(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(2), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, float64(2), body["createdCount"])
	assert.Equal(t, []any{"BX000001", "BX000002"}, body["identifiers"])
	key := body["artifactKey"].(string)

	w = s.do(http.MethodGet, "/api/v1/labels/artifacts/"+key, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.3 BX000001", w.Body.String())

	w = s.do(http.MethodDelete, "/api/v1/labels/artifacts/"+key, nil, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/v1/labels/artifacts/"+key, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting the sheet does not release the serials.
	assert.Equal(t, []string{"BX000001", "BX000002"}, s.store.Serials())
}

func TestLabels_PDFWhenAccepted(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(1), map[string]string{"Accept": "application/pdf"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Artifact-Key"))
	assert.Equal(t, "%PDF-1.3 BX000001", w.Body.String())
}

func TestLabels_Validation(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodPost, "/api/v1/labels", map[string]any{"productId": "nope", "count": 1, "prefix": "BX"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, apperror.CodeValidation, decode(t, w)["code"])

	w = s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(101), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/labels/artifacts/../etc/passwd", nil, nil)
	assert.NotEqual(t, http.StatusOK, w.Code)

	assert.Empty(t, s.store.Serials())
}

func TestLabels_RenderFailureIsPartialFailure(t *testing.T) {
	s := newServer(t, renderFunc(func(context.Context, []labels.Label) ([]byte, error) {
		return nil, errors.New("printer font missing")
	}))

	w := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(3), map[string]string{"X-Idempotency-Key": "k-fail"})
	require.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode(t, w)
	assert.Equal(t, apperror.CodePartialFailure, body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, "render", details["stage"])
	assert.Equal(t, labels.ReasonFailed, details["reason"])
	assert.NotContains(t, w.Body.String(), "printer font missing")
	assert.Empty(t, s.store.Serials())

	// Server errors release the key so the client can retry with it.
	assert.False(t, s.idem.has("k-fail"))
}

func TestLabels_NextSerialPreview(t *testing.T) {
	s := newServer(t, okRenderer())
	s.store.SeedSerials(s.product.ID, "BX000041")

	w := s.do(http.MethodGet, "/api/v1/labels/next-serial?prefix=BX", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "BX000042", decode(t, w)["id"])

	w = s.do(http.MethodGet, "/api/v1/labels/next-serial", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotency_ReplaysBatch(t *testing.T) {
	s := newServer(t, okRenderer())
	headers := map[string]string{"X-Idempotency-Key": "batch-1"}

	first := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(2), headers)
	require.Equal(t, http.StatusCreated, first.Code)

	second := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(2), headers)
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	assert.Len(t, s.store.Serials(), 2)

	// Same key, different body.
	third := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(3), headers)
	assert.Equal(t, http.StatusConflict, third.Code)
	assert.Len(t, s.store.Serials(), 2)
}

func TestIdempotency_ClientErrorIsStored(t *testing.T) {
	s := newServer(t, okRenderer())
	headers := map[string]string{"X-Idempotency-Key": "bad-1"}

	first := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(0), headers)
	require.Equal(t, http.StatusBadRequest, first.Code)

	second := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(0), headers)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestEmployees_Endpoints(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodPost, "/api/v1/employees/ids", map[string]any{"prefix": "FE"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/v1/employees/ids", map[string]any{"prefix": "FE", "createPrefix": true}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "FE001", decode(t, w)["id"])

	w = s.do(http.MethodGet, "/api/v1/employees/next-id?prefix=FE", nil, nil)
	assert.Equal(t, "FE002", decode(t, w)["id"])

	w = s.do(http.MethodPost, "/api/v1/employees/ids/learn", map[string]any{"employeeId": "FE010"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	learned := decode(t, w)
	assert.Equal(t, float64(11), learned["nextValue"])
	assert.Equal(t, "FE011", learned["nextId"])

	w = s.do(http.MethodPost, "/api/v1/employees/ids/learn", map[string]any{"employeeId": "FE-10"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayslips_Endpoints(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodGet, "/api/v1/payslips/next-id", nil, nil)
	assert.Equal(t, "MIS00001", decode(t, w)["id"])

	w = s.do(http.MethodPost, "/api/v1/payslips/ids", nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "MIS00001", decode(t, w)["id"])

	w = s.do(http.MethodGet, "/api/v1/payslips/next-id", nil, nil)
	assert.Equal(t, "MIS00002", decode(t, w)["id"])
}

func TestSequences_Lifecycle(t *testing.T) {
	s := newServer(t, okRenderer())

	w := s.do(http.MethodPost, "/api/v1/sequences", map[string]any{"key": "EMPLOYEE:QA", "nextValue": 40}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "employee", created["kind"])
	assert.Equal(t, "QA040", created["nextId"])

	w = s.do(http.MethodPost, "/api/v1/sequences", map[string]any{"key": "EMPLOYEE:QA"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/api/v1/sequences", map[string]any{"key": "BADGE:QA"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/api/v1/sequences/EMPLOYEE:QA/active", map[string]any{"active": false}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["active"])

	w = s.do(http.MethodPost, "/api/v1/employees/ids", map[string]any{"prefix": "QA"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeSequenceDisabled, decode(t, w)["code"])

	w = s.do(http.MethodGet, "/api/v1/sequences/EMPLOYEE:QA", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(40), decode(t, w)["nextValue"])

	w = s.do(http.MethodGet, "/api/v1/sequences/EMPLOYEE:ZZ", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t, okRenderer())

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", nil, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", nil, nil).Code)

	s.dbErr = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, s.do(http.MethodGet, "/health/ready", nil, nil).Code)
}

func TestLabels_RenderFailureNamesUnrenderableSerial(t *testing.T) {
	s := newServer(t, render.NewLabelRenderer(render.Config{
		Encoder: func(serial string, tier render.Tier) (*render.Raster, error) {
			if serial == "BX000002" {
				return nil, errors.New("bad module width")
			}
			return render.Code128(serial, tier)
		},
	}))

	w := s.do(http.MethodPost, "/api/v1/labels", s.labelsBody(3), nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	details := decode(t, w)["details"].(map[string]any)
	assert.Equal(t, "render", details["stage"])
	assert.Equal(t, labels.ReasonUnrenderable, details["reason"])
	assert.Equal(t, "BX000002", details["serial"])
	assert.Empty(t, s.store.Serials())
}
