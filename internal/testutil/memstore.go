// Package testutil provides in-memory stand-ins for the PostgreSQL layer.
// MemStore serializes transactions with one mutex and restores its state
// when a transaction function fails, so allocation tests observe the same
// atomicity and ordering the database gives.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"backoffice/internal/core/apperror"
	"backoffice/internal/core/id"
	"backoffice/internal/core/sequence"
	"backoffice/internal/domain/barcode"
)

var (
	_ barcode.Repository    = (*MemStore)(nil)
	_ barcode.ProductReader = (*MemStore)(nil)
	_ sequence.Counter      = (*MemStore)(nil)
	_ sequence.Admin        = (*MemStore)(nil)
)

type memTxKey struct{}

// MemStore holds products, barcodes and counters.
type MemStore struct {
	mu       sync.Mutex
	products map[id.ID]*barcode.Product
	barcodes []*barcode.Barcode
	serials  map[string]struct{}
	counters map[string]sequence.Info

	// FailInsert, when set, is consulted before every InsertBatch.
	FailInsert func(items []*barcode.Barcode) error
	// FailDelete, when set, is returned by DeleteByIDs.
	FailDelete error

	commits   int
	rollbacks int
	locks     []string
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[id.ID]*barcode.Product),
		serials:  make(map[string]struct{}),
		counters: make(map[string]sequence.Info),
	}
}

type memSnapshot struct {
	barcodes []*barcode.Barcode
	serials  map[string]struct{}
	counters map[string]sequence.Info
}

func (s *MemStore) snapshot() memSnapshot {
	snap := memSnapshot{
		barcodes: append([]*barcode.Barcode(nil), s.barcodes...),
		serials:  make(map[string]struct{}, len(s.serials)),
		counters: make(map[string]sequence.Info, len(s.counters)),
	}
	for k := range s.serials {
		snap.serials[k] = struct{}{}
	}
	for k, v := range s.counters {
		snap.counters[k] = v
	}
	return snap
}

func (s *MemStore) restore(snap memSnapshot) {
	s.barcodes = snap.barcodes
	s.serials = snap.serials
	s.counters = snap.counters
}

// RunInTransaction implements tx.Manager. Nested calls join the outer one.
func (s *MemStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.InTransaction(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, s)); err != nil {
		s.restore(snap)
		s.rollbacks++
		return err
	}
	s.commits++
	return nil
}

// InTransaction implements tx.Detector.
func (s *MemStore) InTransaction(ctx context.Context) bool {
	owner, _ := ctx.Value(memTxKey{}).(*MemStore)
	return owner == s
}

// AdvisoryXactLock records the lock key. Transactions are already serialized.
func (s *MemStore) AdvisoryXactLock(ctx context.Context, key string) error {
	if !s.InTransaction(ctx) {
		return errors.New("advisory lock requires transaction context")
	}
	s.locks = append(s.locks, key)
	return nil
}

// with runs fn under the store mutex unless ctx already holds it.
func (s *MemStore) with(ctx context.Context, fn func()) {
	if s.InTransaction(ctx) {
		fn()
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// --- products ---

// AddProduct registers a product and returns it.
func (s *MemStore) AddProduct(p barcode.Product) *barcode.Product {
	if id.IsNil(p.ID) {
		p.ID = id.New()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
	return &p
}

// GetByID implements barcode.ProductReader.
func (s *MemStore) GetByID(ctx context.Context, productID id.ID) (*barcode.Product, error) {
	var (
		p  *barcode.Product
		ok bool
	)
	s.with(ctx, func() { p, ok = s.products[productID] })
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	cp := *p
	return &cp, nil
}

// --- barcodes ---

// InsertBatch implements barcode.Repository with all-or-nothing semantics.
func (s *MemStore) InsertBatch(ctx context.Context, items []*barcode.Barcode) error {
	var err error
	s.with(ctx, func() {
		if s.FailInsert != nil {
			if err = s.FailInsert(items); err != nil {
				return
			}
		}
		for _, b := range items {
			if _, dup := s.serials[b.Serial]; dup {
				err = apperror.NewConflict("duplicate key").WithDetail("serial", b.Serial)
				return
			}
			if _, ok := s.products[b.ProductID]; !ok {
				err = apperror.NewConflict("referenced record does not exist")
				return
			}
		}
		seen := make(map[string]struct{}, len(items))
		for _, b := range items {
			if _, dup := seen[b.Serial]; dup {
				err = apperror.NewConflict("duplicate key").WithDetail("serial", b.Serial)
				return
			}
			seen[b.Serial] = struct{}{}
		}
		for _, b := range items {
			cp := *b
			s.barcodes = append(s.barcodes, &cp)
			s.serials[b.Serial] = struct{}{}
		}
	})
	return err
}

// DeleteByIDs implements barcode.Repository.
func (s *MemStore) DeleteByIDs(ctx context.Context, ids []id.ID) (int64, error) {
	if s.FailDelete != nil {
		return 0, s.FailDelete
	}
	want := make(map[id.ID]struct{}, len(ids))
	for _, v := range ids {
		want[v] = struct{}{}
	}

	var deleted int64
	s.with(ctx, func() {
		kept := s.barcodes[:0:0]
		for _, b := range s.barcodes {
			if _, ok := want[b.ID]; ok {
				delete(s.serials, b.Serial)
				deleted++
				continue
			}
			kept = append(kept, b)
		}
		s.barcodes = kept
	})
	return deleted, nil
}

// RecentSerials implements barcode.Repository. Newest first, prefix+digits only.
func (s *MemStore) RecentSerials(ctx context.Context, prefix string, limit int) ([]string, error) {
	re := sequence.SuffixPattern(prefix)
	var out []string
	s.with(ctx, func() {
		for i := len(s.barcodes) - 1; i >= 0 && len(out) < limit; i-- {
			if serial := s.barcodes[i].Serial; re.MatchString(serial) {
				out = append(out, serial)
			}
		}
	})
	return out, nil
}

// SeedSerials inserts existing barcodes (e.g. legacy data) for productID.
func (s *MemStore) SeedSerials(productID id.ID, serials ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, serial := range serials {
		s.barcodes = append(s.barcodes, &barcode.Barcode{
			ID: id.New(), Serial: serial, ProductID: productID, CreatedAt: now, UpdatedAt: now,
		})
		s.serials[serial] = struct{}{}
	}
}

// Serials returns all stored serials in insertion order.
func (s *MemStore) Serials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.barcodes))
	for i, b := range s.barcodes {
		out[i] = b.Serial
	}
	return out
}

// --- counters ---

// Next implements sequence.Counter.
func (s *MemStore) Next(ctx context.Context, key string, autoCreate bool) (int64, error) {
	return s.Reserve(ctx, key, 1, autoCreate)
}

// Reserve implements sequence.Counter.
func (s *MemStore) Reserve(ctx context.Context, key string, n int64, autoCreate bool) (int64, error) {
	if n < 1 {
		return 0, apperror.NewValidation("reserve count must be positive")
	}
	var (
		first int64
		err   error
	)
	s.with(ctx, func() {
		info, ok := s.counters[key]
		switch {
		case !ok && !autoCreate:
			err = apperror.NewNotFound("sequence", key)
			return
		case !ok:
			now := time.Now().UTC()
			info = sequence.Info{Key: key, NextValue: 1, Active: true, CreatedAt: now, UpdatedAt: now}
		case !info.Active:
			err = apperror.NewSequenceDisabled(key)
			return
		}
		first = info.NextValue
		info.NextValue += n
		info.UpdatedAt = time.Now().UTC()
		s.counters[key] = info
	})
	return first, err
}

// Preview implements sequence.Counter.
func (s *MemStore) Preview(ctx context.Context, key string) (int64, error) {
	info, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	return info.NextValue, nil
}

// Seed implements sequence.Seeder.
func (s *MemStore) Seed(ctx context.Context, key string, value int64) (int64, error) {
	if value < 1 {
		return 0, apperror.NewValidation("seed value must be positive")
	}
	var next int64
	s.with(ctx, func() {
		info, ok := s.counters[key]
		if !ok {
			now := time.Now().UTC()
			info = sequence.Info{Key: key, NextValue: value, Active: true, CreatedAt: now}
		}
		if value > info.NextValue {
			info.NextValue = value
		}
		info.UpdatedAt = time.Now().UTC()
		s.counters[key] = info
		next = info.NextValue
	})
	return next, nil
}

// Create implements sequence.Admin.
func (s *MemStore) Create(ctx context.Context, key string, nextValue int64) (*sequence.Info, error) {
	if nextValue < 1 {
		return nil, apperror.NewValidation("nextValue must be positive")
	}
	var (
		info sequence.Info
		err  error
	)
	s.with(ctx, func() {
		if _, ok := s.counters[key]; ok {
			err = apperror.NewConflict("sequence already exists").WithDetail("key", key)
			return
		}
		now := time.Now().UTC()
		info = sequence.Info{Key: key, NextValue: nextValue, Active: true, CreatedAt: now, UpdatedAt: now}
		s.counters[key] = info
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// SetActive implements sequence.Admin.
func (s *MemStore) SetActive(ctx context.Context, key string, active bool) error {
	var err error
	s.with(ctx, func() {
		info, ok := s.counters[key]
		if !ok {
			err = apperror.NewNotFound("sequence", key)
			return
		}
		info.Active = active
		info.UpdatedAt = time.Now().UTC()
		s.counters[key] = info
	})
	return err
}

// Get implements sequence.Admin.
func (s *MemStore) Get(ctx context.Context, key string) (*sequence.Info, error) {
	var (
		info sequence.Info
		ok   bool
	)
	s.with(ctx, func() { info, ok = s.counters[key] })
	if !ok {
		return nil, apperror.NewNotFound("sequence", key)
	}
	return &info, nil
}

// --- inspection ---

// Stats reports committed and rolled back transactions.
func (s *MemStore) Stats() (commits, rollbacks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits, s.rollbacks
}

// Locks returns advisory lock keys taken so far.
func (s *MemStore) Locks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.locks...)
}
