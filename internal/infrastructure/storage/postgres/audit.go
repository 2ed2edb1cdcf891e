package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "backoffice/internal/core/context"
	"backoffice/internal/core/id"
	"backoffice/internal/domain/audit"
)

var _ audit.Recorder = (*AuditService)(nil)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry represents a single row of sys_allocation_audit.
// Subject is the prefix or counter key the event concerns.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	Action            audit.Action    `db:"action"`
	Subject           string          `db:"subject"`
	Actor             string          `db:"actor"`
	RequestID         string          `db:"request_id"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService writes the allocation audit trail.
// Payloads larger than the threshold (a compensated batch lists every
// identifier) are stored zstd-compressed.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 4 * 1024,
	}, nil
}

// prepare fills defaults and compresses the payload when it is large.
func (s *AuditService) prepare(ctx context.Context, entry *AuditEntry) {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Actor == "" {
		entry.Actor = appctx.GetActor(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = appctx.GetRequestID(ctx)
	}

	entry.CompressionAlgo = CompressionNone
	if len(entry.Payload) > s.compressThreshold {
		entry.PayloadCompressed = s.encoder.EncodeAll(entry.Payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}
}

// Log records an audit entry on the querier in ctx.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	s.prepare(ctx, &entry)

	sql, args, err := auditInsert(entry).ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return ClassifyError(fmt.Errorf("insert audit entry: %w", err))
	}
	return nil
}

// Record marshals payload and logs it under action/subject.
func (s *AuditService) Record(ctx context.Context, action audit.Action, subject string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return s.Log(ctx, AuditEntry{Action: action, Subject: subject, Payload: raw})
}

// History returns the latest entries for subject, newest first, with
// compressed payloads inflated.
func (s *AuditService) History(ctx context.Context, subject string, limit int) ([]AuditEntry, error) {
	sql, args, err := auditHistory(subject, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit history: %w", err)
	}

	var entries []AuditEntry
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &entries, sql, args...); err != nil {
		return nil, ClassifyError(fmt.Errorf("query audit history: %w", err))
	}

	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}
	}
	return entries, nil
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func auditInsert(e AuditEntry) sq.InsertBuilder {
	return psql.Insert("sys_allocation_audit").
		Columns("id", "action", "subject", "actor", "request_id",
			"payload", "payload_compressed", "compression_algo", "created_at").
		Values(e.ID, e.Action, e.Subject, e.Actor, e.RequestID,
			nullableJSON(e.Payload), e.PayloadCompressed, e.CompressionAlgo, e.CreatedAt)
}

func auditHistory(subject string, limit int) sq.SelectBuilder {
	return psql.Select("id", "action", "subject", "actor", "request_id",
		"payload", "payload_compressed", "compression_algo", "created_at").
		From("sys_allocation_audit").
		Where(sq.Eq{"subject": subject}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
}

// nullableJSON keeps an empty payload out of the jsonb column.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
