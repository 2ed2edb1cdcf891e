package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"backoffice/internal/core/apperror"
	appctx "backoffice/internal/core/context"
	"backoffice/internal/infrastructure/storage/postgres"
	"backoffice/pkg/logger"
)

const (
	HeaderIdempotencyKey    = "X-Idempotency-Key"
	HeaderIdempotentReplay  = "X-Idempotent-Replay"
	maxIdempotencyBodyBytes = 1 << 20 // 1 MiB
	maxIdempotencyKeyLen    = 255
)

// IdempotencyStore persists idempotency keys and the responses they produced.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, actor, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, body []byte) error
	ReleaseKey(ctx context.Context, key string) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

// captureWriter tees the response body so it can be stored for replay.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency middleware protects against duplicate requests.
// A repeated POST with the same X-Idempotency-Key replays the stored response
// instead of running the handler again. Client errors are stored as well;
// server errors release the key so the request may be retried.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost &&
			c.Request.Method != http.MethodPut &&
			c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			_ = c.Error(apperror.NewValidation("idempotency key too long").WithDetail("max_length", maxIdempotencyKeyLen))
			c.Abort()
			return
		}

		ctx := c.Request.Context()

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		// Accept is part of the request identity: JSON and PDF replies differ.
		hash := sha256.New()
		hash.Write(body)
		hash.Write([]byte(c.GetHeader("Accept")))
		requestHash := hex.EncodeToString(hash.Sum(nil))

		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(ctx, key, appctx.GetActor(ctx), operation, requestHash)
		if err != nil {
			if apperror.IsAppError(err) {
				_ = c.Error(err)
			} else {
				_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			}
			c.Abort()
			return
		}

		if replay != nil {
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		w := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		// Render handler errors here so the stored body matches what the
		// client receives. ErrorHandler skips written responses.
		if len(c.Errors) > 0 && !w.Written() {
			status, errBody := errorBody(c, c.Errors.Last().Err)
			c.JSON(status, errBody)
		}

		finishIdempotency(context.WithoutCancel(ctx), store, key, w)
	}
}

func finishIdempotency(ctx context.Context, store IdempotencyStore, key string, w *captureWriter) {
	status := w.Status()
	contentType := w.Header().Get("Content-Type")

	var err error
	switch {
	case status >= http.StatusInternalServerError:
		err = store.ReleaseKey(ctx, key)
	case status >= http.StatusBadRequest:
		err = store.FailKey(ctx, key, status, contentType, w.body.Bytes())
	default:
		err = store.CompleteKey(ctx, key, status, contentType, w.body.Bytes())
	}
	if err != nil {
		logger.Warn(ctx, "idempotency key not finalized", "key", key, "status", status, "error", err)
	}
}
