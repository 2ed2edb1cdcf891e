// Package cache provides read-through caches invalidated by PostgreSQL
// LISTEN/NOTIFY.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"backoffice/pkg/logger"
)

// InvalidationHandler is called for every notification received.
type InvalidationHandler func(channel string, payload string)

// Listener holds one pooled connection in LISTEN mode and forwards
// notifications to a handler. It reconnects after connection loss.
type Listener struct {
	pool     *pgxpool.Pool
	channels []string
	handler  InvalidationHandler

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewListener creates a listener for channels.
func NewListener(pool *pgxpool.Pool, handler InvalidationHandler, channels ...string) *Listener {
	return &Listener{pool: pool, channels: channels, handler: handler}
}

// Start begins listening in the background. Safe to call twice.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
}

// Stop ends listening and waits for the loop to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for l.ctx.Err() == nil {
		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			logger.Error(l.ctx, "failed to acquire connection for LISTEN", "error", err)
			l.pause()
			continue
		}

		if err := l.subscribe(conn); err != nil {
			logger.Error(l.ctx, "failed to LISTEN", "channels", l.channels, "error", err)
			conn.Release()
			l.pause()
			continue
		}

		logger.Info(l.ctx, "listening for cache invalidation", "channels", l.channels)

		// Anything may have changed while we were not listening.
		l.handler("", "")

		l.waitForNotifications(conn)
		// The connection still has LISTEN registered; never return it to the pool.
		_ = conn.Hijack().Close(context.Background())
	}
}

func (l *Listener) subscribe(conn *pgxpool.Conn) error {
	stmts := make([]string, len(l.channels))
	for i, ch := range l.channels {
		stmts[i] = "LISTEN " + pgx.Identifier{ch}.Sanitize()
	}
	_, err := conn.Exec(l.ctx, strings.Join(stmts, "; "))
	return err
}

func (l *Listener) waitForNotifications(conn *pgxpool.Conn) {
	for {
		// Timeout lets the loop notice shutdown.
		ctx, cancel := context.WithTimeout(l.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			if ctx.Err() != nil {
				continue
			}
			logger.Warn(l.ctx, "LISTEN connection lost", "error", err)
			return
		}

		logger.Debug(l.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)
		l.dispatch(notification.Channel, notification.Payload)
	}
}

func (l *Listener) dispatch(channel, payload string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(l.ctx, "invalidation handler panic recovered", "channel", channel, "panic", r)
		}
	}()
	l.handler(channel, payload)
}

func (l *Listener) pause() {
	select {
	case <-l.ctx.Done():
	case <-time.After(time.Second):
	}
}
