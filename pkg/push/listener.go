// Package push maintains the long-lived event stream from the
// authority. The stream is a staleness signal, not a payload: inbound
// frames are drained and discarded, and each one (plus each successful
// reconnect) surfaces as a content-free notification the reconciliation
// policy reacts to with a full refresh.
package push

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/possync/pkg/config"
)

// Listener is a reconnecting websocket client. Notifications are
// coalesced: the channel holds at most one pending signal, which is
// enough under an at-least-once, idempotent-refresh contract.
type Listener struct {
	url            string
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger

	notifications chan struct{}

	// OnStateChange, when set before Run, is called on every
	// connect/disconnect transition. Drives the transient
	// connectivity indicator only.
	OnStateChange func(connected bool)
}

func NewListener(cfg *config.PushConfig, logger *zap.Logger) *Listener {
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	max := cfg.MaxBackoff
	if max < initial {
		max = 30 * time.Second
	}
	return &Listener{
		url:            cfg.URL,
		initialBackoff: initial,
		maxBackoff:     max,
		logger:         logger,
		notifications:  make(chan struct{}, 1),
	}
}

// Notifications delivers one signal per observed change, coalesced.
func (l *Listener) Notifications() <-chan struct{} {
	return l.notifications
}

// Run dials and reads until ctx is done, reconnecting with capped
// backoff. A successful (re)connect emits a notification of its own:
// anything missed while disconnected is compensated for by the
// unconditional refresh that follows.
func (l *Listener) Run(ctx context.Context) {
	backoff := l.initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, l.url, nil)
		if err != nil {
			l.logger.Warn("Push channel dial failed",
				zap.String("url", l.url),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > l.maxBackoff {
				backoff = l.maxBackoff
			}
			continue
		}

		backoff = l.initialBackoff
		l.logger.Info("Push channel connected", zap.String("url", l.url))
		l.setState(true)
		l.notify()

		l.readLoop(ctx, conn)

		l.setState(false)
		l.logger.Info("Push channel disconnected")
	}
}

func (l *Listener) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		// Frame content is never relied upon for correctness.
		if _, _, err := conn.ReadMessage(); err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("Push channel read failed", zap.Error(err))
			}
			return
		}
		l.notify()
	}
}

func (l *Listener) notify() {
	select {
	case l.notifications <- struct{}{}:
	default: // one already pending, coalesce
	}
}

func (l *Listener) setState(connected bool) {
	if l.OnStateChange != nil {
		l.OnStateChange(connected)
	}
}
