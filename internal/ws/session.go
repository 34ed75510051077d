package ws

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"httpcore/internal/config"
	"httpcore/internal/telemetry"
)

// Pump relays a Session's inbound frames into recv and drains send for
// outbound frames until ctx is cancelled or the peer closes, per
// spec.md §4.8's frame-stream model. It also drives the ping/pong
// keepalive, rate-limited via golang.org/x/time/rate so a misconfigured
// ping_interval_ms can't spam the connection. logger may be nil, in
// which case Pump logs nothing.
func Pump(ctx context.Context, sess Session, cfg config.WebSocketConfig, recv chan<- []byte, send <-chan []byte, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Every(cfg.PingInterval()), 1)
	done := make(chan error, 1)

	go func() {
		for {
			typ, data, err := sess.ReadMessage()
			if err != nil {
				logger.Debug("ws read loop ended", zap.Error(err))
				done <- err
				return
			}
			telemetry.WSFrame("inbound", len(data))
			switch typ {
			case MessagePing:
				_ = sess.WriteMessage(MessagePong, data)
			case MessagePong:
				// liveness observed; nothing to do.
			case MessageClose:
				done <- nil
				return
			default:
				select {
				case recv <- data:
				case <-ctx.Done():
					done <- ctx.Err()
					return
				}
			}
		}
	}()

	ticker := time.NewTicker(cfg.PingInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("ws pump stopping", zap.String("reason", "context done"))
			_ = sess.Close(StatusGoingAway, "context done")
			return ctx.Err()
		case err := <-done:
			return err
		case data, ok := <-send:
			if !ok {
				_ = sess.Close(StatusNormalClosure, "")
				return nil
			}
			if err := sess.WriteMessage(MessageBinary, data); err != nil {
				return err
			}
			telemetry.WSFrame("outbound", len(data))
		case <-ticker.C:
			if limiter.Allow() {
				_ = sess.WriteMessage(MessagePing, nil)
			}
		}
	}
}

// CloseWithTimeout sends a close frame with code and reason through
// sess.Close, then blocks until cfg.CloseTimeout elapses or ctx is done.
// It does not wait for the peer's close frame: the wait lasts the full
// timeout whatever the peer sends, and the transport is left as
// sess.Close left it.
func CloseWithTimeout(ctx context.Context, sess Session, cfg config.WebSocketConfig, code StatusCode, reason string) {
	_ = sess.Close(code, reason)
	closeCtx, cancel := context.WithTimeout(ctx, cfg.CloseTimeout())
	defer cancel()
	<-closeCtx.Done()
}
