package stream

import (
	"context"
	"time"
)

const (
	DefaultIdleTimeout = 60 * time.Second
	DefaultKeepAlive   = 15 * time.Second
)

// EndReason explains why Serve returned.
type EndReason string

const (
	EndTerminal   EndReason = "terminal"
	EndIdle       EndReason = "idle_timeout"
	EndClientGone EndReason = "client_gone"
	EndReplaced   EndReason = "replaced"
	EndOverflow   EndReason = "overflow"
)

// ServeOptions tunes Serve. Zero values select the defaults.
type ServeOptions struct {
	IdleTimeout time.Duration
	KeepAlive   time.Duration
}

// Serve copies events from c to w until a terminal event is written, no
// event arrives within the idle timeout, the client goes away, or c is
// replaced by a newer consumer.
func Serve(ctx context.Context, w *Writer, c *Consumer, opts ServeOptions) (EndReason, error) {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()
	keepAlive := time.NewTicker(opts.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return EndClientGone, nil
		case <-c.Done():
			if c.Reason() == ReasonOverflow {
				return EndOverflow, nil
			}
			return EndReplaced, nil
		case ev := <-c.Events():
			if err := w.Event(ev); err != nil {
				return EndClientGone, err
			}
			if ev.Kind.Terminal() {
				return EndTerminal, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(opts.IdleTimeout)
		case <-idle.C:
			return EndIdle, nil
		case <-keepAlive.C:
			if err := w.Comment("keep-alive"); err != nil {
				return EndClientGone, err
			}
		}
	}
}
