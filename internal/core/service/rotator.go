package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// Rotator drives the handler's rotations from two tickers. Expiry is
// approximate: a session lives at most ShortTermContainers short intervals
// plus LongTermContainers long intervals.
type Rotator struct {
	handler       *SessionHandler
	shortInterval time.Duration
	longInterval  time.Duration
	logger        *slog.Logger

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// Start launches the rotator. It runs until ctx is done or the handler is
// closed.
func (h *SessionHandler) Start(ctx context.Context) error {
	if err := h.checkOpen(); err != nil {
		return err
	}

	h.rotatorMu.Lock()
	defer h.rotatorMu.Unlock()
	if h.rotator != nil {
		return domain.ErrInvalidArgument.WithDetails("rotator already started")
	}

	r := &Rotator{
		handler:       h,
		shortInterval: h.cfg.ShortTermInterval,
		longInterval:  h.cfg.LongTermInterval,
		logger:        h.logger.With("component", "rotator"),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	h.rotator = r
	go r.loop(ctx)
	return nil
}

func (r *Rotator) loop(ctx context.Context) {
	defer close(r.doneCh)

	shortTicker := time.NewTicker(r.shortInterval)
	defer shortTicker.Stop()

	var longC <-chan time.Time
	if r.handler.container.LongTermEnabled() {
		longTicker := time.NewTicker(r.longInterval)
		defer longTicker.Stop()
		longC = longTicker.C
	}

	r.logger.Info("rotator started",
		"short_interval", r.shortInterval,
		"long_interval", r.longInterval,
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("rotator stopped", "reason", ctx.Err())
			return
		case <-r.stopCh:
			r.logger.Info("rotator stopped")
			return
		case <-shortTicker.C:
			r.handler.RotateShort(ctx)
			regs, toks := r.handler.Sweep()
			if regs > 0 || toks > 0 {
				r.logger.Debug("swept expired entries", "registrations", regs, "request_tokens", toks)
			}
		case <-longC:
			r.handler.RotateLong(ctx)
		}
	}
}

// Stop stops the rotator and waits for the loop to exit.
func (r *Rotator) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.doneCh
}
