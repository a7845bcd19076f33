package websocket

import (
	"time"

	"go.uber.org/zap"
)

// IdleReaper periodically closes hub clients that stopped sending frames
type IdleReaper struct {
	hub      *Hub
	maxIdle  time.Duration
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewIdleReaper creates a reaper that checks every interval
func NewIdleReaper(hub *Hub, maxIdle, interval time.Duration, logger *zap.Logger) *IdleReaper {
	if interval <= 0 {
		interval = maxIdle / 2
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &IdleReaper{
		hub:      hub,
		maxIdle:  maxIdle,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the background reaping loop
func (r *IdleReaper) Start() {
	go r.reapLoop()
	r.logger.Info("Idle client reaper started", zap.Duration("maxIdle", r.maxIdle))
}

// Stop gracefully stops the reaper
func (r *IdleReaper) Stop() {
	close(r.stopChan)
	r.logger.Info("Idle client reaper stopped")
}

func (r *IdleReaper) reapLoop() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if n := r.hub.CloseIdle(r.maxIdle); n > 0 {
				r.logger.Info("Closed idle clients", zap.Int("count", n))
			}
		}
	}
}
