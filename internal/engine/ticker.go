package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/hourglass-games/timelift/server/internal/platform/logger"
)

// DefaultTickRateHz is the nominal simulation rate.
const DefaultTickRateHz = 60

// FrameSink receives the frame produced after each completed tick. The
// network hub implements this; tests may substitute their own.
type FrameSink interface {
	BroadcastFrame(Frame)
}

// Ticker drives the engine at a fixed real-time rate. It knows nothing about
// actors or circuits, only tick cadence.
type Ticker struct {
	engine   *Engine
	sink     FrameSink
	logger   *logger.Logger
	interval time.Duration
	stopChan chan struct{}
}

// NewTicker creates a ticker for the engine. rateHz <= 0 falls back to the
// default rate. sink may be nil.
func NewTicker(e *Engine, sink FrameSink, log *logger.Logger, rateHz int) *Ticker {
	if rateHz <= 0 {
		rateHz = DefaultTickRateHz
	}
	return &Ticker{
		engine:   e,
		sink:     sink,
		logger:   log,
		interval: time.Second / time.Duration(rateHz),
		stopChan: make(chan struct{}),
	}
}

// Start begins the tick loop. Call in a goroutine.
func (t *Ticker) Start(ctx context.Context) {
	t.logger.Info(fmt.Sprintf("ticker started at %v per tick", t.interval))

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("ticker stopped by context")
			return
		case <-t.stopChan:
			t.logger.Info("ticker stopped")
			return
		case <-ticker.C:
			t.engine.Step()
			if t.sink != nil {
				t.sink.BroadcastFrame(t.engine.Frame())
			}
		}
	}
}

// Stop gracefully stops the ticker.
func (t *Ticker) Stop() {
	close(t.stopChan)
}
