package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/lukezje16/pdfmerger/internal/logging"
)

// Worker runs Sweep on a fixed interval until stopped.
type Worker struct {
	sweeper  *Sweeper
	interval time.Duration

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    chan struct{}
}

func NewWorker(s *Sweeper, interval time.Duration) *Worker {
	return &Worker{sweeper: s, interval: interval}
}

// Start launches the loop. A non-positive interval disables the worker.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.interval <= 0 {
		return
	}
	w.running = true
	w.quit = make(chan struct{})
	w.done = make(chan struct{})
	go w.run(w.quit, w.done)
	logging.Logf("[SWEEP] worker started, interval %s", w.interval)
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.quit)
	done := w.done
	w.mu.Unlock()
	<-done
}

func (w *Worker) run(quit, done chan struct{}) {
	defer close(done)
	ticker := w.sweeper.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			return
		case <-ticker.Chan():
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			if _, err := w.sweeper.Sweep(ctx); err != nil {
				logging.Warnf("[SWEEP] periodic sweep: %v", err)
			}
			cancel()
		}
	}
}
