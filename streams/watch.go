package streams

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/metrics"
	"github.com/sirupsen/logrus"
)

// stopTimeout bounds the webhook deregistration of a stopped push watch
const stopTimeout = 30 * time.Second

// watch is the running side of one subscription. Only its own goroutine
// touches primed and baseline.
type watch struct {
	key      Key
	platform Platform
	registry *Registry
	token    string

	cancel     context.CancelFunc
	done       chan struct{}
	deliveries chan Snapshot

	// 1 while a fetch or its dispatch is outstanding
	busy     int32
	primed   bool
	baseline *Snapshot

	log *logrus.Entry
}

func (w *watch) release() {
	atomic.StoreInt32(&w.busy, 0)
}

func (w *watch) run(ctx context.Context, interval time.Duration) {
	defer close(w.done)
	defer helpers.Recover()

	metrics.WatchesActive.WithLabelValues(w.key.Platform).Inc()
	defer metrics.WatchesActive.WithLabelValues(w.key.Platform).Dec()

	var ticks <-chan time.Time
	if w.platform.Mode() == Push {
		defer w.deregister()
		w.prime(ctx)
	} else {
		ticker := w.registry.clock.NewTicker(interval)
		defer ticker.Stop()
		ticks = ticker.Chan()
		w.check(ctx, nil)
	}

	w.log.Debug("watch started")
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watch stopped")
			return
		case <-ticks:
			w.check(ctx, nil)
		case snapshot := <-w.deliveries:
			w.check(ctx, &snapshot)
		}
	}
}

// prime sets the baseline of a push watch, a failed fetch leaves it empty
func (w *watch) prime(ctx context.Context) {
	w.primed = true

	snapshot, err := w.platform.FetchSnapshot(ctx, w.key.UserID)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(w.key.Platform).Inc()
		w.log.WithError(err).Warn("failed to fetch initial snapshot")
		return
	}
	w.baseline = &snapshot
}

func (w *watch) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	err := w.platform.StopWatch(ctx, w.token)
	if err != nil {
		w.log.WithError(err).Warn("failed to remove webhook")
	}
}

// check handles one tick or delivery. $delivered is nil for ticks, which fetch a fresh snapshot.
func (w *watch) check(ctx context.Context, delivered *Snapshot) {
	if !atomic.CompareAndSwapInt32(&w.busy, 0, 1) {
		metrics.TicksSkipped.WithLabelValues(w.key.Platform).Inc()
		w.log.Debug("previous check still in flight, skipping")
		return
	}
	handedOff := false
	defer func() {
		if !handedOff {
			w.release()
		}
	}()
	defer helpers.Recover()

	var snapshot Snapshot
	if delivered != nil {
		snapshot = *delivered
	} else {
		var err error
		snapshot, err = w.platform.FetchSnapshot(ctx, w.key.UserID)
		if err != nil {
			metrics.FetchErrors.WithLabelValues(w.key.Platform).Inc()
			w.log.WithError(err).Warn("failed to fetch snapshot")
			return
		}
	}

	if !w.primed {
		w.primed = true
		w.baseline = &snapshot
		return
	}

	notable, baseline := Observe(w.baseline, snapshot)
	w.baseline = baseline
	if !notable {
		return
	}

	event := NewEvent(w.key, snapshot, w.release)
	err := w.registry.bus.Publish(ctx, event)
	if err != nil {
		w.log.WithError(err).Warn("dropping event of stopped watch")
		return
	}
	handedOff = true

	w.log.WithFields(logrus.Fields{
		"event": event.ID,
		"title": snapshot.Title,
	}).Info("notable change")
}
