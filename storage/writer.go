package storage

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/Redeven/Streambot/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/oleiade/lane.v1"
)

type writeRequest struct {
	data []byte
	// set on flush barriers, closed once every earlier write was attempted
	done chan struct{}
}

// writer is the single goroutine that persists documents in submission order.
// The queue is unbounded so submitting never blocks, even behind a stuck Save.
type writer struct {
	backend Backend

	queue   *lane.Queue
	closing int32
	wake    chan struct{}

	pending int64
	stopped chan struct{}
	log     *logrus.Entry
}

func newWriter(backend Backend, log *logrus.Entry) *writer {
	w := &writer{
		backend: backend,
		queue:   lane.NewQueue(),
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		log:     log,
	}
	go w.run()
	return w
}

// submit must be called with the storage lock held so queue order equals mutation order
func (w *writer) submit(data []byte) {
	atomic.AddInt64(&w.pending, 1)
	w.enqueue(writeRequest{data: data})
}

// barrier returns a channel that is closed after every write queued before it was attempted
func (w *writer) barrier() <-chan struct{} {
	done := make(chan struct{})
	w.enqueue(writeRequest{done: done})
	return done
}

func (w *writer) enqueue(req writeRequest) {
	w.queue.Enqueue(req)
	w.signal()
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) run() {
	defer close(w.stopped)

	for {
		for item := w.queue.Dequeue(); item != nil; item = w.queue.Dequeue() {
			w.process(item.(writeRequest))
		}
		if atomic.LoadInt32(&w.closing) == 1 && w.queue.Empty() {
			return
		}
		<-w.wake
	}
}

func (w *writer) process(req writeRequest) {
	if req.done != nil {
		close(req.done)
		return
	}

	err := w.save(req.data)
	if err != nil {
		metrics.SettingsWrites.WithLabelValues("error").Inc()
		w.log.WithError(err).Error("failed to persist settings")
	} else {
		metrics.SettingsWrites.WithLabelValues("ok").Inc()
	}
	atomic.AddInt64(&w.pending, -1)
}

func (w *writer) save(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(fmt.Sprintf("settings backend panicked: %v", r))
		}
	}()

	return w.backend.Save(data)
}

// close lets the writer drain the queue and waits for it, bounded by $ctx
func (w *writer) close(ctx context.Context) error {
	atomic.StoreInt32(&w.closing, 1)
	w.signal()

	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
