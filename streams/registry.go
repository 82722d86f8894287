package streams

import (
	"context"
	"sync"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Intervals returns the poll interval of a platform
type Intervals interface {
	Interval(platform string) time.Duration
}

// Registry owns every running watch, at most one per Key
type Registry struct {
	mu        sync.Mutex
	watches   map[Key]*watch
	platforms map[string]Platform
	intervals Intervals
	bus       *Bus
	clock     clockwork.Clock
	log       *logrus.Entry
}

func NewRegistry(bus *Bus, intervals Intervals, clock clockwork.Clock, platforms ...Platform) *Registry {
	r := &Registry{
		watches:   make(map[Key]*watch),
		platforms: make(map[string]Platform, len(platforms)),
		intervals: intervals,
		bus:       bus,
		clock:     clock,
		log:       cache.GetLogger().WithField("module", "streams"),
	}
	for _, platform := range platforms {
		r.platforms[platform.Name()] = platform
	}
	return r
}

func (r *Registry) Platform(name string) (Platform, bool) {
	platform, ok := r.platforms[name]
	return platform, ok
}

// Platforms returns the names of every registered platform
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	return names
}

// Start begins watching $key, it does nothing if the key is already watched.
// Push platforms register their webhook before Start returns.
func (r *Registry) Start(ctx context.Context, key Key) error {
	platform, ok := r.platforms[key.Platform]
	if !ok {
		return ErrUnknownPlatform
	}

	r.mu.Lock()
	if _, ok = r.watches[key]; ok {
		r.mu.Unlock()
		return nil
	}
	watchCtx, cancel := context.WithCancel(context.Background())
	w := &watch{
		key:        key,
		platform:   platform,
		registry:   r,
		cancel:     cancel,
		done:       make(chan struct{}),
		deliveries: make(chan Snapshot, 1),
		log: r.log.WithFields(logrus.Fields{
			"guild":    key.GuildID,
			"platform": key.Platform,
			"streamer": key.UserID,
		}),
	}
	r.watches[key] = w
	r.mu.Unlock()

	if platform.Mode() == Push {
		token, err := platform.StartWatch(ctx, key.UserID)
		if err != nil {
			r.forget(w)
			cancel()
			close(w.done)
			return errors.Wrap(err, "registering webhook")
		}
		w.token = token
	}

	go w.run(watchCtx, r.intervals.Interval(key.Platform))
	return nil
}

// Stop cancels the watch of $key and waits for it to exit, bounded by $ctx.
// Returns false if nothing was watching $key.
func (r *Registry) Stop(ctx context.Context, key Key) bool {
	r.mu.Lock()
	w, ok := r.watches[key]
	delete(r.watches, key)
	r.mu.Unlock()
	if !ok {
		return false
	}

	w.cancel()
	select {
	case <-w.done:
	case <-ctx.Done():
		w.log.Warn("gave up waiting for watch to stop")
	}
	return true
}

// StopAll stops every watch of a guild and returns how many were stopped
func (r *Registry) StopAll(ctx context.Context, guildID string) int {
	r.mu.Lock()
	keys := make([]Key, 0)
	for key := range r.watches {
		if key.GuildID == guildID {
			keys = append(keys, key)
		}
	}
	r.mu.Unlock()

	stopped := 0
	for _, key := range keys {
		if r.Stop(ctx, key) {
			stopped++
		}
	}
	return stopped
}

// Deliver hands a pushed snapshot to every guild watching the streamer and
// returns how many watches accepted it.
func (r *Registry) Deliver(platform, userID string, snapshot Snapshot) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	for key, w := range r.watches {
		if key.Platform != platform || key.UserID != userID {
			continue
		}
		select {
		case w.deliveries <- snapshot:
			delivered++
		default:
			metrics.TicksSkipped.WithLabelValues(platform).Inc()
			w.log.Debug("delivery dropped, previous one still queued")
		}
	}
	return delivered
}

func (r *Registry) Active(key Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.watches[key]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.watches)
}

// forget removes $w unless a newer watch took its key
func (r *Registry) forget(w *watch) {
	r.mu.Lock()
	if r.watches[w.key] == w {
		delete(r.watches, w.key)
	}
	r.mu.Unlock()
}
