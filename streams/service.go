package streams

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Settings is the settings access the service needs, storage.Storage implements it
type Settings interface {
	Announcements
	Tenants() []models.GuildSettings
	FindStreamer(guildID, platform, displayName string) (models.StreamerInfo, bool)
	Interval(platform string) time.Duration
	EnsureTenant(guildID, guildName string)
	RemoveTenant(guildID string) bool
	PutStreamer(guildID, platform string, streamer models.StreamerInfo) bool
	RemoveStreamer(guildID, platform, userID string) bool
}

// Service is the entry point for commands and gateway events
type Service struct {
	// serializes subscription changes so concurrent commands cannot add a streamer twice
	mu       sync.Mutex
	store    Settings
	registry *Registry
	bus      *Bus
	log      *logrus.Entry
}

func NewService(store Settings, registry *Registry, bus *Bus) *Service {
	return &Service{
		store:    store,
		registry: registry,
		bus:      bus,
		log:      cache.GetLogger().WithField("module", "streams"),
	}
}

// OnNotableChange is the stream of notable changes the dispatcher consumes
func (s *Service) OnNotableChange() <-chan *Event {
	return s.bus.Events()
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// AddSubscriptions resolves $names on $platform and starts watching the ones
// the guild does not follow yet. Unresolved names are left out of the result.
func (s *Service) AddSubscriptions(ctx context.Context, guildID, platform string, names []string) ([]models.StreamerInfo, error) {
	p, ok := s.registry.Platform(platform)
	if !ok {
		return nil, ErrUnknownPlatform
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok = s.store.Tenant(guildID); !ok {
		return nil, nil
	}

	lookup := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || helpers.ContainsFold(lookup, name) {
			continue
		}
		if _, ok := s.store.FindStreamer(guildID, platform, name); ok {
			continue
		}
		lookup = append(lookup, name)
	}
	if len(lookup) == 0 {
		return nil, nil
	}

	log := s.log.WithFields(logrus.Fields{"guild": guildID, "platform": platform})
	resolved, err := p.ResolveUsers(ctx, lookup)
	if err != nil {
		log.WithError(err).Warn("failed to resolve streamers")
		return nil, nil
	}

	added := make([]models.StreamerInfo, 0, len(resolved))
	for _, streamer := range resolved {
		if _, ok := s.store.Streamer(guildID, platform, streamer.UserID); ok {
			continue
		}
		if !s.store.PutStreamer(guildID, platform, streamer) {
			break
		}

		key := Key{GuildID: guildID, Platform: platform, UserID: streamer.UserID}
		if err = s.registry.Start(ctx, key); err != nil {
			log.WithError(err).WithField("streamer", streamer.UserID).Error("failed to start watch")
			s.store.RemoveStreamer(guildID, platform, streamer.UserID)
			continue
		}
		added = append(added, streamer)
	}
	return added, nil
}

// AddSubscription adds a single streamer, an already followed streamer is returned as found
func (s *Service) AddSubscription(ctx context.Context, guildID, platform, displayName string) (models.StreamerInfo, bool, error) {
	if streamer, ok := s.store.FindStreamer(guildID, platform, displayName); ok {
		return streamer, true, nil
	}

	added, err := s.AddSubscriptions(ctx, guildID, platform, []string{displayName})
	if err != nil || len(added) == 0 {
		return models.StreamerInfo{}, false, err
	}
	return added[0], true, nil
}

// RemoveSubscriptions stops and deletes every followed streamer in $names and returns how many were removed
func (s *Service) RemoveSubscriptions(ctx context.Context, guildID, platform string, names []string) (int, error) {
	if _, ok := s.registry.Platform(platform); !ok {
		return 0, ErrUnknownPlatform
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, name := range names {
		streamer, ok := s.store.FindStreamer(guildID, platform, strings.TrimSpace(name))
		if !ok {
			continue
		}
		s.registry.Stop(ctx, Key{GuildID: guildID, Platform: platform, UserID: streamer.UserID})
		if s.store.RemoveStreamer(guildID, platform, streamer.UserID) {
			removed++
		}
	}
	return removed, nil
}

func (s *Service) RemoveSubscription(ctx context.Context, guildID, platform, displayName string) (bool, error) {
	removed, err := s.RemoveSubscriptions(ctx, guildID, platform, []string{displayName})
	return removed > 0, err
}

// EnsureTenant creates the guild or renames it
func (s *Service) EnsureTenant(guildID, guildName string) {
	s.store.EnsureTenant(guildID, guildName)
}

// RemoveTenant stops every watch of the guild before deleting it, returns the number of stopped watches
func (s *Service) RemoveTenant(ctx context.Context, guildID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := s.registry.StopAll(ctx, guildID)
	s.store.RemoveTenant(guildID)

	s.log.WithFields(logrus.Fields{"guild": guildID, "watches": stopped}).Info("removed guild")
	return stopped
}

// ListSubscriptions returns the sorted display names per platform
func (s *Service) ListSubscriptions(guildID string) map[string][]string {
	guild, ok := s.store.Tenant(guildID)
	if !ok {
		return nil
	}

	list := make(map[string][]string, len(models.Platforms))
	for _, platform := range models.Platforms {
		names := make([]string, 0, len(guild.Sources[platform]))
		for _, streamer := range guild.Sources[platform] {
			names = append(names, streamer.DisplayName)
		}
		sort.Slice(names, func(i, j int) bool {
			return strings.ToLower(names[i]) < strings.ToLower(names[j])
		})
		list[platform] = names
	}
	return list
}

// StartWatching starts a watch for every stored subscription on $platform and
// returns how many subscriptions are watched.
func (s *Service) StartWatching(ctx context.Context, platform string) (int, error) {
	if _, ok := s.registry.Platform(platform); !ok {
		return 0, ErrUnknownPlatform
	}

	started := 0
	for _, guild := range s.store.Tenants() {
		for userID := range guild.Sources[platform] {
			key := Key{GuildID: guild.GuildID, Platform: platform, UserID: userID}
			if err := s.registry.Start(ctx, key); err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"guild":    key.GuildID,
					"platform": platform,
					"streamer": userID,
				}).Error("failed to start watch")
				continue
			}
			started++
		}
	}

	s.log.WithField("platform", platform).Infof("watching %d streamers", started)
	return started, nil
}

// StartAll runs StartWatching for every platform and returns once all of them finished
func (s *Service) StartAll(ctx context.Context) (int, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		total   int
		lastErr error
	)
	for _, platform := range s.registry.Platforms() {
		wg.Add(1)
		go func(platform string) {
			defer wg.Done()

			started, err := s.StartWatching(ctx, platform)
			mu.Lock()
			total += started
			if err != nil {
				lastErr = errors.Wrap(err, platform)
			}
			mu.Unlock()
		}(platform)
	}
	wg.Wait()
	return total, lastErr
}
