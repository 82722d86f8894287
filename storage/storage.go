// Package storage is the only owner of the persisted settings document.
// Every mutation rewrites the whole document through one ordered writer.
package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Storage struct {
	mu       sync.RWMutex
	settings *models.Settings
	writer   *writer
	closed   bool
	log      *logrus.Entry
}

// Open loads the document from $backend, falling back to defaults when there is none yet
func Open(backend Backend) (*Storage, error) {
	log := cache.GetLogger().WithField("module", "storage")

	settings := models.DefaultSettings()
	data, err := backend.Load()
	switch {
	case err == ErrNotFound:
		log.Info("no settings document found, starting with defaults")
	case err != nil:
		return nil, errors.Wrap(err, "loading settings")
	default:
		if err = json.Unmarshal(data, settings); err != nil {
			return nil, errors.Wrap(err, "decoding settings")
		}
	}
	settings.ApplyDefaults()

	log.Infof("loaded settings for %d guilds", len(settings.Guilds))
	return &Storage{
		settings: settings,
		writer:   newWriter(backend, log),
		log:      log,
	}, nil
}

// persistLocked queues a full rewrite of the current document, s.mu must be held for writing
func (s *Storage) persistLocked() {
	if s.closed {
		s.log.Warn("settings mutated after close, not persisting")
		return
	}

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		s.log.WithError(err).Error("failed to encode settings")
		return
	}
	s.writer.submit(data)
}

// Pending is the number of writes that have been submitted but not attempted yet
func (s *Storage) Pending() int {
	return int(atomic.LoadInt64(&s.writer.pending))
}

// Flush blocks until every write submitted before the call was attempted
func (s *Storage) Flush(ctx context.Context) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	done := s.writer.barrier()
	s.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding writes and stops the writer
func (s *Storage) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.writer.close(ctx)
}

func (s *Storage) BotStatus() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings.BotStatus
}

func (s *Storage) AdminUsers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]string(nil), s.settings.AdminUsers...)
}

// Interval is the global poll interval of $platform
func (s *Storage) Interval(platform string) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	minutes := models.DefaultPollInterval
	switch platform {
	case models.PlatformTwitch:
		minutes = s.settings.Twitch.Interval
	case models.PlatformTrovo:
		minutes = s.settings.Trovo.Interval
	}
	if minutes <= 0 {
		minutes = models.DefaultPollInterval
	}
	return time.Duration(minutes) * time.Minute
}

// Tenants returns copies of every guild, ordered by id
func (s *Storage) Tenants() []models.GuildSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenants := make([]models.GuildSettings, 0, len(s.settings.Guilds))
	for _, guild := range s.settings.Guilds {
		tenants = append(tenants, guild.Copy())
	}
	sort.Slice(tenants, func(i, j int) bool {
		return tenants[i].GuildID < tenants[j].GuildID
	})
	return tenants
}

func (s *Storage) Tenant(guildID string) (models.GuildSettings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return models.GuildSettings{}, false
	}
	return guild.Copy(), true
}

func (s *Storage) Streamer(guildID, platform, userID string) (models.StreamerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return models.StreamerInfo{}, false
	}
	streamer, ok := guild.Sources[platform][userID]
	return streamer, ok
}

// FindStreamer looks a subscription up by display name, case-insensitive
func (s *Storage) FindStreamer(guildID, platform, displayName string) (models.StreamerInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return models.StreamerInfo{}, false
	}
	return guild.Sources[platform].FindByName(displayName)
}

// EnsureTenant creates the guild or, if it exists, fills in defaults and applies the new name
func (s *Storage) EnsureTenant(guildID, guildName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.settings.Guilds[guildID]
	if ok {
		guild.ApplyDefaults()
		if guildName != "" {
			guild.GuildName = guildName
		}
	} else {
		s.settings.Guilds[guildID] = models.NewGuildSettings(guildID, guildName)
	}
	s.persistLocked()
}

func (s *Storage) RemoveTenant(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings.Guilds[guildID]; !ok {
		return false
	}
	delete(s.settings.Guilds, guildID)
	s.persistLocked()
	return true
}

func (s *Storage) SetChannel(guildID, channelID string) bool {
	return s.mutateTenant(guildID, func(guild *models.GuildSettings) {
		guild.ChannelID = channelID
	})
}

func (s *Storage) SetAnnouncementMessage(guildID, message string) bool {
	return s.mutateTenant(guildID, func(guild *models.GuildSettings) {
		guild.AnnouncementMessage = message
	})
}

func (s *Storage) PutStreamer(guildID, platform string, streamer models.StreamerInfo) bool {
	return s.mutateTenant(guildID, func(guild *models.GuildSettings) {
		if guild.Sources[platform] == nil {
			guild.Sources[platform] = models.StreamerList{}
		}
		guild.Sources[platform][streamer.UserID] = streamer
	})
}

func (s *Storage) RemoveStreamer(guildID, platform, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return false
	}
	if _, ok = guild.Sources[platform][userID]; !ok {
		return false
	}
	delete(guild.Sources[platform], userID)
	s.persistLocked()
	return true
}

// UpdateStreamer stores the announcement handle and display name after a dispatch.
// A subscription removed in the meantime is not recreated.
func (s *Storage) UpdateStreamer(guildID, platform, userID, messageID, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return false
	}
	streamer, ok := guild.Sources[platform][userID]
	if !ok {
		return false
	}
	streamer.LastStreamMessageID = messageID
	if displayName != "" {
		streamer.DisplayName = displayName
	}
	guild.Sources[platform][userID] = streamer
	s.persistLocked()
	return true
}

func (s *Storage) mutateTenant(guildID string, fn func(guild *models.GuildSettings)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.settings.Guilds[guildID]
	if !ok {
		return false
	}
	fn(guild)
	s.persistLocked()
	return true
}
