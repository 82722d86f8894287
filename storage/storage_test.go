package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/Redeven/Streambot/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, data []byte) models.Settings {
	t.Helper()

	var settings models.Settings
	require.NoError(t, json.Unmarshal(data, &settings))
	return settings
}

func flush(t *testing.T, s *Storage) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Flush(ctx))
}

func TestOpenWithoutDocumentUsesDefaults(t *testing.T) {
	s, err := Open(NewMemoryBackend(nil))
	require.NoError(t, err)

	assert.Equal(t, models.DefaultBotStatus, s.BotStatus())
	assert.Empty(t, s.AdminUsers())
	assert.Empty(t, s.Tenants())
	assert.Equal(t, 2*time.Minute, s.Interval(models.PlatformTrovo))
	assert.Equal(t, 2*time.Minute, s.Interval(models.PlatformTwitch))
	assert.Equal(t, 0, s.Pending())
}

func TestOpenMergesDefaults(t *testing.T) {
	doc := `{"botStatus":"live soon","trovo":{"interval":5},"guilds":{"10":{"guildName":"Den","sources":{"trovo":{"7":{"userId":"7","displayName":"Kiko"}}}}}}`
	s, err := Open(NewMemoryBackend([]byte(doc)))
	require.NoError(t, err)

	assert.Equal(t, "live soon", s.BotStatus())
	assert.Equal(t, 5*time.Minute, s.Interval(models.PlatformTrovo))
	assert.Equal(t, 2*time.Minute, s.Interval(models.PlatformTwitch))

	guild, ok := s.Tenant("10")
	require.True(t, ok)
	assert.Equal(t, "10", guild.GuildID)
	assert.Equal(t, "Den", guild.GuildName)
	assert.NotNil(t, guild.Sources[models.PlatformTwitch])
	assert.Len(t, guild.Sources[models.PlatformTrovo], 1)

	streamer, ok := s.FindStreamer("10", models.PlatformTrovo, "kiko")
	require.True(t, ok)
	assert.Equal(t, "7", streamer.UserID)
}

func TestOpenRejectsBrokenDocument(t *testing.T) {
	_, err := Open(NewMemoryBackend([]byte("{nope")))
	assert.Error(t, err)
}

func TestWritesArePersistedInOrder(t *testing.T) {
	backend := NewMemoryBackend(nil)
	s, err := Open(backend)
	require.NoError(t, err)

	s.EnsureTenant("1", "One")
	require.True(t, s.SetChannel("1", "chan"))
	require.True(t, s.PutStreamer("1", models.PlatformTwitch, models.StreamerInfo{UserID: "42", DisplayName: "Rin"}))
	require.True(t, s.UpdateStreamer("1", models.PlatformTwitch, "42", "msg", "RinLive"))
	flush(t, s)

	saves := backend.Saves()
	require.Len(t, saves, 4)

	first := decode(t, saves[0])
	require.Contains(t, first.Guilds, "1")
	assert.Empty(t, first.Guilds["1"].ChannelID)

	second := decode(t, saves[1])
	assert.Equal(t, "chan", second.Guilds["1"].ChannelID)
	assert.Empty(t, second.Guilds["1"].Sources[models.PlatformTwitch])

	third := decode(t, saves[2])
	assert.Equal(t, "Rin", third.Guilds["1"].Sources[models.PlatformTwitch]["42"].DisplayName)

	last := decode(t, saves[3])
	streamer := last.Guilds["1"].Sources[models.PlatformTwitch]["42"]
	assert.Equal(t, "msg", streamer.LastStreamMessageID)
	assert.Equal(t, "RinLive", streamer.DisplayName)
}

func TestWritesToMissingRecordsAreNoops(t *testing.T) {
	backend := NewMemoryBackend(nil)
	s, err := Open(backend)
	require.NoError(t, err)

	assert.False(t, s.SetChannel("404", "chan"))
	assert.False(t, s.SetAnnouncementMessage("404", "hi"))
	assert.False(t, s.PutStreamer("404", models.PlatformTrovo, models.StreamerInfo{UserID: "1"}))
	assert.False(t, s.UpdateStreamer("404", models.PlatformTrovo, "1", "msg", ""))
	assert.False(t, s.RemoveTenant("404"))

	s.EnsureTenant("1", "One")
	assert.False(t, s.UpdateStreamer("1", models.PlatformTrovo, "1", "msg", ""))
	assert.False(t, s.RemoveStreamer("1", models.PlatformTrovo, "1"))
	flush(t, s)

	assert.Len(t, backend.Saves(), 1)
	_, ok := s.Streamer("1", models.PlatformTrovo, "1")
	assert.False(t, ok)
}

func TestEnsureTenantKeepsSubscriptions(t *testing.T) {
	s, err := Open(NewMemoryBackend(nil))
	require.NoError(t, err)

	s.EnsureTenant("1", "Old")
	s.PutStreamer("1", models.PlatformTrovo, models.StreamerInfo{UserID: "9", DisplayName: "Nia"})
	s.EnsureTenant("1", "New")

	guild, ok := s.Tenant("1")
	require.True(t, ok)
	assert.Equal(t, "New", guild.GuildName)
	assert.Contains(t, guild.Sources[models.PlatformTrovo], "9")

	assert.True(t, s.RemoveTenant("1"))
	assert.False(t, s.RemoveTenant("1"))
	assert.Empty(t, s.Tenants())
}

func TestReadsReturnCopies(t *testing.T) {
	s, err := Open(NewMemoryBackend(nil))
	require.NoError(t, err)

	s.EnsureTenant("1", "One")
	guild, _ := s.Tenant("1")
	guild.Sources[models.PlatformTwitch]["x"] = models.StreamerInfo{UserID: "x"}

	_, ok := s.Streamer("1", models.PlatformTwitch, "x")
	assert.False(t, ok)
}

func TestFailedWriteDoesNotBlockLaterWrites(t *testing.T) {
	backend := NewMemoryBackend(nil)
	calls := 0
	backend.FailWith(func(n int) error {
		calls++
		if calls == 1 {
			return errors.New("disk full")
		}
		return nil
	})

	s, err := Open(backend)
	require.NoError(t, err)

	s.EnsureTenant("1", "One")
	s.SetChannel("1", "chan")
	flush(t, s)

	saves := backend.Saves()
	require.Len(t, saves, 1)
	assert.Equal(t, "chan", decode(t, saves[0]).Guilds["1"].ChannelID)
	assert.Equal(t, 0, s.Pending())
}

type gatedBackend struct {
	*MemoryBackend
	gate chan struct{}
}

func (b *gatedBackend) Save(data []byte) error {
	<-b.gate
	return b.MemoryBackend.Save(data)
}

func TestPendingAndFlush(t *testing.T) {
	backend := &gatedBackend{MemoryBackend: NewMemoryBackend(nil), gate: make(chan struct{})}
	s, err := Open(backend)
	require.NoError(t, err)

	s.EnsureTenant("1", "One")
	s.SetChannel("1", "a")
	s.SetChannel("1", "b")
	assert.Equal(t, 3, s.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	assert.Equal(t, context.DeadlineExceeded, s.Flush(ctx))
	cancel()

	close(backend.gate)
	flush(t, s)
	assert.Equal(t, 0, s.Pending())
	assert.Len(t, backend.Saves(), 3)
}

func TestStuckSaveDoesNotBlockSettings(t *testing.T) {
	backend := NewMemoryBackend(nil)
	release := make(chan struct{})
	backend.FailWith(func(n int) error {
		<-release
		return nil
	})

	s, err := Open(backend)
	require.NoError(t, err)
	s.EnsureTenant("1", "One")

	const writes = 1000
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < writes; i++ {
			s.SetChannel("1", fmt.Sprintf("chan-%d", i))
		}
		s.Tenant("1")
		s.Interval(models.PlatformTrovo)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("settings blocked behind a stuck save")
	}
	guild, ok := s.Tenant("1")
	require.True(t, ok)
	assert.Equal(t, fmt.Sprintf("chan-%d", writes-1), guild.ChannelID)
	assert.Equal(t, writes+1, s.Pending())

	close(release)
	flush(t, s)
	saves := backend.Saves()
	require.Len(t, saves, writes+1)
	assert.Equal(t, fmt.Sprintf("chan-%d", writes-1), decode(t, saves[writes]).Guilds["1"].ChannelID)
	assert.Equal(t, 0, s.Pending())
}

func TestCloseFlushesOutstandingWrites(t *testing.T) {
	backend := NewMemoryBackend(nil)
	s, err := Open(backend)
	require.NoError(t, err)

	s.EnsureTenant("1", "One")
	require.NoError(t, s.Close(context.Background()))
	assert.Len(t, backend.Saves(), 1)

	s.EnsureTenant("2", "Two")
	require.NoError(t, s.Flush(context.Background()))
	assert.Len(t, backend.Saves(), 1)
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")

	_, err := NewFileBackend(path).Load()
	assert.Equal(t, ErrNotFound, err)

	s, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	s.EnsureTenant("1", "One")
	s.SetAnnouncementMessage("1", "{DISPLAYNAME} is live")
	require.NoError(t, s.Close(context.Background()))

	reopened, err := Open(NewFileBackend(path))
	require.NoError(t, err)
	guild, ok := reopened.Tenant("1")
	require.True(t, ok)
	assert.Equal(t, "{DISPLAYNAME} is live", guild.AnnouncementMessage)
}
