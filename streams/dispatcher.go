package streams

import (
	"context"
	"sync"
	"time"

	"github.com/Redeven/Streambot/cache"
	"github.com/Redeven/Streambot/helpers"
	"github.com/Redeven/Streambot/metrics"
	"github.com/Redeven/Streambot/models"
	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	ResultPosted  = "posted"
	ResultEdited  = "edited"
	ResultDropped = "dropped"
	ResultFailed  = "failed"
)

// DefaultWindows is how long an announcement keeps being edited instead of reposted
var DefaultWindows = map[string]time.Duration{
	models.PlatformTwitch: 3 * time.Hour,
	models.PlatformTrovo:  6 * time.Hour,
}

// Gateway is the part of the discord session the dispatcher needs
type Gateway interface {
	Channel(channelID string) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit) (*discordgo.Message, error)
}

// Announcements is the settings access the dispatcher needs
type Announcements interface {
	Tenant(guildID string) (models.GuildSettings, bool)
	Streamer(guildID, platform, userID string) (models.StreamerInfo, bool)
	UpdateStreamer(guildID, platform, userID, messageID, displayName string) bool
}

type Dispatcher struct {
	store   Announcements
	gateway Gateway
	clock   clockwork.Clock
	windows map[string]time.Duration
	wg      sync.WaitGroup
	log     *logrus.Entry
}

func NewDispatcher(store Announcements, gateway Gateway, clock clockwork.Clock, windows map[string]time.Duration) *Dispatcher {
	if windows == nil {
		windows = DefaultWindows
	}
	return &Dispatcher{
		store:   store,
		gateway: gateway,
		clock:   clock,
		windows: windows,
		log:     cache.GetLogger().WithField("module", "dispatcher"),
	}
}

// Run consumes $events until $ctx is done, then waits for in-flight dispatches.
// Every event runs in its own goroutine so a stuck discord call only holds up its subscription.
func (d *Dispatcher) Run(ctx context.Context, events <-chan *Event) {
	defer d.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			d.wg.Add(1)
			go d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *Event) {
	defer d.wg.Done()
	defer event.Done()
	defer helpers.Recover()

	log := d.log.WithFields(logrus.Fields{
		"event":    event.ID,
		"guild":    event.Key.GuildID,
		"platform": event.Key.Platform,
		"streamer": event.Key.UserID,
	})

	result, err := d.Dispatch(ctx, event)
	metrics.Notifications.WithLabelValues(event.Key.Platform, result).Inc()
	switch {
	case result == ResultDropped:
		log.WithError(err).Debug("announcement dropped")
	case err != nil:
		log.WithError(err).Error("announcement failed")
	default:
		log.Infof("announcement %s", result)
	}
}

// Dispatch posts or edits the announcement for $event and stores the message handle.
// The returned error is set for dropped and failed results.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return ResultDropped, err
	}

	key := event.Key
	guild, ok := d.store.Tenant(key.GuildID)
	if !ok {
		return ResultDropped, errors.New("guild is gone")
	}
	streamer, ok := d.store.Streamer(key.GuildID, key.Platform, key.UserID)
	if !ok {
		return ResultDropped, errors.New("subscription is gone")
	}
	if guild.ChannelID == "" {
		return ResultDropped, ErrNoChannel
	}
	channel, err := d.gateway.Channel(guild.ChannelID)
	if err != nil {
		return ResultDropped, errors.Wrap(err, "resolving channel")
	}

	displayName := event.Snapshot.DisplayName
	if displayName == "" {
		displayName = streamer.DisplayName
	}
	content := announcementContent(guild.AnnouncementMessage, displayName)
	embed := announcementEmbed(key.Platform, displayName, event.Snapshot, d.clock.Now())

	result := ResultPosted
	var message *discordgo.Message
	if d.editable(channel.ID, key.Platform, streamer.LastStreamMessageID) {
		result = ResultEdited
		message, err = d.gateway.ChannelMessageEditComplex(
			discordgo.NewMessageEdit(channel.ID, streamer.LastStreamMessageID).
				SetContent(content).
				SetEmbed(embed),
		)
	} else {
		message, err = d.gateway.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{
			Content: content,
			Embed:   embed,
		})
	}
	if err != nil {
		return ResultFailed, errors.Wrap(err, "sending announcement")
	}

	messageID := message.ID
	if result == ResultEdited || messageID == "" {
		messageID = streamer.LastStreamMessageID
	}
	if name := authorName(message); name != "" {
		displayName = name
	}
	d.store.UpdateStreamer(key.GuildID, key.Platform, key.UserID, messageID, displayName)
	return result, nil
}

// editable reports whether the previous announcement still exists and is inside the platform window
func (d *Dispatcher) editable(channelID, platform, messageID string) bool {
	if messageID == "" {
		return false
	}
	message, err := d.gateway.ChannelMessage(channelID, messageID)
	if err != nil {
		d.log.WithError(err).Debug("previous announcement not readable, reposting")
		return false
	}
	sent, err := messageTime(message)
	if err != nil {
		return false
	}
	return sent.After(d.clock.Now().Add(-d.windows[platform]))
}
